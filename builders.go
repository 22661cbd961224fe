package access

import "time"

// Builders provide a fluent API for creating grants and exclusions

// LibraryGrantBuilder builds a tier-1 grant
type LibraryGrantBuilder struct {
	g *LibraryGrant
}

func NewLibraryGrantBuilder() *LibraryGrantBuilder {
	return &LibraryGrantBuilder{g: &LibraryGrant{Scope: ScopeAll, Level: LevelFull, Active: true}}
}

func (b *LibraryGrantBuilder) ID(id string) *LibraryGrantBuilder       { b.g.ID = id; return b }
func (b *LibraryGrantBuilder) School(id string) *LibraryGrantBuilder   { b.g.SchoolID = id; return b }
func (b *LibraryGrantBuilder) Platform(id string) *LibraryGrantBuilder { b.g.PlatformID = id; return b }
func (b *LibraryGrantBuilder) Level(l AccessLevel) *LibraryGrantBuilder {
	b.g.Level = l
	return b
}
func (b *LibraryGrantBuilder) ExpiresAt(t time.Time) *LibraryGrantBuilder {
	b.g.ExpiresAt = t
	return b
}
func (b *LibraryGrantBuilder) Inactive() *LibraryGrantBuilder { b.g.Active = false; return b }
func (b *LibraryGrantBuilder) Subject(id string) *LibraryGrantBuilder {
	b.g.Scope, b.g.SubjectID = ScopeSubject, id
	return b
}
func (b *LibraryGrantBuilder) Topic(id string) *LibraryGrantBuilder {
	b.g.Scope, b.g.TopicID = ScopeTopic, id
	return b
}
func (b *LibraryGrantBuilder) Video(id string) *LibraryGrantBuilder {
	b.g.Scope, b.g.VideoID = ScopeVideo, id
	return b
}
func (b *LibraryGrantBuilder) Material(id string) *LibraryGrantBuilder {
	b.g.Scope, b.g.MaterialID = ScopeMaterial, id
	return b
}
func (b *LibraryGrantBuilder) Assessment(id string) *LibraryGrantBuilder {
	b.g.Scope, b.g.AssessmentID = ScopeAssessment, id
	return b
}
func (b *LibraryGrantBuilder) Build() *LibraryGrant { return b.g }

// SchoolGrantBuilder builds a tier-2 grant
type SchoolGrantBuilder struct {
	g *SchoolGrant
}

func NewSchoolGrantBuilder() *SchoolGrantBuilder {
	return &SchoolGrantBuilder{g: &SchoolGrant{Active: true}}
}

func (b *SchoolGrantBuilder) ID(id string) *SchoolGrantBuilder { b.g.ID = id; return b }
func (b *SchoolGrantBuilder) Parent(libraryGrantID string) *SchoolGrantBuilder {
	b.g.LibraryGrantID = libraryGrantID
	return b
}
func (b *SchoolGrantBuilder) User(id string) *SchoolGrantBuilder  { b.g.UserID = id; return b }
func (b *SchoolGrantBuilder) Role(r Role) *SchoolGrantBuilder     { b.g.RoleType = r; return b }
func (b *SchoolGrantBuilder) Class(id string) *SchoolGrantBuilder { b.g.ClassID = id; return b }
func (b *SchoolGrantBuilder) Level(l AccessLevel) *SchoolGrantBuilder {
	b.g.Level = l
	return b
}
func (b *SchoolGrantBuilder) ExpiresAt(t time.Time) *SchoolGrantBuilder {
	b.g.ExpiresAt = t
	return b
}
func (b *SchoolGrantBuilder) Subject(id string) *SchoolGrantBuilder {
	b.g.Scope, b.g.SubjectID = ScopeSubject, id
	return b
}
func (b *SchoolGrantBuilder) Build() *SchoolGrant { return b.g }

// TeacherGrantBuilder builds a tier-3 positive grant
type TeacherGrantBuilder struct {
	g *TeacherGrant
}

func NewTeacherGrantBuilder() *TeacherGrantBuilder {
	return &TeacherGrantBuilder{g: &TeacherGrant{Active: true}}
}

func (b *TeacherGrantBuilder) ID(id string) *TeacherGrantBuilder { b.g.ID = id; return b }
func (b *TeacherGrantBuilder) Parent(schoolGrantID string) *TeacherGrantBuilder {
	b.g.SchoolGrantID = schoolGrantID
	return b
}
func (b *TeacherGrantBuilder) School(id string) *TeacherGrantBuilder  { b.g.SchoolID = id; return b }
func (b *TeacherGrantBuilder) Teacher(id string) *TeacherGrantBuilder { b.g.TeacherID = id; return b }
func (b *TeacherGrantBuilder) Student(id string) *TeacherGrantBuilder { b.g.StudentID = id; return b }
func (b *TeacherGrantBuilder) Class(id string) *TeacherGrantBuilder   { b.g.ClassID = id; return b }
func (b *TeacherGrantBuilder) Build() *TeacherGrant                   { return b.g }

// TeacherExclusionBuilder builds a tier-3 unconditional hide
type TeacherExclusionBuilder struct {
	x *TeacherExclusion
}

func NewTeacherExclusionBuilder() *TeacherExclusionBuilder {
	return &TeacherExclusionBuilder{x: &TeacherExclusion{}}
}

func (b *TeacherExclusionBuilder) ID(id string) *TeacherExclusionBuilder { b.x.ID = id; return b }
func (b *TeacherExclusionBuilder) School(id string) *TeacherExclusionBuilder {
	b.x.SchoolID = id
	return b
}
func (b *TeacherExclusionBuilder) Teacher(id string) *TeacherExclusionBuilder {
	b.x.TeacherID = id
	return b
}
func (b *TeacherExclusionBuilder) Resource(rt ResourceType, id string) *TeacherExclusionBuilder {
	b.x.ResourceType, b.x.ResourceID = rt, id
	return b
}
func (b *TeacherExclusionBuilder) Student(id string) *TeacherExclusionBuilder {
	b.x.StudentID = id
	return b
}
func (b *TeacherExclusionBuilder) Class(id string) *TeacherExclusionBuilder {
	b.x.ClassID = id
	return b
}
func (b *TeacherExclusionBuilder) Build() *TeacherExclusion { return b.x }
