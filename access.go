package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by stores. The engine tells a missing record apart
// from an infrastructure failure: the former is a clean deny, the latter fails
// closed.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotFound     = errors.New("not found")
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// ResourceType enumerates the content kinds the platform serves.
type ResourceType string

const (
	ResourceSubject    ResourceType = "subject"
	ResourceTopic      ResourceType = "topic"
	ResourceVideo      ResourceType = "video"
	ResourceMaterial   ResourceType = "material"
	ResourceAssessment ResourceType = "assessment"
)

// Scope is the reach of a grant: a single resource kind or the whole platform.
type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeSubject    Scope = "subject"
	ScopeTopic      Scope = "topic"
	ScopeVideo      Scope = "video"
	ScopeMaterial   Scope = "material"
	ScopeAssessment Scope = "assessment"
)

// ScopeFor maps a resource type to its matching grant scope.
func ScopeFor(rt ResourceType) Scope {
	return Scope(rt)
}

// AccessLevel orders from least to most restrictive: full < read_only < limited.
type AccessLevel string

const (
	LevelFull     AccessLevel = "full"
	LevelReadOnly AccessLevel = "read_only"
	LevelLimited  AccessLevel = "limited"
)

// MostRestrictive collapses levels collected across tiers. Any tier reporting
// limited forces limited; read_only beats full; empty inputs are skipped.
func MostRestrictive(levels ...AccessLevel) AccessLevel {
	for _, want := range []AccessLevel{LevelLimited, LevelReadOnly} {
		for _, l := range levels {
			if l == want {
				return want
			}
		}
	}
	for _, l := range levels {
		if l != "" {
			return LevelFull
		}
	}
	return ""
}

// Role is the platform role attached to a user record.
type Role string

const (
	RoleStudent        Role = "student"
	RoleTeacher        Role = "teacher"
	RoleSchoolDirector Role = "school_director"
	RoleSchoolAdmin    Role = "school_admin"
)

// IsSchoolOwner reports whether the role administers the school; owners always
// see the full library-granted set, unmodified by teacher or school exclusions.
func (r Role) IsSchoolOwner() bool {
	return r == RoleSchoolDirector || r == RoleSchoolAdmin
}

// User is the slice of the platform roster the resolver needs.
type User struct {
	ID       string `json:"id" yaml:"id"`
	SchoolID string `json:"school_id" yaml:"school_id"`
	Role     Role   `json:"role" yaml:"role"`
	ClassID  string `json:"class_id,omitempty" yaml:"class_id,omitempty"`
}

// ============================================================================
// GRANT RECORDS (three tiers + exclusions)
// ============================================================================

// LibraryGrant is a tier-1 grant: a library/content owner opening part of a
// platform's catalog to an entire school. Revocation is a soft deactivate; an
// inactive row scoped to a concrete resource doubles as an explicit
// "turned off" marker consumed by the bulk resolvers.
type LibraryGrant struct {
	ID           string      `json:"id" yaml:"id"`
	SchoolID     string      `json:"school_id" yaml:"school_id"`
	PlatformID   string      `json:"platform_id" yaml:"platform_id"`
	Scope        Scope       `json:"scope" yaml:"scope"`
	SubjectID    string      `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	TopicID      string      `json:"topic_id,omitempty" yaml:"topic_id,omitempty"`
	VideoID      string      `json:"video_id,omitempty" yaml:"video_id,omitempty"`
	MaterialID   string      `json:"material_id,omitempty" yaml:"material_id,omitempty"`
	AssessmentID string      `json:"assessment_id,omitempty" yaml:"assessment_id,omitempty"`
	Level        AccessLevel `json:"level" yaml:"level"`
	Active       bool        `json:"active" yaml:"active"`
	ExpiresAt    time.Time   `json:"expires_at,omitempty" yaml:"expires_at,omitempty"` // zero = no expiry
	CreatedAt    time.Time   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// IsExpired treats the boundary as exclusive: a grant whose expiry equals the
// query instant is already expired.
func (g *LibraryGrant) IsExpired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !g.ExpiresAt.After(now)
}

// ResourceID returns the populated per-kind identifier, empty for scope all.
func (g *LibraryGrant) ResourceID() string {
	switch g.Scope {
	case ScopeSubject:
		return g.SubjectID
	case ScopeTopic:
		return g.TopicID
	case ScopeVideo:
		return g.VideoID
	case ScopeMaterial:
		return g.MaterialID
	case ScopeAssessment:
		return g.AssessmentID
	}
	return ""
}

// Validate enforces the invariant that exactly one resource identifier is
// populated and matches the scope, except scope all which carries none.
func (g *LibraryGrant) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("library grant ID is required")
	}
	if g.SchoolID == "" {
		return fmt.Errorf("library grant %s: school ID is required", g.ID)
	}
	populated := 0
	for _, id := range []string{g.SubjectID, g.TopicID, g.VideoID, g.MaterialID, g.AssessmentID} {
		if id != "" {
			populated++
		}
	}
	if g.Scope == ScopeAll {
		if populated != 0 {
			return fmt.Errorf("library grant %s: scope all must not name a resource", g.ID)
		}
		return nil
	}
	if populated != 1 || g.ResourceID() == "" {
		return fmt.Errorf("library grant %s: exactly one resource ID matching scope %s is required", g.ID, g.Scope)
	}
	return nil
}

// Checksum returns a deterministic hash of the grant for bundle signing.
func (g *LibraryGrant) Checksum() string {
	data, _ := json.Marshal(struct {
		SchoolID   string
		PlatformID string
		Scope      Scope
		ResourceID string
		Level      AccessLevel
		Active     bool
		ExpiresAt  int64
	}{
		SchoolID:   g.SchoolID,
		PlatformID: g.PlatformID,
		Scope:      g.Scope,
		ResourceID: g.ResourceID(),
		Level:      g.Level,
		Active:     g.Active,
		ExpiresAt:  g.ExpiresAt.Unix(),
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SchoolGrant is a tier-2 grant: a school administrator narrowing a library
// grant to a user, role, or class. At least one target must be set. It may
// also narrow the resource selection; empty per-kind fields inherit the
// parent's (see Engine.effectiveID).
type SchoolGrant struct {
	ID             string      `json:"id" yaml:"id"`
	LibraryGrantID string      `json:"library_grant_id" yaml:"library_grant_id"`
	SchoolID       string      `json:"school_id" yaml:"school_id"`
	UserID         string      `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	RoleType       Role        `json:"role_type,omitempty" yaml:"role_type,omitempty"`
	ClassID        string      `json:"class_id,omitempty" yaml:"class_id,omitempty"`
	Scope          Scope       `json:"scope,omitempty" yaml:"scope,omitempty"`
	SubjectID      string      `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	TopicID        string      `json:"topic_id,omitempty" yaml:"topic_id,omitempty"`
	VideoID        string      `json:"video_id,omitempty" yaml:"video_id,omitempty"`
	MaterialID     string      `json:"material_id,omitempty" yaml:"material_id,omitempty"`
	AssessmentID   string      `json:"assessment_id,omitempty" yaml:"assessment_id,omitempty"`
	Level          AccessLevel `json:"level" yaml:"level"`
	Active         bool        `json:"active" yaml:"active"`
	ExpiresAt      time.Time   `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func (g *SchoolGrant) IsExpired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !g.ExpiresAt.After(now)
}

// MatchesUser reports whether the grant targets this user directly, by role,
// or by class.
func (g *SchoolGrant) MatchesUser(u *User) bool {
	if g.UserID != "" && g.UserID == u.ID {
		return true
	}
	if g.RoleType != "" && g.RoleType == u.Role {
		return true
	}
	if g.ClassID != "" && u.ClassID != "" && g.ClassID == u.ClassID {
		return true
	}
	return false
}

func (g *SchoolGrant) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("school grant ID is required")
	}
	if g.LibraryGrantID == "" {
		return fmt.Errorf("school grant %s: library grant ID is required", g.ID)
	}
	if g.UserID == "" && g.RoleType == "" && g.ClassID == "" {
		return fmt.Errorf("school grant %s: at least one of user, role, or class target is required", g.ID)
	}
	return nil
}

// TeacherGrant is a tier-3 positive grant: once any row exists under a school
// grant, students must match one to retain access (restrictive override).
type TeacherGrant struct {
	ID            string    `json:"id" yaml:"id"`
	SchoolGrantID string    `json:"school_grant_id" yaml:"school_grant_id"`
	SchoolID      string    `json:"school_id" yaml:"school_id"`
	TeacherID     string    `json:"teacher_id,omitempty" yaml:"teacher_id,omitempty"`
	StudentID     string    `json:"student_id,omitempty" yaml:"student_id,omitempty"`
	ClassID       string    `json:"class_id,omitempty" yaml:"class_id,omitempty"`
	Active        bool      `json:"active" yaml:"active"`
	CreatedAt     time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// MatchesStudent reports whether the row names the student or their class.
func (g *TeacherGrant) MatchesStudent(u *User) bool {
	if g.StudentID != "" && g.StudentID == u.ID {
		return true
	}
	if g.ClassID != "" && u.ClassID != "" && g.ClassID == u.ClassID {
		return true
	}
	return false
}

// TeacherExclusion unconditionally hides a resource from a student or class,
// regardless of any grants above it.
type TeacherExclusion struct {
	ID           string       `json:"id" yaml:"id"`
	SchoolID     string       `json:"school_id" yaml:"school_id"`
	TeacherID    string       `json:"teacher_id,omitempty" yaml:"teacher_id,omitempty"`
	ResourceType ResourceType `json:"resource_type" yaml:"resource_type"`
	ResourceID   string       `json:"resource_id" yaml:"resource_id"`
	StudentID    string       `json:"student_id,omitempty" yaml:"student_id,omitempty"`
	ClassID      string       `json:"class_id,omitempty" yaml:"class_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// AppliesTo reports whether the exclusion targets the user: an untargeted
// exclusion hides the resource school-wide, otherwise the student or class
// must match.
func (x *TeacherExclusion) AppliesTo(u *User) bool {
	if x.StudentID == "" && x.ClassID == "" {
		return true
	}
	if x.StudentID != "" && x.StudentID == u.ID {
		return true
	}
	if x.ClassID != "" && u.ClassID != "" && x.ClassID == u.ClassID {
		return true
	}
	return false
}

// SchoolSubjectExclusion is the school-owner "turn off" list for subjects.
type SchoolSubjectExclusion struct {
	ID        string    `json:"id" yaml:"id"`
	SchoolID  string    `json:"school_id" yaml:"school_id"`
	SubjectID string    `json:"subject_id" yaml:"subject_id"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// ============================================================================
// CATALOG RECORDS
// ============================================================================

// Subject is a catalog entry; ClassID is the class the subject is taught to,
// used when matching class-scoped teacher exclusions for a subject view.
type Subject struct {
	ID         string `json:"id" yaml:"id"`
	PlatformID string `json:"platform_id" yaml:"platform_id"`
	ClassID    string `json:"class_id,omitempty" yaml:"class_id,omitempty"`
}

type Topic struct {
	ID        string `json:"id" yaml:"id"`
	SubjectID string `json:"subject_id" yaml:"subject_id"`
}

type Video struct {
	ID        string `json:"id" yaml:"id"`
	SubjectID string `json:"subject_id" yaml:"subject_id"`
	TopicID   string `json:"topic_id,omitempty" yaml:"topic_id,omitempty"`
	Published bool   `json:"published" yaml:"published"`
}

type Material struct {
	ID        string `json:"id" yaml:"id"`
	SubjectID string `json:"subject_id" yaml:"subject_id"`
	TopicID   string `json:"topic_id,omitempty" yaml:"topic_id,omitempty"`
}

type Assessment struct {
	ID        string `json:"id" yaml:"id"`
	SubjectID string `json:"subject_id" yaml:"subject_id"`
}

// ============================================================================
// RESULTS
// ============================================================================

// CheckResult is the decision for a single-resource check. Computed fresh per
// call, never cached.
type CheckResult struct {
	HasAccess bool        `json:"has_access"`
	Level     AccessLevel `json:"level,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	GrantPath []string    `json:"grant_path,omitempty"`
}

// Grant-path steps and deny reasons surfaced to callers.
const (
	PathLibraryGranted        = "library_granted"
	PathSchoolGranted         = "school_granted"
	PathTeacherGranted        = "teacher_granted"
	PathNoTeacherRestrictions = "no_teacher_restrictions"

	ReasonLibraryDenied = "library_denied"
	ReasonTeacherDenied = "teacher_denied"
	ReasonUserNotFound  = "user_not_found"
	ReasonError         = "error checking access"
)

// AccessibleResources is the generic bulk result, one ID set per kind.
type AccessibleResources struct {
	SubjectIDs    []string `json:"subject_ids"`
	TopicIDs      []string `json:"topic_ids"`
	VideoIDs      []string `json:"video_ids"`
	MaterialIDs   []string `json:"material_ids"`
	AssessmentIDs []string `json:"assessment_ids"`
}

// ExcludedIDs lists, per kind, the resources hidden inside one subject.
type ExcludedIDs struct {
	TopicIDs      []string `json:"topic_ids"`
	VideoIDs      []string `json:"video_ids"`
	MaterialIDs   []string `json:"material_ids"`
	AssessmentIDs []string `json:"assessment_ids"`
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// UserStore resolves platform roster records.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

// CatalogStore resolves content containment (reference data, not grants).
// Implementations may cache freely; grant stores must not.
type CatalogStore interface {
	GetSubject(ctx context.Context, id string) (*Subject, error)
	GetVideo(ctx context.Context, id string) (*Video, error)
	SubjectIDsByPlatform(ctx context.Context, platformID string) ([]string, error)
	TopicIDsBySubject(ctx context.Context, subjectID string) ([]string, error)
	VideoIDsBySubject(ctx context.Context, subjectID string) ([]string, error)
	MaterialIDsBySubject(ctx context.Context, subjectID string) ([]string, error)
	AssessmentIDsBySubject(ctx context.Context, subjectID string) ([]string, error)
	PublishedVideoIDsBySubjects(ctx context.Context, subjectIDs []string) ([]string, error)
}

// LibraryGrantStore manages tier-1 grants. Query methods return only active,
// unexpired rows except ListLibraryExclusions, which returns the inactive
// per-resource markers used as explicit exclusions.
type LibraryGrantStore interface {
	CreateLibraryGrant(ctx context.Context, g *LibraryGrant) error
	DeactivateLibraryGrant(ctx context.Context, id string) error
	// FindLibraryGrant returns the first active, unexpired grant matching
	// school+scope+resource (resourceID empty for scope all), or nil.
	FindLibraryGrant(ctx context.Context, schoolID string, scope Scope, resourceID string, now time.Time) (*LibraryGrant, error)
	// ListLibraryGrants returns active, unexpired grants for the school,
	// optionally filtered by scope; nil scopes means all.
	ListLibraryGrants(ctx context.Context, schoolID string, scopes []Scope, now time.Time) ([]*LibraryGrant, error)
	ListLibraryExclusions(ctx context.Context, schoolID string, scope Scope) ([]*LibraryGrant, error)
}

// SchoolGrantStore manages tier-2 grants.
type SchoolGrantStore interface {
	CreateSchoolGrant(ctx context.Context, g *SchoolGrant) error
	DeactivateSchoolGrant(ctx context.Context, id string) error
	GetSchoolGrant(ctx context.Context, id string) (*SchoolGrant, error)
	// FindSchoolGrant returns the first active, unexpired grant under the
	// library grant whose target matches the user, or nil.
	FindSchoolGrant(ctx context.Context, libraryGrantID string, user *User, now time.Time) (*SchoolGrant, error)
	ListSchoolGrantsForUser(ctx context.Context, schoolID string, user *User, now time.Time) ([]*SchoolGrant, error)
}

// TeacherGrantStore manages tier-3 positive grants.
type TeacherGrantStore interface {
	CreateTeacherGrant(ctx context.Context, g *TeacherGrant) error
	// ListTeacherGrants returns all active rows under school+school-grant,
	// matching or not; the caller decides what an empty list means.
	ListTeacherGrants(ctx context.Context, schoolID, schoolGrantID string) ([]*TeacherGrant, error)
}

// ExclusionStore manages the dedicated exclusion tables (tier 2.5 and 3).
type ExclusionStore interface {
	CreateTeacherExclusion(ctx context.Context, x *TeacherExclusion) error
	CreateSubjectExclusion(ctx context.Context, x *SchoolSubjectExclusion) error
	ListTeacherExclusions(ctx context.Context, schoolID string, rt ResourceType) ([]*TeacherExclusion, error)
	ExcludedSubjectIDs(ctx context.Context, schoolID string) ([]string, error)
}
