package stores

import (
	"context"
	"time"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
)

// SQLTeacherGrantStore persists tier-3 positive grants in SQL
type SQLTeacherGrantStore struct {
	db *squealx.DB
}

func NewSQLTeacherGrantStore(db *squealx.DB) *SQLTeacherGrantStore {
	return &SQLTeacherGrantStore{db: db}
}

func (s *SQLTeacherGrantStore) CreateTeacherGrant(ctx context.Context, g *access.TeacherGrant) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	q := `INSERT INTO teacher_grants(id, school_grant_id, school_id, teacher_id, student_id, class_id, active, created_at) VALUES(:id, :school_grant_id, :school_id, :teacher_id, :student_id, :class_id, :active, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              g.ID,
		"school_grant_id": g.SchoolGrantID,
		"school_id":       g.SchoolID,
		"teacher_id":      g.TeacherID,
		"student_id":      g.StudentID,
		"class_id":        g.ClassID,
		"active":          boolToInt(g.Active),
		"created_at":      g.CreatedAt,
	})
	return err
}

func (s *SQLTeacherGrantStore) ListTeacherGrants(ctx context.Context, schoolID, schoolGrantID string) ([]*access.TeacherGrant, error) {
	q := `SELECT id, school_grant_id, school_id, teacher_id, student_id, class_id, active, created_at FROM teacher_grants WHERE school_id = :school_id AND school_grant_id = :school_grant_id AND active = 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"school_id":       schoolID,
		"school_grant_id": schoolGrantID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.TeacherGrant, 0)
	for r.Next() {
		var id, parentID, school, teacherID, studentID, classID string
		var activeInt int
		var createdRaw interface{}
		if err := r.Scan(&id, &parentID, &school, &teacherID, &studentID, &classID, &activeInt, &createdRaw); err != nil {
			return nil, err
		}
		g := &access.TeacherGrant{
			ID:            id,
			SchoolGrantID: parentID,
			SchoolID:      school,
			TeacherID:     teacherID,
			StudentID:     studentID,
			ClassID:       classID,
			Active:        activeInt != 0,
		}
		if createdRaw != nil {
			g.CreatedAt = scanTime(createdRaw)
		}
		out = append(out, g)
	}
	return out, nil
}

// SQLExclusionStore persists teacher and school-subject exclusions in SQL
type SQLExclusionStore struct {
	db *squealx.DB
}

func NewSQLExclusionStore(db *squealx.DB) *SQLExclusionStore {
	return &SQLExclusionStore{db: db}
}

func (s *SQLExclusionStore) CreateTeacherExclusion(ctx context.Context, x *access.TeacherExclusion) error {
	if x.CreatedAt.IsZero() {
		x.CreatedAt = time.Now()
	}
	q := `INSERT INTO teacher_exclusions(id, school_id, teacher_id, resource_type, resource_id, student_id, class_id, created_at) VALUES(:id, :school_id, :teacher_id, :resource_type, :resource_id, :student_id, :class_id, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            x.ID,
		"school_id":     x.SchoolID,
		"teacher_id":    x.TeacherID,
		"resource_type": string(x.ResourceType),
		"resource_id":   x.ResourceID,
		"student_id":    x.StudentID,
		"class_id":      x.ClassID,
		"created_at":    x.CreatedAt,
	})
	return err
}

func (s *SQLExclusionStore) CreateSubjectExclusion(ctx context.Context, x *access.SchoolSubjectExclusion) error {
	if x.CreatedAt.IsZero() {
		x.CreatedAt = time.Now()
	}
	q := `INSERT INTO subject_exclusions(id, school_id, subject_id, created_at) VALUES(:id, :school_id, :subject_id, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         x.ID,
		"school_id":  x.SchoolID,
		"subject_id": x.SubjectID,
		"created_at": x.CreatedAt,
	})
	return err
}

func (s *SQLExclusionStore) ListTeacherExclusions(ctx context.Context, schoolID string, rt access.ResourceType) ([]*access.TeacherExclusion, error) {
	q := `SELECT id, school_id, teacher_id, resource_type, resource_id, student_id, class_id, created_at FROM teacher_exclusions WHERE school_id = :school_id AND resource_type = :resource_type`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"school_id":     schoolID,
		"resource_type": string(rt),
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.TeacherExclusion, 0)
	for r.Next() {
		var id, school, teacherID, resourceType, resourceID, studentID, classID string
		var createdRaw interface{}
		if err := r.Scan(&id, &school, &teacherID, &resourceType, &resourceID, &studentID, &classID, &createdRaw); err != nil {
			return nil, err
		}
		x := &access.TeacherExclusion{
			ID:           id,
			SchoolID:     school,
			TeacherID:    teacherID,
			ResourceType: access.ResourceType(resourceType),
			ResourceID:   resourceID,
			StudentID:    studentID,
			ClassID:      classID,
		}
		if createdRaw != nil {
			x.CreatedAt = scanTime(createdRaw)
		}
		out = append(out, x)
	}
	return out, nil
}

func (s *SQLExclusionStore) ExcludedSubjectIDs(ctx context.Context, schoolID string) ([]string, error) {
	q := `SELECT subject_id FROM subject_exclusions WHERE school_id = :school_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"school_id": schoolID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var subjectID string
		if err := r.Scan(&subjectID); err != nil {
			return nil, err
		}
		out = append(out, subjectID)
	}
	return out, nil
}
