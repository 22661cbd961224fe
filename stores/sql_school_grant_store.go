package stores

import (
	"context"
	"time"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
)

// SQLSchoolGrantStore persists tier-2 grants in SQL
type SQLSchoolGrantStore struct {
	db *squealx.DB
}

func NewSQLSchoolGrantStore(db *squealx.DB) *SQLSchoolGrantStore {
	return &SQLSchoolGrantStore{db: db}
}

const schoolGrantColumns = `id, library_grant_id, school_id, user_id, role_type, class_id, scope, subject_id, topic_id, video_id, material_id, assessment_id, level, active, expires_at, created_at`

func (s *SQLSchoolGrantStore) CreateSchoolGrant(ctx context.Context, g *access.SchoolGrant) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	q := `INSERT INTO school_grants(` + schoolGrantColumns + `) VALUES(:id, :library_grant_id, :school_id, :user_id, :role_type, :class_id, :scope, :subject_id, :topic_id, :video_id, :material_id, :assessment_id, :level, :active, :expires_at, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               g.ID,
		"library_grant_id": g.LibraryGrantID,
		"school_id":        g.SchoolID,
		"user_id":          g.UserID,
		"role_type":        string(g.RoleType),
		"class_id":         g.ClassID,
		"scope":            string(g.Scope),
		"subject_id":       g.SubjectID,
		"topic_id":         g.TopicID,
		"video_id":         g.VideoID,
		"material_id":      g.MaterialID,
		"assessment_id":    g.AssessmentID,
		"level":            string(g.Level),
		"active":           boolToInt(g.Active),
		"expires_at":       sqlNullTimeOrNil(g.ExpiresAt),
		"created_at":       g.CreatedAt,
	})
	return err
}

func (s *SQLSchoolGrantStore) DeactivateSchoolGrant(ctx context.Context, id string) error {
	q := `UPDATE school_grants SET active = 0 WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLSchoolGrantStore) GetSchoolGrant(ctx context.Context, id string) (*access.SchoolGrant, error) {
	q := `SELECT ` + schoolGrantColumns + ` FROM school_grants WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanSchoolGrant(r)
}

// userTargetPredicate matches rows targeting the user directly, by role, or by
// class. Empty target columns never match.
const userTargetPredicate = `(
	(user_id != '' AND user_id = :user_id)
	OR (role_type != '' AND role_type = :role_type)
	OR (class_id != '' AND :user_class != '' AND class_id = :user_class)
)`

func (s *SQLSchoolGrantStore) FindSchoolGrant(ctx context.Context, libraryGrantID string, user *access.User, now time.Time) (*access.SchoolGrant, error) {
	q := `SELECT ` + schoolGrantColumns + ` FROM school_grants WHERE library_grant_id = :library_grant_id AND active = 1 AND (expires_at IS NULL OR expires_at > :now) AND ` + userTargetPredicate + ` LIMIT 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"library_grant_id": libraryGrantID,
		"now":              now,
		"user_id":          user.ID,
		"role_type":        string(user.Role),
		"user_class":       user.ClassID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanSchoolGrant(r)
}

func (s *SQLSchoolGrantStore) ListSchoolGrantsForUser(ctx context.Context, schoolID string, user *access.User, now time.Time) ([]*access.SchoolGrant, error) {
	q := `SELECT ` + schoolGrantColumns + ` FROM school_grants WHERE school_id = :school_id AND active = 1 AND (expires_at IS NULL OR expires_at > :now) AND ` + userTargetPredicate
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"school_id":  schoolID,
		"now":        now,
		"user_id":    user.ID,
		"role_type":  string(user.Role),
		"user_class": user.ClassID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.SchoolGrant, 0)
	for r.Next() {
		g, err := scanSchoolGrant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func scanSchoolGrant(r rowScanner) (*access.SchoolGrant, error) {
	var id, libraryGrantID, schoolID, userID, roleType, classID, scope string
	var subjectID, topicID, videoID, materialID, assessmentID, level string
	var activeInt int
	var expiresRaw, createdRaw interface{}
	if err := r.Scan(&id, &libraryGrantID, &schoolID, &userID, &roleType, &classID, &scope, &subjectID, &topicID, &videoID, &materialID, &assessmentID, &level, &activeInt, &expiresRaw, &createdRaw); err != nil {
		return nil, err
	}
	g := &access.SchoolGrant{
		ID:             id,
		LibraryGrantID: libraryGrantID,
		SchoolID:       schoolID,
		UserID:         userID,
		RoleType:       access.Role(roleType),
		ClassID:        classID,
		Scope:          access.Scope(scope),
		SubjectID:      subjectID,
		TopicID:        topicID,
		VideoID:        videoID,
		MaterialID:     materialID,
		AssessmentID:   assessmentID,
		Level:          access.AccessLevel(level),
		Active:         activeInt != 0,
	}
	if expiresRaw != nil {
		g.ExpiresAt = scanTime(expiresRaw)
	}
	if createdRaw != nil {
		g.CreatedAt = scanTime(createdRaw)
	}
	return g, nil
}
