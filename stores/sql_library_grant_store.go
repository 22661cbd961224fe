package stores

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
)

// SQLLibraryGrantStore persists tier-1 grants in SQL (squealx)
type SQLLibraryGrantStore struct {
	db *squealx.DB
}

func NewSQLLibraryGrantStore(db *squealx.DB) *SQLLibraryGrantStore {
	return &SQLLibraryGrantStore{db: db}
}

const libraryGrantColumns = `id, school_id, platform_id, scope, subject_id, topic_id, video_id, material_id, assessment_id, level, active, expires_at, created_at`

func (s *SQLLibraryGrantStore) CreateLibraryGrant(ctx context.Context, g *access.LibraryGrant) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	q := `INSERT INTO library_grants(` + libraryGrantColumns + `) VALUES(:id, :school_id, :platform_id, :scope, :subject_id, :topic_id, :video_id, :material_id, :assessment_id, :level, :active, :expires_at, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            g.ID,
		"school_id":     g.SchoolID,
		"platform_id":   g.PlatformID,
		"scope":         string(g.Scope),
		"subject_id":    g.SubjectID,
		"topic_id":      g.TopicID,
		"video_id":      g.VideoID,
		"material_id":   g.MaterialID,
		"assessment_id": g.AssessmentID,
		"level":         string(g.Level),
		"active":        boolToInt(g.Active),
		"expires_at":    sqlNullTimeOrNil(g.ExpiresAt),
		"created_at":    g.CreatedAt,
	})
	return err
}

func (s *SQLLibraryGrantStore) DeactivateLibraryGrant(ctx context.Context, id string) error {
	q := `UPDATE library_grants SET active = 0 WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLLibraryGrantStore) FindLibraryGrant(ctx context.Context, schoolID string, scope access.Scope, resourceID string, now time.Time) (*access.LibraryGrant, error) {
	q := `SELECT ` + libraryGrantColumns + ` FROM library_grants WHERE school_id = :school_id AND scope = :scope AND active = 1 AND (expires_at IS NULL OR expires_at > :now)`
	params := map[string]any{
		"school_id": schoolID,
		"scope":     string(scope),
		"now":       now,
	}
	if scope != access.ScopeAll {
		q += ` AND ` + scopeColumn(scope) + ` = :resource_id`
		params["resource_id"] = resourceID
	}
	q += ` LIMIT 1`
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanLibraryGrant(r)
}

func (s *SQLLibraryGrantStore) ListLibraryGrants(ctx context.Context, schoolID string, scopes []access.Scope, now time.Time) ([]*access.LibraryGrant, error) {
	q := `SELECT ` + libraryGrantColumns + ` FROM library_grants WHERE school_id = :school_id AND active = 1 AND (expires_at IS NULL OR expires_at > :now)`
	params := map[string]any{"school_id": schoolID, "now": now}
	if len(scopes) > 0 {
		placeholders := make([]string, len(scopes))
		for i, sc := range scopes {
			name := "scope" + strconv.Itoa(i)
			placeholders[i] = ":" + name
			params[name] = string(sc)
		}
		q += ` AND scope IN (` + strings.Join(placeholders, ", ") + `)`
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.LibraryGrant, 0)
	for r.Next() {
		g, err := scanLibraryGrant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *SQLLibraryGrantStore) ListLibraryExclusions(ctx context.Context, schoolID string, scope access.Scope) ([]*access.LibraryGrant, error) {
	q := `SELECT ` + libraryGrantColumns + ` FROM library_grants WHERE school_id = :school_id AND scope = :scope AND active = 0 AND ` + scopeColumn(scope) + ` != ''`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"school_id": schoolID,
		"scope":     string(scope),
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.LibraryGrant, 0)
	for r.Next() {
		g, err := scanLibraryGrant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func scopeColumn(scope access.Scope) string {
	switch scope {
	case access.ScopeSubject:
		return "subject_id"
	case access.ScopeTopic:
		return "topic_id"
	case access.ScopeVideo:
		return "video_id"
	case access.ScopeMaterial:
		return "material_id"
	case access.ScopeAssessment:
		return "assessment_id"
	}
	return "subject_id"
}

func scanLibraryGrant(r rowScanner) (*access.LibraryGrant, error) {
	var id, schoolID, platformID, scope, subjectID, topicID, videoID, materialID, assessmentID, level string
	var activeInt int
	var expiresRaw, createdRaw interface{}
	if err := r.Scan(&id, &schoolID, &platformID, &scope, &subjectID, &topicID, &videoID, &materialID, &assessmentID, &level, &activeInt, &expiresRaw, &createdRaw); err != nil {
		return nil, err
	}
	g := &access.LibraryGrant{
		ID:           id,
		SchoolID:     schoolID,
		PlatformID:   platformID,
		Scope:        access.Scope(scope),
		SubjectID:    subjectID,
		TopicID:      topicID,
		VideoID:      videoID,
		MaterialID:   materialID,
		AssessmentID: assessmentID,
		Level:        access.AccessLevel(level),
		Active:       activeInt != 0,
	}
	if expiresRaw != nil {
		g.ExpiresAt = scanTime(expiresRaw)
	}
	if createdRaw != nil {
		g.CreatedAt = scanTime(createdRaw)
	}
	return g, nil
}
