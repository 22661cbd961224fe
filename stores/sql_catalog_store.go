package stores

import (
	"context"
	"fmt"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
)

// SQLCatalogStore resolves content containment from SQL
type SQLCatalogStore struct {
	db *squealx.DB
}

func NewSQLCatalogStore(db *squealx.DB) *SQLCatalogStore {
	return &SQLCatalogStore{db: db}
}

func (s *SQLCatalogStore) PutSubject(ctx context.Context, sub *access.Subject) error {
	q := `INSERT OR REPLACE INTO subjects(id, platform_id, class_id) VALUES(:id, :platform_id, :class_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          sub.ID,
		"platform_id": sub.PlatformID,
		"class_id":    sub.ClassID,
	})
	return err
}

func (s *SQLCatalogStore) PutTopic(ctx context.Context, t *access.Topic) error {
	q := `INSERT OR REPLACE INTO topics(id, subject_id) VALUES(:id, :subject_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": t.ID, "subject_id": t.SubjectID})
	return err
}

func (s *SQLCatalogStore) PutVideo(ctx context.Context, v *access.Video) error {
	q := `INSERT OR REPLACE INTO videos(id, subject_id, topic_id, published) VALUES(:id, :subject_id, :topic_id, :published)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         v.ID,
		"subject_id": v.SubjectID,
		"topic_id":   v.TopicID,
		"published":  boolToInt(v.Published),
	})
	return err
}

func (s *SQLCatalogStore) PutMaterial(ctx context.Context, m *access.Material) error {
	q := `INSERT OR REPLACE INTO materials(id, subject_id, topic_id) VALUES(:id, :subject_id, :topic_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": m.ID, "subject_id": m.SubjectID, "topic_id": m.TopicID})
	return err
}

func (s *SQLCatalogStore) PutAssessment(ctx context.Context, a *access.Assessment) error {
	q := `INSERT OR REPLACE INTO assessments(id, subject_id) VALUES(:id, :subject_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": a.ID, "subject_id": a.SubjectID})
	return err
}

func (s *SQLCatalogStore) GetSubject(ctx context.Context, id string) (*access.Subject, error) {
	q := `SELECT id, platform_id, class_id FROM subjects WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("subject %s: %w", id, access.ErrNotFound)
	}
	var sid, platformID, classID string
	if err := r.Scan(&sid, &platformID, &classID); err != nil {
		return nil, err
	}
	return &access.Subject{ID: sid, PlatformID: platformID, ClassID: classID}, nil
}

func (s *SQLCatalogStore) GetVideo(ctx context.Context, id string) (*access.Video, error) {
	q := `SELECT id, subject_id, topic_id, published FROM videos WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("video %s: %w", id, access.ErrNotFound)
	}
	var vid, subjectID, topicID string
	var publishedInt int
	if err := r.Scan(&vid, &subjectID, &topicID, &publishedInt); err != nil {
		return nil, err
	}
	return &access.Video{ID: vid, SubjectID: subjectID, TopicID: topicID, Published: publishedInt != 0}, nil
}

func (s *SQLCatalogStore) SubjectIDsByPlatform(ctx context.Context, platformID string) ([]string, error) {
	q := `SELECT id FROM subjects WHERE (:platform_id = '' OR platform_id = :platform_id)`
	return s.idList(ctx, q, map[string]any{"platform_id": platformID})
}

func (s *SQLCatalogStore) TopicIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	q := `SELECT id FROM topics WHERE subject_id = :subject_id`
	return s.idList(ctx, q, map[string]any{"subject_id": subjectID})
}

func (s *SQLCatalogStore) VideoIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	q := `SELECT id FROM videos WHERE subject_id = :subject_id`
	return s.idList(ctx, q, map[string]any{"subject_id": subjectID})
}

func (s *SQLCatalogStore) MaterialIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	q := `SELECT id FROM materials WHERE subject_id = :subject_id`
	return s.idList(ctx, q, map[string]any{"subject_id": subjectID})
}

func (s *SQLCatalogStore) AssessmentIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	q := `SELECT id FROM assessments WHERE subject_id = :subject_id`
	return s.idList(ctx, q, map[string]any{"subject_id": subjectID})
}

func (s *SQLCatalogStore) PublishedVideoIDsBySubjects(ctx context.Context, subjectIDs []string) ([]string, error) {
	out := make([]string, 0)
	q := `SELECT id FROM videos WHERE published = 1 AND subject_id = :subject_id`
	for _, subjectID := range subjectIDs {
		ids, err := s.idList(ctx, q, map[string]any{"subject_id": subjectID})
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (s *SQLCatalogStore) idList(ctx context.Context, q string, params map[string]any) ([]string, error) {
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var id string
		if err := r.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
