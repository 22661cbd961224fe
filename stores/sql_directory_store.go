package stores

import (
	"context"
	"fmt"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
)

// SQLUserStore resolves roster records from SQL
type SQLUserStore struct {
	db *squealx.DB
}

func NewSQLUserStore(db *squealx.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

func (s *SQLUserStore) PutUser(ctx context.Context, u *access.User) error {
	q := `INSERT OR REPLACE INTO users(id, school_id, role, class_id) VALUES(:id, :school_id, :role, :class_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":        u.ID,
		"school_id": u.SchoolID,
		"role":      string(u.Role),
		"class_id":  u.ClassID,
	})
	return err
}

func (s *SQLUserStore) GetUser(ctx context.Context, id string) (*access.User, error) {
	q := `SELECT id, school_id, role, class_id FROM users WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("%w: %s", access.ErrUserNotFound, id)
	}
	var uid, schoolID, role, classID string
	if err := r.Scan(&uid, &schoolID, &role, &classID); err != nil {
		return nil, err
	}
	return &access.User{ID: uid, SchoolID: schoolID, Role: access.Role(role), ClassID: classID}, nil
}
