package stores

import (
	"context"
	"encoding/json"

	"github.com/classware/access"
	"github.com/oarkflow/squealx"
)

// SQLAuditStore persists decision audit entries in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *access.AuditEntry) error {
	pathB, _ := json.Marshal(entry.GrantPath)
	q := `INSERT INTO audit_log(id, timestamp, user_id, resource_type, resource_id, has_access, level, reason, grant_path_json, trace_id) VALUES(:id, :timestamp, :user_id, :resource_type, :resource_id, :has_access, :level, :reason, :grant_path_json, :trace_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              entry.ID,
		"timestamp":       entry.Timestamp,
		"user_id":         entry.UserID,
		"resource_type":   string(entry.ResourceType),
		"resource_id":     entry.ResourceID,
		"has_access":      boolToInt(entry.HasAccess),
		"level":           string(entry.Level),
		"reason":          entry.Reason,
		"grant_path_json": string(pathB),
		"trace_id":        entry.TraceID,
	})
	return err
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter access.AuditFilter) ([]*access.AuditEntry, error) {
	q := `SELECT id, timestamp, user_id, resource_type, resource_id, has_access, level, reason, grant_path_json, trace_id FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.ResourceID != "" {
		q += " AND resource_id = :resource_id"
		params["resource_id"] = filter.ResourceID
	}
	if filter.HasAccess != nil {
		q += " AND has_access = :has_access"
		params["has_access"] = boolToInt(*filter.HasAccess)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*access.AuditEntry, 0)
	for r.Next() {
		var id, userID, resourceType, resourceID, level, reason, pathJSON, traceID string
		var timestampRaw interface{}
		var hasAccessInt int
		if err := r.Scan(&id, &timestampRaw, &userID, &resourceType, &resourceID, &hasAccessInt, &level, &reason, &pathJSON, &traceID); err != nil {
			return nil, err
		}
		entry := &access.AuditEntry{
			ID:           id,
			UserID:       userID,
			ResourceType: access.ResourceType(resourceType),
			ResourceID:   resourceID,
			HasAccess:    hasAccessInt != 0,
			Level:        access.AccessLevel(level),
			Reason:       reason,
			TraceID:      traceID,
		}
		if timestampRaw != nil {
			entry.Timestamp = scanTime(timestampRaw)
		}
		_ = json.Unmarshal([]byte(pathJSON), &entry.GrantPath)
		out = append(out, entry)
	}
	return out, nil
}
