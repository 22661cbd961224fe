package access

import (
	"context"
	"time"
)

// AuditEntry records one resolution decision.
type AuditEntry struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	UserID       string       `json:"user_id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	HasAccess    bool         `json:"has_access"`
	Level        AccessLevel  `json:"level,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	GrantPath    []string     `json:"grant_path,omitempty"`
	TraceID      string       `json:"trace_id,omitempty"`
}

// AuditStore manages the decision audit trail.
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditFilter narrows audit queries; zero values match everything.
type AuditFilter struct {
	UserID     string
	ResourceID string
	HasAccess  *bool
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}
