// Package audit defines the contract for the append-only audit trail.
// The postgres implementation stores compressed JSON payloads.
package audit

import (
	"context"
	"time"

	"liquimed/internal/core/id"
)

// Actions recorded by the billing workflow.
const (
	ActionCreate  = "CREATE"
	ActionVoid    = "VOID"
	ActionInvoice = "INVOICE"
	ActionExclude = "EXCLUDE"
	ActionRelease = "RELEASE"
)

// Entry is one audit trail record.
type Entry struct {
	ID         id.ID          `db:"id" json:"id"`
	EntityType string         `db:"entity_type" json:"entityType"`
	EntityID   string         `db:"entity_id" json:"entityId"`
	Action     string         `db:"action" json:"action"`
	UserID     string         `db:"user_id" json:"userId"`
	OccurredAt time.Time      `db:"occurred_at" json:"occurredAt"`
	Payload    map[string]any `db:"-" json:"payload,omitempty"`
}

// Recorder appends entries to the audit trail. Record is expected to be
// called inside the transaction that performs the audited change, so the
// entry commits or rolls back together with it.
type Recorder interface {
	Record(ctx context.Context, entityType, entityID, action string, payload map[string]any) error
}

// NopRecorder discards entries. Useful in tests.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, string, string, string, map[string]any) error {
	return nil
}
