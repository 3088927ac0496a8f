package exclusion

import (
	"context"
	"time"

	"liquimed/internal/domain/records"
)

// PendingFilter narrows the pending-items listing.
type PendingFilter struct {
	ClientName string
	SiteCode   string
	ExamType   string
	// CreatedBefore selects carried-over rows (excluded in a prior period).
	CreatedBefore *time.Time

	Limit  int
	Offset int
}

// Repository persists exclusion records.
type Repository interface {
	// Upsert inserts or updates the row for the record's identity.
	Upsert(ctx context.Context, rec *Record) error

	// Get returns the row for an identity, apperror.CodeNotFound if absent.
	Get(ctx context.Context, id records.Identity) (*Record, error)

	// Marks resolves ledger state for a set of identities.
	// Identities without a row are simply absent from the result.
	Marks(ctx context.Context, ids []records.Identity) (map[records.Identity]records.ExclusionMark, error)

	// Release clears the excluded flag, recording who and when.
	Release(ctx context.Context, id records.Identity, releasedBy string) error

	// ListPending returns currently excluded rows.
	ListPending(ctx context.Context, f PendingFilter) ([]Record, error)
}
