package records

import (
	"context"
	"time"
)

// Source is the external clinical record provider. The postgres
// implementation calls a stored procedure against the clinical database;
// tests supply in-memory fakes.
type Source interface {
	// FetchLineItems returns denormalized billing rows for the date range.
	// Failures surface as apperror.CodeExternalSource; the caller decides
	// whether to retry.
	FetchLineItems(ctx context.Context, dateFrom, dateTo time.Time, f Filters) ([]LineItem, error)
}

// ExclusionMark is the ledger state of one identity, as seen by the read side.
type ExclusionMark struct {
	Excluded  bool
	CreatedAt time.Time
}

// ExclusionLookup resolves ledger marks for a set of identities.
// Implemented by the exclusion repository.
type ExclusionLookup interface {
	Marks(ctx context.Context, ids []Identity) (map[Identity]ExclusionMark, error)
}

// SettledLookup reports which identities already belong to a settlement batch.
// Implemented by the settlement repository.
type SettledLookup interface {
	Settled(ctx context.Context, ids []Identity) (map[Identity]bool, error)
}
