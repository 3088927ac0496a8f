package settlement

import (
	"context"
	"time"

	"liquimed/internal/core/id"
	"liquimed/internal/domain/listing"
	"liquimed/internal/domain/records"
)

// ListFilter narrows the batch listing.
type ListFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time

	State            BatchState
	PaymentCondition records.PaymentCondition

	// Invoiced filters by invoice link presence when set.
	Invoiced *bool

	// Search matches the batch number (substring).
	Search string

	Page listing.Page
}

// Repository persists settlement batches and the settled-items registry.
//
// The registry (one row per settled line item identity) is the source of
// truth for the double-settle guard: it is written in the same transaction
// as the batch and its rows survive a batch void.
type Repository interface {
	// Create inserts the batch header.
	Create(ctx context.Context, b *Batch) error

	// SaveDetails inserts the denormalized detail lines.
	SaveDetails(ctx context.Context, details []Detail) error

	// RegisterSettled inserts registry rows for the identities.
	// Fails with apperror.CodeAlreadySettled on a primary key conflict.
	RegisterSettled(ctx context.Context, batchID id.ID, batchNumber string, ids []records.Identity) error

	// LockSettled locks existing registry rows for the identities
	// (SELECT ... FOR UPDATE) and reports which are present. Must be
	// called inside a transaction.
	LockSettled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error)

	// Settled reports registry state without locking.
	// Implements records.SettledLookup.
	Settled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error)

	// GetByID returns the batch header, apperror.CodeNotFound if absent.
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)

	// GetByNumber returns the batch header by its LQ code.
	GetByNumber(ctx context.Context, number string) (*Batch, error)

	// GetDetails returns detail lines ordered by LineNo.
	GetDetails(ctx context.Context, batchID id.ID) ([]Detail, error)

	// List returns batch headers matching the filter.
	List(ctx context.Context, f ListFilter) (*listing.Result[Batch], error)

	// Update saves header changes with an optimistic lock on Version.
	// Returns apperror.CodeConcurrentModification on a version mismatch.
	Update(ctx context.Context, b *Batch) error

	// LockForInvoicing locks the batch headers (FOR UPDATE) and returns
	// them. Must be called inside a transaction.
	LockForInvoicing(ctx context.Context, batchIDs []id.ID) ([]Batch, error)

	// LinkInvoice sets the invoice link on the batches.
	LinkInvoice(ctx context.Context, batchIDs []id.ID, invoiceID id.ID) error

	// UnlinkInvoice clears the invoice link on every batch pointing at
	// invoiceID and returns the affected batch IDs.
	UnlinkInvoice(ctx context.Context, invoiceID id.ID) ([]id.ID, error)
}
