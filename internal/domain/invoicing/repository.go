package invoicing

import (
	"context"
	"time"

	"liquimed/internal/core/id"
	"liquimed/internal/domain/listing"
)

// ListFilter narrows the invoice listing.
type ListFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time

	State State

	// Search matches the VAL code or the fiscal invoice number (substring).
	Search string

	Page listing.Page
}

// Repository persists invoice records.
type Repository interface {
	// Create inserts the invoice record.
	Create(ctx context.Context, inv *Invoice) error

	// GetByID returns an invoice, apperror.CodeNotFound if absent.
	GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// GetForUpdate returns an invoice under a row lock (FOR UPDATE).
	// Must be called inside a transaction.
	GetForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// GetByNumber returns an invoice by its VAL code.
	GetByNumber(ctx context.Context, number string) (*Invoice, error)

	// List returns invoices matching the filter.
	List(ctx context.Context, f ListFilter) (*listing.Result[Invoice], error)

	// Update saves changes with an optimistic lock on Version.
	Update(ctx context.Context, inv *Invoice) error
}
