// Package invoicing implements invoice records (valorizaciones): linking
// settlement batches to an official invoice under a generated VAL code,
// and voiding invoices via credit note.
package invoicing

import (
	"context"
	"time"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/entity"
	"liquimed/internal/core/id"
	"liquimed/internal/core/types"
)

// State is the lifecycle state of an invoice record.
type State string

const (
	StateInvoiced State = "INVOICED"
	StateVoided   State = "VOIDED"
)

// Invoice is an invoice record. Number holds the generated VAL code;
// InvoiceNumber is the official fiscal document number entered by the user.
type Invoice struct {
	entity.Document

	// InvoiceNumber is the fiscal invoice this record represents
	InvoiceNumber string `db:"invoice_number" json:"invoiceNumber"`

	// CreditNoteNumber is set when the invoice is voided
	CreditNoteNumber string `db:"credit_note_number" json:"creditNoteNumber,omitempty"`

	State State `db:"state" json:"state"`

	// Totals aggregated over the linked batches at invoicing time
	Subtotal types.Money `db:"subtotal" json:"subtotal"`
	Tax      types.Money `db:"tax" json:"tax"`
	Total    types.Money `db:"total" json:"total"`

	BatchCount int `db:"batch_count" json:"batchCount"`

	VoidedBy string     `db:"voided_by" json:"voidedBy,omitempty"`
	VoidedAt *time.Time `db:"voided_at" json:"voidedAt,omitempty"`

	// BatchIDs are the settlement batches linked to this invoice.
	// Empty on a voided invoice (the link is cleared on void).
	BatchIDs []id.ID `db:"-" json:"batchIds,omitempty"`
}

// NewInvoice creates an invoice record in the INVOICED state.
func NewInvoice(invoiceNumber string) *Invoice {
	return &Invoice{
		Document:      entity.NewDocument(),
		InvoiceNumber: invoiceNumber,
		State:         StateInvoiced,
		Subtotal:      types.Zero(),
		Tax:           types.Zero(),
		Total:         types.Zero(),
	}
}

// IsVoided reports whether the invoice has been voided.
func (inv *Invoice) IsVoided() bool {
	return inv.State == StateVoided
}

// Validate implements entity.Validatable.
func (inv *Invoice) Validate(ctx context.Context) error {
	if err := inv.Document.Validate(ctx); err != nil {
		return err
	}
	if inv.InvoiceNumber == "" {
		return apperror.NewValidation("invoice number is required").
			WithDetail("field", "invoiceNumber")
	}
	if inv.BatchCount < 1 {
		return apperror.NewValidation("invoice must cover at least one settlement batch")
	}
	if inv.State == StateVoided && inv.CreditNoteNumber == "" {
		return apperror.NewValidation("credit note number is required to void an invoice").
			WithDetail("field", "creditNoteNumber")
	}
	return nil
}
