// Package settlement implements settlement batches (liquidaciones):
// grouped clinical line items settled together under a generated LQ code,
// with IGV tax totals and a void lifecycle.
package settlement

import (
	"context"
	"time"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/entity"
	"liquimed/internal/core/id"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/records"
)

// BatchState is the lifecycle state of a settlement batch.
type BatchState string

const (
	StateActive BatchState = "ACTIVE"
	StateVoided BatchState = "VOIDED"
)

// Invoicing states derived from the batch's invoice link.
const (
	InvoiceStateNotInvoiced = "NOT_INVOICED"
	InvoiceStateInvoiced    = "INVOICED"
)

// Batch is a settlement document. Number holds the generated LQ code
// (e.g. "LQ-2025-00042"). Details are the denormalized line snapshot
// taken at settlement time.
type Batch struct {
	entity.Document

	// DateFrom/DateTo is the service period the batch covers
	DateFrom time.Time `db:"date_from" json:"dateFrom"`
	DateTo   time.Time `db:"date_to" json:"dateTo"`

	PaymentCondition records.PaymentCondition `db:"payment_condition" json:"paymentCondition"`

	// Monetary totals. Tax is IGV over Subtotal, Total = Subtotal + Tax.
	Subtotal types.Money `db:"subtotal" json:"subtotal"`
	Tax      types.Money `db:"tax" json:"tax"`
	Total    types.Money `db:"total" json:"total"`

	GroupCount   int `db:"group_count" json:"groupCount"`
	PatientCount int `db:"patient_count" json:"patientCount"`

	State BatchState `db:"state" json:"state"`

	// InvoiceID links the batch to an invoice record. Nil means the
	// batch has not been invoiced (or its invoice was voided).
	InvoiceID *id.ID `db:"invoice_id" json:"invoiceId,omitempty"`

	VoidedBy string     `db:"voided_by" json:"voidedBy,omitempty"`
	VoidedAt *time.Time `db:"voided_at" json:"voidedAt,omitempty"`

	Details []Detail `db:"-" json:"details,omitempty"`
}

// Detail is one settled line item, snapshotted into the batch so the
// document stays readable even if the clinical source changes.
type Detail struct {
	BatchID id.ID `db:"batch_id" json:"-"`

	// LineNo orders details within the batch, starting at 1
	LineNo int `db:"line_no" json:"lineNo"`

	RecordNumber   string `db:"record_number" json:"recordNumber"`
	DocumentNumber string `db:"document_number" json:"documentNumber"`

	ClientName            string `db:"client_name" json:"clientName"`
	ProductionUnit        string `db:"production_unit" json:"productionUnit"`
	ExamType              string `db:"exam_type" json:"examType"`
	SiteCode              string `db:"site_code" json:"siteCode"`
	SiteName              string `db:"site_name" json:"siteName"`
	PatientName           string `db:"patient_name" json:"patientName"`
	PrestationDescription string `db:"prestation_description" json:"prestationDescription"`

	Amount           types.Money `db:"amount" json:"amount"`
	ServiceStartDate time.Time   `db:"service_start_date" json:"serviceStartDate"`

	// GroupID records which settlement group the line belonged to
	GroupID string `db:"group_id" json:"groupId"`
}

// Identity returns the line item identity of the detail.
func (d *Detail) Identity() records.Identity {
	return records.Identity{
		RecordNumber:   d.RecordNumber,
		DocumentNumber: d.DocumentNumber,
	}
}

// NewBatch creates an active batch covering the given period.
func NewBatch(dateFrom, dateTo time.Time, cond records.PaymentCondition) *Batch {
	return &Batch{
		Document:         entity.NewDocument(),
		DateFrom:         dateFrom,
		DateTo:           dateTo,
		PaymentCondition: cond,
		Subtotal:         types.Zero(),
		Tax:              types.Zero(),
		Total:            types.Zero(),
		State:            StateActive,
	}
}

// InvoiceState reports the invoicing side of the batch lifecycle.
func (b *Batch) InvoiceState() string {
	if b.InvoiceID != nil {
		return InvoiceStateInvoiced
	}
	return InvoiceStateNotInvoiced
}

// IsActive reports whether the batch has not been voided.
func (b *Batch) IsActive() bool {
	return b.State == StateActive
}

// RecomputeTotals derives Subtotal, Tax and Total from the details.
func (b *Batch) RecomputeTotals() {
	subtotal := types.Zero()
	for i := range b.Details {
		subtotal = subtotal.Add(b.Details[i].Amount)
	}
	b.Subtotal = subtotal
	b.Tax = types.Tax(subtotal)
	b.Total = types.TotalWithTax(subtotal)
}

// Validate implements entity.Validatable.
func (b *Batch) Validate(ctx context.Context) error {
	if err := b.Document.Validate(ctx); err != nil {
		return err
	}
	if b.DateFrom.IsZero() || b.DateTo.IsZero() {
		return apperror.NewValidation("settlement period is required").
			WithDetail("field", "dateFrom/dateTo")
	}
	if b.DateTo.Before(b.DateFrom) {
		return apperror.NewValidation("dateTo must not precede dateFrom").
			WithDetail("dateFrom", b.DateFrom).
			WithDetail("dateTo", b.DateTo)
	}
	if _, err := records.ParsePaymentCondition(string(b.PaymentCondition)); err != nil {
		return err
	}
	if len(b.Details) == 0 {
		return apperror.NewValidation("batch must contain at least one line item")
	}
	for i := range b.Details {
		if b.Details[i].RecordNumber == "" || b.Details[i].DocumentNumber == "" {
			return apperror.NewValidation("detail line item identity is required").
				WithDetail("lineNo", b.Details[i].LineNo)
		}
		if b.Details[i].Amount.IsNegative() {
			return apperror.NewValidation("detail amount must not be negative").
				WithDetail("lineNo", b.Details[i].LineNo)
		}
	}
	return nil
}
