// Package reports provides read-only management reports over the
// exclusion ledger, settlement batches and invoice records.
package reports

import (
	"time"

	"liquimed/internal/core/types"
)

// PendingRow aggregates currently excluded line items for one
// client/site/exam bucket.
type PendingRow struct {
	ClientName string `db:"client_name" json:"clientName"`
	SiteCode   string `db:"site_code" json:"siteCode"`
	SiteName   string `db:"-" json:"siteName"`
	ExamType   string `db:"exam_type" json:"examType"`

	ItemCount int         `db:"item_count" json:"itemCount"`
	Amount    types.Money `db:"amount" json:"amount"`

	// CarriedOverCount counts rows excluded before the reporting period.
	CarriedOverCount int `db:"carried_over_count" json:"carriedOverCount"`
}

// PendingReport is the pending-items (pendiente) report.
type PendingReport struct {
	AsOf        time.Time   `json:"asOf"`
	Rows        []PendingRow `json:"rows"`
	ItemCount   int         `json:"itemCount"`
	TotalAmount types.Money `json:"totalAmount"`
}

// SettlementSummaryRow aggregates batches for one month and payment
// condition.
type SettlementSummaryRow struct {
	Period           string `db:"period" json:"period"` // YYYY-MM
	PaymentCondition string `db:"payment_condition" json:"paymentCondition"`

	BatchCount int `db:"batch_count" json:"batchCount"`
	LineCount  int `db:"line_count" json:"lineCount"`

	Subtotal types.Money `db:"subtotal" json:"subtotal"`
	Tax      types.Money `db:"tax" json:"tax"`
	Total    types.Money `db:"total" json:"total"`
}

// SettlementSummary is the settlement summary report over a date range.
type SettlementSummary struct {
	DateFrom time.Time              `json:"dateFrom"`
	DateTo   time.Time              `json:"dateTo"`
	Rows     []SettlementSummaryRow `json:"rows"`
	Total    types.Money            `json:"total"`
}

// InvoiceRegisterRow is one invoice record in the register report.
type InvoiceRegisterRow struct {
	Number           string      `db:"number" json:"number"`
	InvoiceNumber    string      `db:"invoice_number" json:"invoiceNumber"`
	CreditNoteNumber string      `db:"credit_note_number" json:"creditNoteNumber,omitempty"`
	State            string      `db:"state" json:"state"`
	Date             time.Time   `db:"date" json:"date"`
	BatchCount       int         `db:"batch_count" json:"batchCount"`
	Total            types.Money `db:"total" json:"total"`
}

// InvoiceRegister is the invoice register report over a date range.
type InvoiceRegister struct {
	DateFrom time.Time            `json:"dateFrom"`
	DateTo   time.Time            `json:"dateTo"`
	Rows     []InvoiceRegisterRow `json:"rows"`
	Total    types.Money          `json:"total"`
}
