package dto

import "time"

// CreateInvoiceRequest for POST /invoices.
type CreateInvoiceRequest struct {
	// BatchIDs selects the settlement batches to invoice together.
	BatchIDs []string `json:"batchIds" binding:"required,min=1"`

	// InvoiceNumber is the fiscal document number issued externally.
	InvoiceNumber string `json:"invoiceNumber" binding:"required"`

	Comment string `json:"comment"`
}

// VoidInvoiceRequest for POST /invoices/:id/void.
type VoidInvoiceRequest struct {
	// CreditNoteNumber is the fiscal credit note justifying the void.
	CreditNoteNumber string `json:"creditNoteNumber" binding:"required"`
}

// VoidByBatchesRequest for POST /invoices/void. Resolves the invoice
// from the selected batches; partial selections void the whole invoice.
type VoidByBatchesRequest struct {
	BatchIDs         []string `json:"batchIds" binding:"required,min=1"`
	CreditNoteNumber string   `json:"creditNoteNumber" binding:"required"`
}

// InvoiceListQuery for GET /invoices.
type InvoiceListQuery struct {
	DateFrom *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo   *time.Time `form:"dateTo" time_format:"2006-01-02"`

	State  string `form:"state"`
	Search string `form:"search"`

	PageQuery
}
