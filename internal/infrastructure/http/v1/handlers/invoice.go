package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liquimed/internal/domain/invoicing"
	"liquimed/internal/infrastructure/http/v1/dto"
	"liquimed/internal/infrastructure/metrics"
)

// InvoiceHandler handles invoice record endpoints.
type InvoiceHandler struct {
	*BaseHandler
	service *invoicing.Service
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(base *BaseHandler, service *invoicing.Service) *InvoiceHandler {
	return &InvoiceHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	batchIDs, ok := h.ParseIDs(c, req.BatchIDs)
	if !ok {
		return
	}

	invoice, err := h.service.Invoice(ctx, invoicing.InvoiceRequest{
		BatchIDs:      batchIDs,
		InvoiceNumber: req.InvoiceNumber,
		Comment:       req.Comment,
	})
	if err != nil {
		metrics.IncInvoice(metrics.ResultError)
		h.Error(c, err)
		return
	}
	metrics.IncInvoice(metrics.ResultSuccess)

	c.JSON(http.StatusCreated, invoice)
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.InvoiceListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := invoicing.ListFilter{
		DateFrom: q.DateFrom,
		DateTo:   q.DateTo,
		State:    invoicing.State(q.State),
		Search:   q.Search,
	}
	filter.Page.Limit = q.Limit
	filter.Page.Offset = q.Offset
	filter.Page.OrderBy = q.OrderBy
	if filter.Page.Limit == 0 {
		filter.Page.Limit = 50
	}

	result, err := h.service.List(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      result.Items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	invoiceID, ok := h.ParseID(c)
	if !ok {
		return
	}

	invoice, err := h.service.Get(ctx, invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// Void handles POST /invoices/:id/void
func (h *InvoiceHandler) Void(c *gin.Context) {
	ctx := c.Request.Context()

	invoiceID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.VoidInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	invoice, err := h.service.Void(ctx, invoiceID, req.CreditNoteNumber)
	if err != nil {
		metrics.IncVoid("invoice", metrics.ResultError)
		h.Error(c, err)
		return
	}
	metrics.IncVoid("invoice", metrics.ResultSuccess)

	c.JSON(http.StatusOK, invoice)
}

// VoidByBatches handles POST /invoices/void
//
// Resolves the invoice from the selected batches. Selecting a subset of
// an invoice's batches still voids the whole invoice; selections that
// span more than one invoice are rejected.
func (h *InvoiceHandler) VoidByBatches(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.VoidByBatchesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	batchIDs, ok := h.ParseIDs(c, req.BatchIDs)
	if !ok {
		return
	}

	invoice, err := h.service.VoidForBatches(ctx, batchIDs, req.CreditNoteNumber)
	if err != nil {
		metrics.IncVoid("invoice", metrics.ResultError)
		h.Error(c, err)
		return
	}
	metrics.IncVoid("invoice", metrics.ResultSuccess)

	c.JSON(http.StatusOK, invoice)
}
