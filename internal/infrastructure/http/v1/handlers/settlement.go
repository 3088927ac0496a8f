package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"liquimed/internal/domain/export"
	"liquimed/internal/domain/records"
	"liquimed/internal/domain/settlement"
	"liquimed/internal/infrastructure/http/v1/dto"
	"liquimed/internal/infrastructure/metrics"
)

// SettlementHandler handles settlement batch endpoints.
type SettlementHandler struct {
	*BaseHandler
	service *settlement.Service
}

// NewSettlementHandler creates a new settlement handler.
func NewSettlementHandler(base *BaseHandler, service *settlement.Service) *SettlementHandler {
	return &SettlementHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Settle handles POST /settlements
func (h *SettlementHandler) Settle(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SettleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	start := time.Now()
	batch, err := h.service.Settle(ctx, req.ToDomain())
	if err != nil {
		metrics.ObserveSettle(metrics.ResultError, 0, time.Since(start))
		h.Error(c, err)
		return
	}
	metrics.ObserveSettle(metrics.ResultSuccess, len(batch.Details), time.Since(start))

	c.JSON(http.StatusCreated, batch)
}

// List handles GET /settlements
func (h *SettlementHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.BatchListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := settlement.ListFilter{
		DateFrom:         q.DateFrom,
		DateTo:           q.DateTo,
		State:            settlement.BatchState(q.State),
		PaymentCondition: records.PaymentCondition(q.PaymentCondition),
		Invoiced:         q.Invoiced,
		Search:           q.Search,
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

// Get handles GET /settlements/:id
func (h *SettlementHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	batchID, ok := h.ParseID(c)
	if !ok {
		return
	}

	batch, err := h.service.Get(ctx, batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// GetByNumber handles GET /settlements/by-number/:number
func (h *SettlementHandler) GetByNumber(c *gin.Context) {
	ctx := c.Request.Context()

	batch, err := h.service.GetByNumber(ctx, c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// Void handles POST /settlements/:id/void
func (h *SettlementHandler) Void(c *gin.Context) {
	ctx := c.Request.Context()

	batchID, ok := h.ParseID(c)
	if !ok {
		return
	}

	batch, err := h.service.Void(ctx, batchID)
	if err != nil {
		metrics.IncVoid("batch", metrics.ResultError)
		h.Error(c, err)
		return
	}
	metrics.IncVoid("batch", metrics.ResultSuccess)

	c.JSON(http.StatusOK, batch)
}

// Export handles GET /settlements/:id/export?format=xlsx|pdf
func (h *SettlementHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	batchID, ok := h.ParseID(c)
	if !ok {
		return
	}

	format, err := export.ParseFormat(c.DefaultQuery("format", "xlsx"))
	if err != nil {
		h.Error(c, err)
		return
	}

	batch, err := h.service.Get(ctx, batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	data, err := export.Batch(batch, format)
	if err != nil {
		metrics.IncExport(string(format), metrics.ResultError)
		h.Error(c, err)
		return
	}
	metrics.IncExport(string(format), metrics.ResultSuccess)

	c.Header("Content-Disposition", `attachment; filename="`+format.Filename(batch.Number)+`"`)
	c.Data(http.StatusOK, format.ContentType(), data)
}
