package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"liquimed/internal/domain/reports"
	"liquimed/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles management report endpoints.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Pending handles GET /reports/pending
func (h *ReportsHandler) Pending(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.PendingReportQuery
	if !h.BindQuery(c, &q) {
		return
	}

	periodStart := firstOfMonth(time.Now().UTC())
	if q.PeriodStart != nil {
		periodStart = *q.PeriodStart
	}

	report, err := h.service.Pending(ctx, reports.PendingFilter{
		ClientName:  q.ClientName,
		SiteCode:    q.SiteCode,
		PeriodStart: periodStart,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Settlements handles GET /reports/settlements
func (h *ReportsHandler) Settlements(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.DateRangeQuery
	if !h.BindQuery(c, &q) {
		return
	}

	summary, err := h.service.Settlements(ctx, q.DateFrom, q.DateTo)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Invoices handles GET /reports/invoices
func (h *ReportsHandler) Invoices(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.DateRangeQuery
	if !h.BindQuery(c, &q) {
		return
	}

	register, err := h.service.Invoices(ctx, q.DateFrom, q.DateTo)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, register)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
