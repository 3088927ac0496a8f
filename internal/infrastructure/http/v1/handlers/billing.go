package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/exclusion"
	"liquimed/internal/domain/grouping"
	"liquimed/internal/domain/records"
	"liquimed/internal/infrastructure/http/v1/dto"
)

// BillingHandler exposes the clinical line item read side and the
// exclusion ledger.
type BillingHandler struct {
	*BaseHandler
	records    *records.Service
	exclusions *exclusion.Service
}

// NewBillingHandler creates a new billing handler.
func NewBillingHandler(base *BaseHandler, recordsSvc *records.Service, exclusions *exclusion.Service) *BillingHandler {
	return &BillingHandler{
		BaseHandler: base,
		records:     recordsSvc,
		exclusions:  exclusions,
	}
}

// LineItems handles GET /billing/line-items
//
// Returns the period snapshot with exclusion and settlement state
// stitched in. With grouped=true the items come back aggregated into
// settlement groups.
func (h *BillingHandler) LineItems(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.LineItemsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	var cond records.PaymentCondition
	if q.PaymentCondition != "" {
		parsed, err := records.ParsePaymentCondition(q.PaymentCondition)
		if err != nil {
			h.Error(c, err)
			return
		}
		cond = parsed
	}

	items, err := h.records.FetchWithStatus(ctx, q.DateFrom, q.DateTo, records.Filters{
		PaymentCondition: cond,
		ClientName:       q.ClientName,
		SiteCode:         q.SiteCode,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	if q.Grouped {
		groups := grouping.Group(items, grouping.ByClientUnitExam)
		c.JSON(http.StatusOK, gin.H{"groups": groups, "itemCount": len(items)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "itemCount": len(items)})
}

// SetExclusion handles PUT /billing/exclusions
func (h *BillingHandler) SetExclusion(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ExclusionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	amount := types.Zero()
	if req.Amount != "" {
		parsed, err := types.NewMoneyFromString(req.Amount)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid amount").WithDetail("amount", req.Amount))
			return
		}
		amount = parsed
	}

	identity := records.Identity{
		RecordNumber:   req.RecordNumber,
		DocumentNumber: req.DocumentNumber,
	}
	err := h.exclusions.SetExclusion(ctx, identity, req.Excluded, exclusion.Context{
		ClientName:     req.ClientName,
		ProductionUnit: req.ProductionUnit,
		ExamType:       req.ExamType,
		SiteCode:       req.SiteCode,
		Amount:         amount,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "exclusion updated")
}

// Release handles POST /billing/exclusions/release
func (h *BillingHandler) Release(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ReleaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	err := h.exclusions.Release(ctx, records.Identity{
		RecordNumber:   req.RecordNumber,
		DocumentNumber: req.DocumentNumber,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "exclusion released")
}

// ListPending handles GET /billing/exclusions
func (h *BillingHandler) ListPending(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.PendingQuery
	if !h.BindQuery(c, &q) {
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	rows, err := h.exclusions.ListPending(ctx, exclusion.PendingFilter{
		ClientName: q.ClientName,
		SiteCode:   q.SiteCode,
		ExamType:   q.ExamType,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": rows, "limit": q.Limit, "offset": q.Offset})
}
