package dto

import (
	"time"

	"liquimed/internal/domain/settlement"
)

// SettleRequest for POST /settlements. Dates are RFC 3339 timestamps,
// the only layout JSON binding accepts for time.Time.
type SettleRequest struct {
	DateFrom         time.Time `json:"dateFrom" binding:"required"`
	DateTo           time.Time `json:"dateTo" binding:"required"`
	PaymentCondition string    `json:"paymentCondition" binding:"required"`

	GroupIDs []string `json:"groupIds" binding:"required,min=1"`

	ClientName string `json:"clientName"`
	SiteCode   string `json:"siteCode"`
	Comment    string `json:"comment"`
}

// ToDomain converts to the domain request.
func (r *SettleRequest) ToDomain() settlement.SettleRequest {
	return settlement.SettleRequest{
		DateFrom:         r.DateFrom,
		DateTo:           r.DateTo,
		PaymentCondition: r.PaymentCondition,
		GroupIDs:         r.GroupIDs,
		ClientName:       r.ClientName,
		SiteCode:         r.SiteCode,
		Comment:          r.Comment,
	}
}

// BatchListQuery for GET /settlements.
type BatchListQuery struct {
	DateFrom *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo   *time.Time `form:"dateTo" time_format:"2006-01-02"`

	State            string `form:"state"`
	PaymentCondition string `form:"paymentCondition"`
	Invoiced         *bool  `form:"invoiced"`
	Search           string `form:"search"`

	PageQuery
}
