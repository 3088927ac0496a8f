package dto

import "time"

// PendingReportQuery for GET /reports/pending.
type PendingReportQuery struct {
	ClientName string `form:"clientName"`
	SiteCode   string `form:"siteCode"`

	// PeriodStart marks rows excluded before it as carried over.
	// Defaults to the first day of the current month.
	PeriodStart *time.Time `form:"periodStart" time_format:"2006-01-02"`
}
