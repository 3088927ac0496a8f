// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"liquimed/internal/core/id"
)

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Date Range ---

// DateRangeQuery is the service period selector shared by the billing
// and report endpoints. Dates are calendar days.
type DateRangeQuery struct {
	DateFrom time.Time `form:"dateFrom" time_format:"2006-01-02" binding:"required"`
	DateTo   time.Time `form:"dateTo" time_format:"2006-01-02" binding:"required"`
}

// --- Pagination ---

// PageQuery contains pagination and sorting parameters.
type PageQuery struct {
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
	OrderBy string `form:"orderBy"`
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
