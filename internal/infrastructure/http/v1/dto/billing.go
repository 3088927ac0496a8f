package dto

// LineItemsQuery for GET /billing/line-items.
type LineItemsQuery struct {
	DateRangeQuery

	PaymentCondition string `form:"paymentCondition"`
	ClientName       string `form:"clientName"`
	SiteCode         string `form:"siteCode"`

	// Grouped returns settlement groups instead of flat line items.
	Grouped bool `form:"grouped"`
}

// ExclusionRequest for PUT /billing/exclusions. Marks or unmarks a line
// item; the context fields snapshot the item for audit and reporting.
type ExclusionRequest struct {
	RecordNumber   string `json:"recordNumber" binding:"required"`
	DocumentNumber string `json:"documentNumber" binding:"required"`
	Excluded       bool   `json:"excluded"`

	ClientName     string `json:"clientName"`
	ProductionUnit string `json:"productionUnit"`
	ExamType       string `json:"examType"`
	SiteCode       string `json:"siteCode"`
	Amount         string `json:"amount"`
}

// ReleaseRequest for POST /billing/exclusions/release.
type ReleaseRequest struct {
	RecordNumber   string `json:"recordNumber" binding:"required"`
	DocumentNumber string `json:"documentNumber" binding:"required"`
}

// PendingQuery for GET /billing/exclusions.
type PendingQuery struct {
	ClientName string `form:"clientName"`
	SiteCode   string `form:"siteCode"`
	ExamType   string `form:"examType"`

	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}
