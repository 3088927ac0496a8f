// Package records defines the clinical billing line item and the contract
// for fetching it from the external clinical database.
package records

import (
	"strings"
	"time"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
)

// PaymentCondition distinguishes credit and cash billing.
type PaymentCondition string

const (
	PaymentCredit PaymentCondition = "CREDIT"
	PaymentCash   PaymentCondition = "CASH"
)

// ParsePaymentCondition validates a payment condition value.
func ParsePaymentCondition(s string) (PaymentCondition, error) {
	switch PaymentCondition(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentCredit:
		return PaymentCredit, nil
	case PaymentCash:
		return PaymentCash, nil
	default:
		return "", apperror.NewValidation("invalid payment condition").
			WithDetail("value", s)
	}
}

// Identity is the composite natural key of a line item, unique within a
// date range extract from the clinical source.
type Identity struct {
	RecordNumber   string `db:"record_number" json:"recordNumber"`
	DocumentNumber string `db:"document_number" json:"documentNumber"`
}

// IsZero reports whether both identity fields are empty.
func (i Identity) IsZero() bool {
	return i.RecordNumber == "" && i.DocumentNumber == ""
}

// LineItem is one billable clinical event. It is created transiently per
// query; only exclusion rows and settlement detail rows persist it.
type LineItem struct {
	Identity

	ClientName            string           `db:"client_name" json:"clientName"`
	ProductionUnit        string           `db:"production_unit" json:"productionUnit"`
	ExamType              string           `db:"exam_type" json:"examType"`
	PaymentCondition      PaymentCondition `db:"payment_condition" json:"paymentCondition"`
	SiteCode              string           `db:"site_code" json:"siteCode"`
	SiteName              string           `db:"-" json:"siteName"`
	PatientName           string           `db:"patient_name" json:"patientName"`
	Amount                types.Money      `db:"amount" json:"amount"`
	ServiceStartDate      time.Time        `db:"service_start_date" json:"serviceStartDate"`
	PrestationStatus      string           `db:"prestation_status" json:"prestationStatus"`
	PrestationDescription string           `db:"prestation_description" json:"prestationDescription"`

	// Derived flags, stitched in by the read service.
	IsExcluded  bool `db:"-" json:"isExcluded"`
	IsSettled   bool `db:"-" json:"isSettled"`
	CarriedOver bool `db:"-" json:"carriedOver"`
}

// Eligible reports whether the item can enter a settlement batch.
func (li *LineItem) Eligible() bool {
	return !li.IsExcluded && !li.IsSettled
}

// Filters narrows a record source query at the source level.
type Filters struct {
	PaymentCondition PaymentCondition
	ClientName       string
	SiteCode         string
}
