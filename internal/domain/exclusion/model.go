// Package exclusion tracks line items manually held out of settlement
// ("pendiente"). The ledger is a keyed store over line item identity; group
// state preconditions are enforced by the settlement layer, not here.
package exclusion

import (
	"context"
	"time"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/records"
)

// Record is one persisted exclusion decision. Upserts are idempotent on
// identity; there is exactly one row per line item ever excluded.
type Record struct {
	records.Identity

	Excluded bool `db:"excluded" json:"excluded"`

	// Amount snapshot at the time of the decision, for audit.
	Amount types.Money `db:"amount" json:"amount"`

	// Context fields for audit and reporting.
	ClientName     string `db:"client_name" json:"clientName"`
	ProductionUnit string `db:"production_unit" json:"productionUnit"`
	ExamType       string `db:"exam_type" json:"examType"`
	SiteCode       string `db:"site_code" json:"siteCode"`

	CreatedBy  string     `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
	ReleasedBy string     `db:"released_by" json:"releasedBy,omitempty"`
	ReleasedAt *time.Time `db:"released_at" json:"releasedAt,omitempty"`
}

// Validate implements entity.Validatable.
func (r *Record) Validate(ctx context.Context) error {
	if r.Identity.IsZero() {
		return apperror.NewValidation("line item identity is required").
			WithDetail("field", "recordNumber/documentNumber")
	}
	if r.Amount.IsNegative() {
		return apperror.NewValidation("amount must not be negative").
			WithDetail("field", "amount")
	}
	return nil
}

// Context carries the audit fields of a SetExclusion call.
type Context struct {
	ClientName     string
	ProductionUnit string
	ExamType       string
	SiteCode       string
	Amount         types.Money
}
