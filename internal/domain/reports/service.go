package reports

import (
	"context"
	"time"

	"liquimed/internal/core/types"
	"liquimed/internal/domain/records"
)

// PendingFilter narrows the pending-items report.
type PendingFilter struct {
	ClientName string
	SiteCode   string

	// PeriodStart marks rows excluded before it as carried over.
	PeriodStart time.Time
}

// Repository runs the aggregate report queries.
type Repository interface {
	// PendingSummary aggregates currently excluded ledger rows.
	PendingSummary(ctx context.Context, f PendingFilter) ([]PendingRow, error)

	// SettlementSummary aggregates active batches by month and payment
	// condition over the date range.
	SettlementSummary(ctx context.Context, dateFrom, dateTo time.Time) ([]SettlementSummaryRow, error)

	// InvoiceRegister lists invoice records over the date range.
	InvoiceRegister(ctx context.Context, dateFrom, dateTo time.Time) ([]InvoiceRegisterRow, error)
}

// Service assembles management reports.
type Service struct {
	repo Repository
}

// NewService creates a new report service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Pending builds the pending-items report.
func (s *Service) Pending(ctx context.Context, f PendingFilter) (*PendingReport, error) {
	rows, err := s.repo.PendingSummary(ctx, f)
	if err != nil {
		return nil, err
	}

	report := &PendingReport{
		AsOf:        time.Now().UTC(),
		Rows:        rows,
		TotalAmount: types.Zero(),
	}
	for i := range rows {
		report.Rows[i].SiteName = records.SiteName(rows[i].SiteCode)
		report.ItemCount += rows[i].ItemCount
		report.TotalAmount = report.TotalAmount.Add(rows[i].Amount)
	}
	return report, nil
}

// Settlements builds the settlement summary report.
func (s *Service) Settlements(ctx context.Context, dateFrom, dateTo time.Time) (*SettlementSummary, error) {
	if err := records.ValidateRange(dateFrom, dateTo); err != nil {
		return nil, err
	}
	rows, err := s.repo.SettlementSummary(ctx, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}

	summary := &SettlementSummary{
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Rows:     rows,
		Total:    types.Zero(),
	}
	for i := range rows {
		summary.Total = summary.Total.Add(rows[i].Total)
	}
	return summary, nil
}

// Invoices builds the invoice register report.
func (s *Service) Invoices(ctx context.Context, dateFrom, dateTo time.Time) (*InvoiceRegister, error) {
	if err := records.ValidateRange(dateFrom, dateTo); err != nil {
		return nil, err
	}
	rows, err := s.repo.InvoiceRegister(ctx, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}

	register := &InvoiceRegister{
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Rows:     rows,
		Total:    types.Zero(),
	}
	for i := range rows {
		// Voided invoices appear in the register but do not count
		// toward the total.
		if rows[i].State == "VOIDED" {
			continue
		}
		register.Total = register.Total.Add(rows[i].Total)
	}
	return register, nil
}
