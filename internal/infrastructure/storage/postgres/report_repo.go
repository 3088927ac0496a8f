package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"liquimed/internal/domain/reports"
)

// ReportRepo implements reports.Repository with aggregate queries over
// the exclusion ledger, batch tables and invoice records.
type ReportRepo struct {
	txManager *TxManager
}

var _ reports.Repository = (*ReportRepo)(nil)

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *TxManager) *ReportRepo {
	return &ReportRepo{txManager: txManager}
}

// PendingSummary aggregates currently excluded ledger rows per
// client/site/exam bucket.
func (r *ReportRepo) PendingSummary(ctx context.Context, f reports.PendingFilter) ([]reports.PendingRow, error) {
	sql := `
		SELECT
			client_name,
			site_code,
			exam_type,
			COUNT(*)                                   AS item_count,
			COALESCE(SUM(amount), 0)                   AS amount,
			COUNT(*) FILTER (WHERE created_at < $1)    AS carried_over_count
		FROM exclusions
		WHERE excluded = TRUE
		  AND ($2 = '' OR client_name ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR site_code = $3)
		GROUP BY client_name, site_code, exam_type
		ORDER BY client_name, site_code, exam_type
	`

	var rows []reports.PendingRow
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql,
		f.PeriodStart, f.ClientName, f.SiteCode)
	if err != nil {
		return nil, fmt.Errorf("pending summary: %w", err)
	}
	return rows, nil
}

// SettlementSummary aggregates active batches per month and payment
// condition. Header totals and detail line counts are aggregated
// separately so the join does not multiply the amounts.
func (r *ReportRepo) SettlementSummary(ctx context.Context, dateFrom, dateTo time.Time) ([]reports.SettlementSummaryRow, error) {
	sql := `
		WITH headers AS (
			SELECT id, to_char(date, 'YYYY-MM') AS period, payment_condition,
			       subtotal, tax, total
			FROM settlement_batches
			WHERE state = 'ACTIVE' AND date >= $1 AND date <= $2
		),
		lines AS (
			SELECT batch_id, COUNT(*) AS line_count
			FROM settlement_details
			GROUP BY batch_id
		)
		SELECT
			h.period,
			h.payment_condition,
			COUNT(*)                       AS batch_count,
			COALESCE(SUM(l.line_count), 0) AS line_count,
			COALESCE(SUM(h.subtotal), 0)   AS subtotal,
			COALESCE(SUM(h.tax), 0)        AS tax,
			COALESCE(SUM(h.total), 0)      AS total
		FROM headers h
		LEFT JOIN lines l ON l.batch_id = h.id
		GROUP BY h.period, h.payment_condition
		ORDER BY h.period, h.payment_condition
	`

	var rows []reports.SettlementSummaryRow
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, dateFrom, dateTo)
	if err != nil {
		return nil, fmt.Errorf("settlement summary: %w", err)
	}
	return rows, nil
}

// InvoiceRegister lists invoice records over the date range, voided
// ones included.
func (r *ReportRepo) InvoiceRegister(ctx context.Context, dateFrom, dateTo time.Time) ([]reports.InvoiceRegisterRow, error) {
	sql := `
		SELECT number, invoice_number, credit_note_number, state, date,
		       batch_count, total
		FROM invoices
		WHERE date >= $1 AND date <= $2
		ORDER BY date, number
	`

	var rows []reports.InvoiceRegisterRow
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, dateFrom, dateTo)
	if err != nil {
		return nil, fmt.Errorf("invoice register: %w", err)
	}
	return rows, nil
}
