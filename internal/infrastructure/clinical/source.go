// Package clinical adapts the external clinical database as a records
// source. Line items are read through a stored procedure so the schema
// of the clinical system stays out of this codebase.
package clinical

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquimed/internal/core/apperror"
	"liquimed/internal/domain/records"
	"liquimed/pkg/logger"
)

// Source implements records.Source against the clinical database. It
// holds its own pool because the clinical database is a separate server
// from the billing one.
type Source struct {
	pool *pgxpool.Pool
}

var _ records.Source = (*Source)(nil)

// NewSource creates a clinical record source over an established pool.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool}
}

// FetchLineItems calls the billing extraction procedure for the date
// range. Filters are pushed down to the procedure; empty values mean
// no filtering.
func (s *Source) FetchLineItems(ctx context.Context, dateFrom, dateTo time.Time, f records.Filters) ([]records.LineItem, error) {
	sql := `SELECT * FROM billing_lines_fetch($1, $2, $3, $4, $5)`

	var items []records.LineItem
	err := pgxscan.Select(ctx, s.pool, &items, sql,
		dateFrom, dateTo, string(f.PaymentCondition), f.ClientName, f.SiteCode)
	if err != nil {
		logger.Error(ctx, "clinical source fetch failed",
			"date_from", dateFrom.Format("2006-01-02"),
			"date_to", dateTo.Format("2006-01-02"),
			"error", err)
		return nil, apperror.NewExternalSource(err)
	}

	for i := range items {
		items[i].SiteName = records.SiteName(items[i].SiteCode)
	}

	logger.Debug(ctx, "clinical source fetch",
		"date_from", dateFrom.Format("2006-01-02"),
		"date_to", dateTo.Format("2006-01-02"),
		"items", len(items))
	return items, nil
}
