package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/id"
	"liquimed/internal/domain/invoicing"
	"liquimed/internal/domain/listing"
)

const invoicesTable = "invoices"

var invoiceColumns = ExtractDBColumns[invoicing.Invoice]()

// InvoiceRepo implements invoicing.Repository.
type InvoiceRepo struct {
	txManager *TxManager
}

var _ invoicing.Repository = (*InvoiceRepo)(nil)

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo(txManager *TxManager) *InvoiceRepo {
	return &InvoiceRepo{txManager: txManager}
}

func (r *InvoiceRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts the invoice record.
func (r *InvoiceRepo) Create(ctx context.Context, inv *invoicing.Invoice) error {
	q := r.builder().
		Insert(invoicesTable).
		SetMap(StructToMap(inv))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("Invoice record", "number", inv.Number)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID returns the invoice record.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*invoicing.Invoice, error) {
	return r.get(ctx, squirrel.Eq{"id": invoiceID}, invoiceID.String(), false)
}

// GetForUpdate returns the invoice under a row lock.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*invoicing.Invoice, error) {
	return r.get(ctx, squirrel.Eq{"id": invoiceID}, invoiceID.String(), true)
}

// GetByNumber returns the invoice by its VAL code.
func (r *InvoiceRepo) GetByNumber(ctx context.Context, number string) (*invoicing.Invoice, error) {
	return r.get(ctx, squirrel.Eq{"number": number}, number, false)
}

func (r *InvoiceRepo) get(ctx context.Context, pred squirrel.Sqlizer, key string, lock bool) (*invoicing.Invoice, error) {
	q := r.builder().
		Select(invoiceColumns...).
		From(invoicesTable).
		Where(pred)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var inv invoicing.Invoice
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("Invoice record", key)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	if err := r.loadBatchIDs(ctx, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepo) loadBatchIDs(ctx context.Context, inv *invoicing.Invoice) error {
	sql := `SELECT id FROM settlement_batches WHERE invoice_id = $1 ORDER BY number`

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, inv.ID)
	if err != nil {
		return fmt.Errorf("load batch ids: %w", err)
	}
	defer rows.Close()

	inv.BatchIDs = inv.BatchIDs[:0]
	for rows.Next() {
		var batchID id.ID
		if err := rows.Scan(&batchID); err != nil {
			return fmt.Errorf("scan batch id: %w", err)
		}
		inv.BatchIDs = append(inv.BatchIDs, batchID)
	}
	return rows.Err()
}

// List returns invoices matching the filter.
func (r *InvoiceRepo) List(ctx context.Context, f invoicing.ListFilter) (*listing.Result[invoicing.Invoice], error) {
	result := &listing.Result[invoicing.Invoice]{
		Limit:  f.Page.Limit,
		Offset: f.Page.Offset,
	}

	q := r.builder().
		Select(invoiceColumns...).
		From(invoicesTable)

	if f.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *f.DateTo})
	}
	if f.State != "" {
		q = q.Where(squirrel.Eq{"state": f.State})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"number": pattern},
			squirrel.ILike{"invoice_number": pattern},
		})
	}

	countQ := r.builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}

	orderBy, err := parseOrderBy(f.Page.OrderBy, map[string]string{
		"number":     "number",
		"date":       "date",
		"total":      "total",
		"created_at": "created_at",
	}, "date DESC, number DESC")
	if err != nil {
		return nil, err
	}
	q = q.OrderBy(orderBy)

	if f.Page.Limit > 0 {
		q = q.Limit(uint64(f.Page.Limit))
	}
	if f.Page.Offset > 0 {
		q = q.Offset(uint64(f.Page.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return result, nil
}

// Update saves changes with an optimistic lock on version.
func (r *InvoiceRepo) Update(ctx context.Context, inv *invoicing.Invoice) error {
	data := StructToMap(inv)

	newVersion, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("invoice has no version field")
	}

	delete(data, "id")
	delete(data, "version")
	delete(data, "created_at")
	delete(data, "created_by")

	q := r.builder().
		Update(invoicesTable).
		SetMap(data).
		Set("version", newVersion).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": inv.ID, "version": newVersion - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("Invoice record", inv.ID)
	}
	return nil
}
