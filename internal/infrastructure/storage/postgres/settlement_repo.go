package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/id"
	"liquimed/internal/domain/listing"
	"liquimed/internal/domain/records"
	"liquimed/internal/domain/settlement"
)

const (
	batchesTable = "settlement_batches"
	detailsTable = "settlement_details"
	settledTable = "settled_items"
)

var (
	batchColumns  = ExtractDBColumns[settlement.Batch]()
	detailColumns = ExtractDBColumns[settlement.Detail]()
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// SettlementRepo implements settlement.Repository on the batch tables
// and the settled-items registry. Also serves as records.SettledLookup.
type SettlementRepo struct {
	txManager *TxManager
}

var (
	_ settlement.Repository = (*SettlementRepo)(nil)
	_ records.SettledLookup = (*SettlementRepo)(nil)
)

// NewSettlementRepo creates a new settlement repository.
func NewSettlementRepo(txManager *TxManager) *SettlementRepo {
	return &SettlementRepo{txManager: txManager}
}

func (r *SettlementRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts the batch header.
func (r *SettlementRepo) Create(ctx context.Context, b *settlement.Batch) error {
	q := r.builder().
		Insert(batchesTable).
		SetMap(StructToMap(b))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("Settlement batch", "number", b.Number)
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// SaveDetails inserts the denormalized detail lines.
func (r *SettlementRepo) SaveDetails(ctx context.Context, details []settlement.Detail) error {
	if len(details) == 0 {
		return nil
	}

	q := r.builder().
		Insert(detailsTable).
		Columns(detailColumns...)
	for i := range details {
		data := StructToMap(&details[i])
		values := make([]any, len(detailColumns))
		for j, col := range detailColumns {
			values[j] = data[col]
		}
		q = q.Values(values...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert details: %w", err)
	}
	return nil
}

// RegisterSettled inserts registry rows for the identities. The primary
// key on (record_number, document_number) is the hard double-settle guard.
func (r *SettlementRepo) RegisterSettled(ctx context.Context, batchID id.ID, batchNumber string, ids []records.Identity) error {
	if len(ids) == 0 {
		return nil
	}

	q := r.builder().
		Insert(settledTable).
		Columns("record_number", "document_number", "batch_id", "batch_number", "settled_at")
	for _, identity := range ids {
		q = q.Values(identity.RecordNumber, identity.DocumentNumber, batchID, batchNumber, squirrel.Expr("NOW()"))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewBusinessRule(apperror.CodeAlreadySettled,
				"Line item is already settled in another batch")
		}
		return fmt.Errorf("register settled: %w", err)
	}
	return nil
}

// LockSettled locks existing registry rows (FOR UPDATE) and reports which
// identities are present. Must run inside a transaction.
func (r *SettlementRepo) LockSettled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error) {
	return r.settledWith(ctx, ids, true)
}

// Settled reports registry state without locking.
func (r *SettlementRepo) Settled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error) {
	return r.settledWith(ctx, ids, false)
}

func (r *SettlementRepo) settledWith(ctx context.Context, ids []records.Identity, lock bool) (map[records.Identity]bool, error) {
	out := make(map[records.Identity]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := r.builder().
		Select("record_number", "document_number").
		From(settledTable).
		Where(identityPredicate(ids))
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query settled items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity records.Identity
		if err := rows.Scan(&identity.RecordNumber, &identity.DocumentNumber); err != nil {
			return nil, fmt.Errorf("scan settled item: %w", err)
		}
		out[identity] = true
	}
	return out, rows.Err()
}

// GetByID returns the batch header.
func (r *SettlementRepo) GetByID(ctx context.Context, batchID id.ID) (*settlement.Batch, error) {
	return r.getBatch(ctx, squirrel.Eq{"id": batchID}, batchID.String())
}

// GetByNumber returns the batch header by its LQ code.
func (r *SettlementRepo) GetByNumber(ctx context.Context, number string) (*settlement.Batch, error) {
	return r.getBatch(ctx, squirrel.Eq{"number": number}, number)
}

func (r *SettlementRepo) getBatch(ctx context.Context, pred squirrel.Sqlizer, key string) (*settlement.Batch, error) {
	q := r.builder().
		Select(batchColumns...).
		From(batchesTable).
		Where(pred)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b settlement.Batch
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("Settlement batch", key)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// GetDetails returns detail lines ordered by line number.
func (r *SettlementRepo) GetDetails(ctx context.Context, batchID id.ID) ([]settlement.Detail, error) {
	q := r.builder().
		Select(detailColumns...).
		From(detailsTable).
		Where(squirrel.Eq{"batch_id": batchID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var details []settlement.Detail
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &details, sql, args...); err != nil {
		return nil, fmt.Errorf("get details: %w", err)
	}
	return details, nil
}

// List returns batch headers matching the filter.
func (r *SettlementRepo) List(ctx context.Context, f settlement.ListFilter) (*listing.Result[settlement.Batch], error) {
	result := &listing.Result[settlement.Batch]{
		Limit:  f.Page.Limit,
		Offset: f.Page.Offset,
	}

	q := r.builder().
		Select(batchColumns...).
		From(batchesTable)

	if f.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date_from": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date_to": *f.DateTo})
	}
	if f.State != "" {
		q = q.Where(squirrel.Eq{"state": f.State})
	}
	if f.PaymentCondition != "" {
		q = q.Where(squirrel.Eq{"payment_condition": f.PaymentCondition})
	}
	if f.Invoiced != nil {
		if *f.Invoiced {
			q = q.Where("invoice_id IS NOT NULL")
		} else {
			q = q.Where("invoice_id IS NULL")
		}
	}
	if f.Search != "" {
		q = q.Where(squirrel.ILike{"number": "%" + f.Search + "%"})
	}

	countQ := r.builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return nil, fmt.Errorf("count batches: %w", err)
	}

	orderBy, err := parseOrderBy(f.Page.OrderBy, map[string]string{
		"number":     "number",
		"date":       "date",
		"date_from":  "date_from",
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
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return result, nil
}

// Update saves header changes with an optimistic lock on version.
func (r *SettlementRepo) Update(ctx context.Context, b *settlement.Batch) error {
	data := StructToMap(b)

	// The entity carries the already-incremented version; match the
	// stored row against the previous one.
	newVersion, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("batch has no version field")
	}

	delete(data, "id")
	delete(data, "version")
	delete(data, "created_at")
	delete(data, "created_by")

	q := r.builder().
		Update(batchesTable).
		SetMap(data).
		Set("version", newVersion).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": b.ID, "version": newVersion - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("Settlement batch", b.ID)
	}
	return nil
}

// LockForInvoicing locks the batch headers and returns them.
func (r *SettlementRepo) LockForInvoicing(ctx context.Context, batchIDs []id.ID) ([]settlement.Batch, error) {
	q := r.builder().
		Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchIDs}).
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []settlement.Batch
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("lock batches: %w", err)
	}
	return batches, nil
}

// LinkInvoice sets the invoice link on the batches.
func (r *SettlementRepo) LinkInvoice(ctx context.Context, batchIDs []id.ID, invoiceID id.ID) error {
	q := r.builder().
		Update(batchesTable).
		Set("invoice_id", invoiceID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": batchIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("link invoice: %w", err)
	}
	if int(result.RowsAffected()) != len(batchIDs) {
		return apperror.NewNotFound("Settlement batch", batchIDs)
	}
	return nil
}

// UnlinkInvoice clears the invoice link on all batches of an invoice.
func (r *SettlementRepo) UnlinkInvoice(ctx context.Context, invoiceID id.ID) ([]id.ID, error) {
	sql := `
		UPDATE settlement_batches
		SET invoice_id = NULL, updated_at = NOW(), version = version + 1
		WHERE invoice_id = $1
		RETURNING id
	`

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("unlink invoice: %w", err)
	}
	defer rows.Close()

	var affected []id.ID
	for rows.Next() {
		var batchID id.ID
		if err := rows.Scan(&batchID); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		affected = append(affected, batchID)
	}
	return affected, rows.Err()
}

// isUniqueViolation reports a PostgreSQL unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// parseOrderBy maps an API sort expression ("-date", "number") onto a
// whitelisted column, falling back to def when empty.
func parseOrderBy(orderBy string, allowed map[string]string, def string) (string, error) {
	if orderBy == "" {
		return def, nil
	}

	desc := false
	if orderBy[0] == '-' {
		desc = true
		orderBy = orderBy[1:]
	}

	col, ok := allowed[orderBy]
	if !ok {
		return "", apperror.NewValidation("invalid sort field").
			WithDetail("orderBy", orderBy)
	}
	if desc {
		return col + " DESC", nil
	}
	return col + " ASC", nil
}
