package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"liquimed/internal/core/apperror"
	"liquimed/internal/domain/exclusion"
	"liquimed/internal/domain/records"
)

const exclusionsTable = "exclusions"

var exclusionColumns = ExtractDBColumns[exclusion.Record]()

// ExclusionRepo implements exclusion.Repository on the exclusions table.
// Also serves as records.ExclusionLookup for the read side.
type ExclusionRepo struct {
	txManager *TxManager
}

var (
	_ exclusion.Repository    = (*ExclusionRepo)(nil)
	_ records.ExclusionLookup = (*ExclusionRepo)(nil)
)

// NewExclusionRepo creates a new exclusion repository.
func NewExclusionRepo(txManager *TxManager) *ExclusionRepo {
	return &ExclusionRepo{txManager: txManager}
}

func (r *ExclusionRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Upsert inserts or updates the ledger row for the record's identity.
func (r *ExclusionRepo) Upsert(ctx context.Context, rec *exclusion.Record) error {
	data := StructToMap(rec)

	q := r.builder().
		Insert(exclusionsTable).
		SetMap(data).
		Suffix(`ON CONFLICT (record_number, document_number) DO UPDATE SET
			excluded = EXCLUDED.excluded,
			amount = EXCLUDED.amount,
			client_name = EXCLUDED.client_name,
			production_unit = EXCLUDED.production_unit,
			exam_type = EXCLUDED.exam_type,
			site_code = EXCLUDED.site_code,
			updated_at = NOW(),
			released_by = '',
			released_at = NULL`)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert exclusion: %w", err)
	}
	return nil
}

// Get returns the ledger row for an identity.
func (r *ExclusionRepo) Get(ctx context.Context, identity records.Identity) (*exclusion.Record, error) {
	q := r.builder().
		Select(exclusionColumns...).
		From(exclusionsTable).
		Where(squirrel.Eq{
			"record_number":   identity.RecordNumber,
			"document_number": identity.DocumentNumber,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec exclusion.Record
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("exclusion", identity)
		}
		return nil, fmt.Errorf("get exclusion: %w", err)
	}
	return &rec, nil
}

// Marks resolves ledger state for a set of identities.
func (r *ExclusionRepo) Marks(ctx context.Context, ids []records.Identity) (map[records.Identity]records.ExclusionMark, error) {
	out := make(map[records.Identity]records.ExclusionMark, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := r.builder().
		Select("record_number", "document_number", "excluded", "created_at").
		From(exclusionsTable).
		Where(identityPredicate(ids))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query exclusion marks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity records.Identity
		var mark records.ExclusionMark
		if err := rows.Scan(&identity.RecordNumber, &identity.DocumentNumber, &mark.Excluded, &mark.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exclusion mark: %w", err)
		}
		out[identity] = mark
	}
	return out, rows.Err()
}

// Release clears the excluded flag, recording who and when.
func (r *ExclusionRepo) Release(ctx context.Context, identity records.Identity, releasedBy string) error {
	q := r.builder().
		Update(exclusionsTable).
		Set("excluded", false).
		Set("released_by", releasedBy).
		Set("released_at", squirrel.Expr("NOW()")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{
			"record_number":   identity.RecordNumber,
			"document_number": identity.DocumentNumber,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("release exclusion: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("exclusion", identity)
	}
	return nil
}

// ListPending returns currently excluded rows.
func (r *ExclusionRepo) ListPending(ctx context.Context, f exclusion.PendingFilter) ([]exclusion.Record, error) {
	q := r.builder().
		Select(exclusionColumns...).
		From(exclusionsTable).
		Where(squirrel.Eq{"excluded": true})

	if f.ClientName != "" {
		q = q.Where(squirrel.ILike{"client_name": "%" + f.ClientName + "%"})
	}
	if f.SiteCode != "" {
		q = q.Where(squirrel.Eq{"site_code": f.SiteCode})
	}
	if f.ExamType != "" {
		q = q.Where(squirrel.Eq{"exam_type": f.ExamType})
	}
	if f.CreatedBefore != nil {
		q = q.Where(squirrel.Lt{"created_at": *f.CreatedBefore})
	}

	q = q.OrderBy("created_at", "record_number")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var recs []exclusion.Record
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list pending exclusions: %w", err)
	}
	return recs, nil
}

// identityPredicate builds a row-value IN predicate over composite
// line item identities.
func identityPredicate(ids []records.Identity) squirrel.Sqlizer {
	or := make(squirrel.Or, 0, len(ids))
	for _, identity := range ids {
		or = append(or, squirrel.Eq{
			"record_number":   identity.RecordNumber,
			"document_number": identity.DocumentNumber,
		})
	}
	return or
}
