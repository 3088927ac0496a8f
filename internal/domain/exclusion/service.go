package exclusion

import (
	"context"
	"time"

	"liquimed/internal/core/apperror"
	appctx "liquimed/internal/core/context"
	"liquimed/internal/core/tx"
	"liquimed/internal/domain/records"
	"liquimed/pkg/logger"
)

// Service provides business operations on the exclusion ledger.
type Service struct {
	repo      Repository
	settled   records.SettledLookup
	txManager tx.Manager
}

// NewService creates a new exclusion service.
func NewService(repo Repository, settled records.SettledLookup, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		settled:   settled,
		txManager: txManager,
	}
}

// SetExclusion marks or unmarks a line item as excluded from settlement.
// Idempotent upsert keyed by identity. An identity already in a settlement
// batch is immutable here; Release is the only action left for it.
func (s *Service) SetExclusion(ctx context.Context, id records.Identity, excluded bool, c Context) error {
	rec := &Record{
		Identity:       id,
		Excluded:       excluded,
		Amount:         c.Amount,
		ClientName:     c.ClientName,
		ProductionUnit: c.ProductionUnit,
		ExamType:       c.ExamType,
		SiteCode:       c.SiteCode,
		CreatedBy:      appctx.GetUserID(ctx),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := rec.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		settled, err := s.settled.Settled(ctx, []records.Identity{id})
		if err != nil {
			return err
		}
		if settled[id] {
			return apperror.NewBusinessRule(apperror.CodeAlreadySettled,
				"Line item is already settled; its exclusion cannot be changed").
				WithDetail("record_number", id.RecordNumber).
				WithDetail("document_number", id.DocumentNumber)
		}
		return s.repo.Upsert(ctx, rec)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "exclusion updated",
		"record_number", id.RecordNumber,
		"document_number", id.DocumentNumber,
		"excluded", excluded)

	return nil
}

// Release unmarks an exclusion, returning the item to the pool available for
// a future settlement run. This is the only mutation permitted once the
// owning group has been settled; the historical batch is never touched.
func (s *Service) Release(ctx context.Context, id records.Identity) error {
	if id.IsZero() {
		return apperror.NewValidation("line item identity is required").
			WithDetail("field", "recordNumber/documentNumber")
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Excluded {
			// Already released; releasing twice is harmless.
			return nil
		}
		return s.repo.Release(ctx, id, appctx.GetUserID(ctx))
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "exclusion released",
		"record_number", id.RecordNumber,
		"document_number", id.DocumentNumber)

	return nil
}

// IsExcluded reports the current ledger state of an identity.
func (s *Service) IsExcluded(ctx context.Context, id records.Identity) (bool, error) {
	if id.IsZero() {
		return false, apperror.NewValidation("line item identity is required")
	}

	marks, err := s.repo.Marks(ctx, []records.Identity{id})
	if err != nil {
		return false, err
	}
	return marks[id].Excluded, nil
}

// ListPending returns currently excluded rows for reporting.
func (s *Service) ListPending(ctx context.Context, f PendingFilter) ([]Record, error) {
	return s.repo.ListPending(ctx, f)
}
