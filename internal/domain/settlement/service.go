package settlement

import (
	"context"
	"time"

	"liquimed/internal/core/apperror"
	appctx "liquimed/internal/core/context"
	"liquimed/internal/core/id"
	"liquimed/internal/core/numerator"
	"liquimed/internal/core/tx"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/audit"
	"liquimed/internal/domain/grouping"
	"liquimed/internal/domain/listing"
	"liquimed/internal/domain/notify"
	"liquimed/internal/domain/records"
	"liquimed/pkg/logger"
)

const entityType = "settlement_batch"

// numberingConfig is the LQ document numbering scheme.
var numberingConfig = numerator.DefaultConfig("LQ")

// Service implements the settlement workflow: selecting groups from a
// fresh snapshot, settling them atomically under a generated LQ code,
// and voiding batches.
type Service struct {
	records   *records.Service
	repo      Repository
	numbers   numerator.Generator
	txManager tx.Manager
	audit     audit.Recorder
	notifier  notify.Notifier
}

// NewService creates a new settlement service.
func NewService(
	recordsSvc *records.Service,
	repo Repository,
	numbers numerator.Generator,
	txManager tx.Manager,
	recorder audit.Recorder,
	notifier notify.Notifier,
) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Service{
		records:   recordsSvc,
		repo:      repo,
		numbers:   numbers,
		txManager: txManager,
		audit:     recorder,
		notifier:  notifier,
	}
}

// SettleRequest describes one settlement run.
type SettleRequest struct {
	DateFrom         time.Time
	DateTo           time.Time
	PaymentCondition string

	// GroupIDs selects the settlement groups to settle.
	GroupIDs []string

	// Optional source-level filters, applied when building the snapshot.
	ClientName string
	SiteCode   string

	Comment string
}

// Settle runs one settlement: it rebuilds the group snapshot, collects the
// eligible members of the selected groups and writes the batch, its detail
// lines and the settled-items registry rows in a single transaction.
//
// Line items settled concurrently between snapshot and commit are detected
// under row locks and skipped; if that leaves nothing to settle the
// transaction is rolled back with CodeNothingToSettle.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Batch, error) {
	cond, err := records.ParsePaymentCondition(req.PaymentCondition)
	if err != nil {
		return nil, err
	}
	if err := records.ValidateRange(req.DateFrom, req.DateTo); err != nil {
		return nil, err
	}
	if len(req.GroupIDs) == 0 {
		return nil, apperror.NewValidation("at least one settlement group is required").
			WithDetail("field", "groupIds")
	}

	items, err := s.records.FetchWithStatus(ctx, req.DateFrom, req.DateTo, records.Filters{
		PaymentCondition: cond,
		ClientName:       req.ClientName,
		SiteCode:         req.SiteCode,
	})
	if err != nil {
		return nil, err
	}

	groups := grouping.Group(items, grouping.ByClientUnitExam)

	wanted := make(map[string]struct{}, len(req.GroupIDs))
	for _, gid := range req.GroupIDs {
		wanted[gid] = struct{}{}
	}
	selected := grouping.Select(groups, wanted)
	if len(selected) != len(wanted) {
		return nil, apperror.NewValidation("unknown settlement group in selection").
			WithDetail("requested", len(wanted)).
			WithDetail("found", len(selected))
	}

	batch := NewBatch(req.DateFrom, req.DateTo, cond)
	batch.Comment = req.Comment
	batch.CreatedBy = appctx.GetUserID(ctx)
	batch.UpdatedBy = batch.CreatedBy
	batch.Details = collectDetails(batch.ID, selected)

	if len(batch.Details) == 0 {
		return nil, apperror.NewNothingToSettle()
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		ids := make([]records.Identity, len(batch.Details))
		for i := range batch.Details {
			ids[i] = batch.Details[i].Identity()
		}

		// Lock existing registry rows and drop races that settled the
		// same items after our snapshot was taken.
		settled, err := s.repo.LockSettled(ctx, ids)
		if err != nil {
			return err
		}
		batch.Details = dropSettled(batch.Details, settled)
		if len(batch.Details) == 0 {
			return apperror.NewNothingToSettle()
		}

		finalizeBatch(batch)

		if err := batch.Validate(ctx); err != nil {
			return err
		}

		number, err := s.numbers.GetNextNumber(ctx, numberingConfig, numerator.DefaultOptions(), batch.Date)
		if err != nil {
			return err
		}
		batch.Number = number

		if err := s.repo.Create(ctx, batch); err != nil {
			return err
		}
		if err := s.repo.SaveDetails(ctx, batch.Details); err != nil {
			return err
		}

		remaining := make([]records.Identity, len(batch.Details))
		for i := range batch.Details {
			remaining[i] = batch.Details[i].Identity()
		}
		if err := s.repo.RegisterSettled(ctx, batch.ID, batch.Number, remaining); err != nil {
			return err
		}

		return s.audit.Record(ctx, entityType, batch.ID.String(), audit.ActionCreate, map[string]any{
			"number":    batch.Number,
			"subtotal":  types.Display(batch.Subtotal),
			"total":     types.Display(batch.Total),
			"lineCount": len(batch.Details),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "settlement batch created",
		"batch_id", batch.ID,
		"number", batch.Number,
		"line_count", len(batch.Details),
		"total", types.Display(batch.Total))

	s.notifier.Notify(ctx, notify.Event{
		Kind:     "settlement.created",
		EntityID: batch.ID.String(),
		Summary:  "Settlement batch " + batch.Number + " created",
		Fields: map[string]any{
			"number": batch.Number,
			"total":  types.Display(batch.Total),
		},
	})

	return batch, nil
}

// collectDetails snapshots the eligible members of the selected groups.
func collectDetails(batchID id.ID, selected []grouping.SettlementGroup) []Detail {
	var details []Detail
	for gi := range selected {
		g := &selected[gi]
		for i := range g.Items {
			it := &g.Items[i]
			if !it.Eligible() {
				continue
			}
			details = append(details, Detail{
				BatchID:               batchID,
				RecordNumber:          it.RecordNumber,
				DocumentNumber:        it.DocumentNumber,
				ClientName:            it.ClientName,
				ProductionUnit:        it.ProductionUnit,
				ExamType:              it.ExamType,
				SiteCode:              it.SiteCode,
				SiteName:              it.SiteName,
				PatientName:           it.PatientName,
				PrestationDescription: it.PrestationDescription,
				Amount:                it.Amount,
				ServiceStartDate:      it.ServiceStartDate,
				GroupID:               g.GroupID,
			})
		}
	}
	return details
}

// dropSettled removes details whose identity is already in the registry.
func dropSettled(details []Detail, settled map[records.Identity]bool) []Detail {
	kept := details[:0]
	for i := range details {
		if settled[details[i].Identity()] {
			continue
		}
		kept = append(kept, details[i])
	}
	return kept
}

// finalizeBatch renumbers lines and derives totals and counters.
func finalizeBatch(b *Batch) {
	groupSet := make(map[string]struct{})
	patientSet := make(map[string]struct{})
	for i := range b.Details {
		b.Details[i].LineNo = i + 1
		groupSet[b.Details[i].GroupID] = struct{}{}
		patientSet[b.Details[i].PatientName] = struct{}{}
	}
	b.GroupCount = len(groupSet)
	b.PatientCount = len(patientSet)
	b.RecomputeTotals()
}

// Get returns a batch with its detail lines.
func (s *Service) Get(ctx context.Context, batchID id.ID) (*Batch, error) {
	batch, err := s.repo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	details, err := s.repo.GetDetails(ctx, batchID)
	if err != nil {
		return nil, err
	}
	batch.Details = details
	return batch, nil
}

// GetByNumber returns a batch by its LQ code, with detail lines.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Batch, error) {
	batch, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	details, err := s.repo.GetDetails(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.Details = details
	return batch, nil
}

// List returns batch headers matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) (*listing.Result[Batch], error) {
	return s.repo.List(ctx, f)
}

// Void voids an active batch. The settled-items registry rows are kept:
// voided lines stay settled and do not re-enter the pending pool. An
// invoiced batch cannot be voided while its invoice is active.
func (s *Service) Void(ctx context.Context, batchID id.ID) (*Batch, error) {
	var batch *Batch

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.repo.GetByID(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.State == StateVoided {
			return apperror.NewAlreadyVoided("Settlement batch", batch.Number)
		}
		if batch.InvoiceID != nil {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"Batch is invoiced; void the invoice first").
				WithDetail("batch_code", batch.Number).
				WithDetail("invoice_id", batch.InvoiceID)
		}

		now := time.Now().UTC()
		batch.State = StateVoided
		batch.VoidedBy = appctx.GetUserID(ctx)
		batch.VoidedAt = &now
		batch.UpdatedBy = batch.VoidedBy
		batch.Touch()

		if err := s.repo.Update(ctx, batch); err != nil {
			return err
		}

		return s.audit.Record(ctx, entityType, batch.ID.String(), audit.ActionVoid, map[string]any{
			"number": batch.Number,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "settlement batch voided",
		"batch_id", batch.ID,
		"number", batch.Number)

	s.notifier.Notify(ctx, notify.Event{
		Kind:     "settlement.voided",
		EntityID: batch.ID.String(),
		Summary:  "Settlement batch " + batch.Number + " voided",
	})

	return batch, nil
}
