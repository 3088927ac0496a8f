package invoicing

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
	"liquimed/internal/domain/listing"
	"liquimed/internal/domain/notify"
	"liquimed/internal/domain/settlement"
	"liquimed/pkg/logger"
)

const entityType = "invoice_record"

// numberingConfig is the VAL document numbering scheme.
var numberingConfig = numerator.DefaultConfig("VAL")

// BatchLink is the slice of the settlement repository the invoicing
// workflow needs to lock batches and maintain the invoice link.
type BatchLink interface {
	LockForInvoicing(ctx context.Context, batchIDs []id.ID) ([]settlement.Batch, error)
	LinkInvoice(ctx context.Context, batchIDs []id.ID, invoiceID id.ID) error
	UnlinkInvoice(ctx context.Context, invoiceID id.ID) ([]id.ID, error)
}

// Service implements the invoicing workflow.
type Service struct {
	repo      Repository
	batches   BatchLink
	numbers   numerator.Generator
	txManager tx.Manager
	audit     audit.Recorder
	notifier  notify.Notifier
}

// NewService creates a new invoicing service.
func NewService(
	repo Repository,
	batches BatchLink,
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
		repo:      repo,
		batches:   batches,
		numbers:   numbers,
		txManager: txManager,
		audit:     recorder,
		notifier:  notifier,
	}
}

// InvoiceRequest links one or more active settlement batches to a fiscal
// invoice.
type InvoiceRequest struct {
	BatchIDs      []id.ID
	InvoiceNumber string
	Comment       string
}

// Invoice creates an invoice record covering the requested batches and
// links them atomically. Every batch must be ACTIVE and not yet invoiced.
func (s *Service) Invoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if len(req.BatchIDs) == 0 {
		return nil, apperror.NewValidation("at least one settlement batch is required").
			WithDetail("field", "batchIds")
	}
	if req.InvoiceNumber == "" {
		return nil, apperror.NewValidation("invoice number is required").
			WithDetail("field", "invoiceNumber")
	}

	inv := NewInvoice(req.InvoiceNumber)
	inv.Comment = req.Comment
	inv.CreatedBy = appctx.GetUserID(ctx)
	inv.UpdatedBy = inv.CreatedBy

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batches, err := s.batches.LockForInvoicing(ctx, req.BatchIDs)
		if err != nil {
			return err
		}
		if len(batches) != len(req.BatchIDs) {
			return apperror.NewNotFound("Settlement batch", req.BatchIDs).
				WithDetail("requested", len(req.BatchIDs)).
				WithDetail("found", len(batches))
		}

		subtotal := types.Zero()
		tax := types.Zero()
		for i := range batches {
			b := &batches[i]
			if b.State != settlement.StateActive {
				return apperror.NewBusinessRule(apperror.CodeBusinessRule,
					"Voided batch cannot be invoiced").
					WithDetail("batch_code", b.Number)
			}
			if b.InvoiceID != nil {
				return apperror.NewAlreadyInvoiced(b.Number)
			}
			subtotal = subtotal.Add(b.Subtotal)
			tax = tax.Add(b.Tax)
			inv.BatchIDs = append(inv.BatchIDs, b.ID)
		}
		inv.Subtotal = subtotal
		inv.Tax = tax
		inv.Total = subtotal.Add(tax)
		inv.BatchCount = len(batches)

		if err := inv.Validate(ctx); err != nil {
			return err
		}

		number, err := s.numbers.GetNextNumber(ctx, numberingConfig, numerator.DefaultOptions(), inv.Date)
		if err != nil {
			return err
		}
		inv.Number = number

		if err := s.repo.Create(ctx, inv); err != nil {
			return err
		}
		if err := s.batches.LinkInvoice(ctx, inv.BatchIDs, inv.ID); err != nil {
			return err
		}

		return s.audit.Record(ctx, entityType, inv.ID.String(), audit.ActionInvoice, map[string]any{
			"number":        inv.Number,
			"invoiceNumber": inv.InvoiceNumber,
			"batchCount":    inv.BatchCount,
			"total":         types.Display(inv.Total),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice record created",
		"invoice_id", inv.ID,
		"number", inv.Number,
		"invoice_number", inv.InvoiceNumber,
		"batch_count", inv.BatchCount)

	s.notifier.Notify(ctx, notify.Event{
		Kind:     "invoice.created",
		EntityID: inv.ID.String(),
		Summary:  "Invoice " + inv.Number + " created for " + inv.InvoiceNumber,
	})

	return inv, nil
}

// Void voids an invoice with a credit note and releases its batches back
// to the NOT_INVOICED state. The batches themselves stay settled.
func (s *Service) Void(ctx context.Context, invoiceID id.ID, creditNoteNumber string) (*Invoice, error) {
	if creditNoteNumber == "" {
		return nil, apperror.NewValidation("credit note number is required").
			WithDetail("field", "creditNoteNumber")
	}

	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.voidLocked(ctx, invoiceID, creditNoteNumber)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice voided",
		"invoice_id", inv.ID,
		"number", inv.Number,
		"credit_note", creditNoteNumber)

	s.notifier.Notify(ctx, notify.Event{
		Kind:     "invoice.voided",
		EntityID: inv.ID.String(),
		Summary:  "Invoice " + inv.Number + " voided with credit note " + creditNoteNumber,
	})

	return inv, nil
}

// VoidForBatches voids the single invoice covering the selected batches.
// The selection must resolve to exactly one invoice: none is a validation
// error, more than one is CodeMixedInvoice.
func (s *Service) VoidForBatches(ctx context.Context, batchIDs []id.ID, creditNoteNumber string) (*Invoice, error) {
	if len(batchIDs) == 0 {
		return nil, apperror.NewValidation("at least one settlement batch is required").
			WithDetail("field", "batchIds")
	}
	if creditNoteNumber == "" {
		return nil, apperror.NewValidation("credit note number is required").
			WithDetail("field", "creditNoteNumber")
	}

	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batches, err := s.batches.LockForInvoicing(ctx, batchIDs)
		if err != nil {
			return err
		}
		if len(batches) != len(batchIDs) {
			return apperror.NewNotFound("Settlement batch", batchIDs)
		}

		distinct := make(map[id.ID]struct{})
		for i := range batches {
			if batches[i].InvoiceID != nil {
				distinct[*batches[i].InvoiceID] = struct{}{}
			}
		}
		switch len(distinct) {
		case 0:
			return apperror.NewValidation("selected batches are not invoiced")
		case 1:
		default:
			return apperror.NewMixedInvoice(len(distinct))
		}

		var invoiceID id.ID
		for invID := range distinct {
			invoiceID = invID
		}

		inv, err = s.voidLocked(ctx, invoiceID, creditNoteNumber)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice voided via batch selection",
		"invoice_id", inv.ID,
		"number", inv.Number)

	return inv, nil
}

// voidLocked performs the void transition. Caller provides the transaction.
func (s *Service) voidLocked(ctx context.Context, invoiceID id.ID, creditNoteNumber string) (*Invoice, error) {
	inv, err := s.repo.GetForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.IsVoided() {
		return nil, apperror.NewAlreadyVoided("Invoice", inv.Number)
	}

	now := time.Now().UTC()
	inv.State = StateVoided
	inv.CreditNoteNumber = creditNoteNumber
	inv.VoidedBy = appctx.GetUserID(ctx)
	inv.VoidedAt = &now
	inv.UpdatedBy = inv.VoidedBy
	inv.Touch()

	if err := inv.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}

	released, err := s.batches.UnlinkInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, entityType, inv.ID.String(), audit.ActionVoid, map[string]any{
		"number":          inv.Number,
		"creditNote":      creditNoteNumber,
		"releasedBatches": len(released),
	}); err != nil {
		return nil, err
	}

	inv.BatchIDs = nil
	return inv, nil
}

// Get returns an invoice record.
func (s *Service) Get(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.repo.GetByID(ctx, invoiceID)
}

// GetByNumber returns an invoice by its VAL code.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) (*listing.Result[Invoice], error) {
	return s.repo.List(ctx, f)
}
