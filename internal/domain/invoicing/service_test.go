package invoicing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquimed/internal/core/apperror"
	appctx "liquimed/internal/core/context"
	"liquimed/internal/core/id"
	"liquimed/internal/core/numerator"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/listing"
	"liquimed/internal/domain/records"
	"liquimed/internal/domain/settlement"
)

// --- fakes ---

type memInvoiceRepo struct {
	invoices map[id.ID]*Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[id.ID]*Invoice)}
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *Invoice) error {
	clone := *inv
	r.invoices[inv.ID] = &clone
	return nil
}

func (r *memInvoiceRepo) GetByID(_ context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return nil, apperror.NewNotFound("Invoice", invoiceID)
	}
	clone := *inv
	return &clone, nil
}

func (r *memInvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return r.GetByID(ctx, invoiceID)
}

func (r *memInvoiceRepo) GetByNumber(_ context.Context, number string) (*Invoice, error) {
	for _, inv := range r.invoices {
		if inv.Number == number {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("Invoice", number)
}

func (r *memInvoiceRepo) List(_ context.Context, f ListFilter) (*listing.Result[Invoice], error) {
	var items []Invoice
	for _, inv := range r.invoices {
		if f.State != "" && inv.State != f.State {
			continue
		}
		items = append(items, *inv)
	}
	return &listing.Result[Invoice]{Items: items, TotalCount: int64(len(items))}, nil
}

func (r *memInvoiceRepo) Update(_ context.Context, inv *Invoice) error {
	current, ok := r.invoices[inv.ID]
	if !ok {
		return apperror.NewNotFound("Invoice", inv.ID)
	}
	if current.Version != inv.Version-1 {
		return apperror.NewConcurrentModification("Invoice", inv.ID)
	}
	clone := *inv
	r.invoices[inv.ID] = &clone
	return nil
}

type memBatchLink struct {
	batches map[id.ID]*settlement.Batch
}

func newMemBatchLink() *memBatchLink {
	return &memBatchLink{batches: make(map[id.ID]*settlement.Batch)}
}

func (r *memBatchLink) addBatch(subtotal string) *settlement.Batch {
	b := settlement.NewBatch(
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		records.PaymentCredit,
	)
	b.Number = "LQ-2025-0000" + string(rune('0'+len(r.batches)+1))
	b.Subtotal = types.MustMoney(subtotal)
	b.Tax = types.Tax(b.Subtotal)
	b.Total = types.TotalWithTax(b.Subtotal)
	r.batches[b.ID] = b
	return b
}

func (r *memBatchLink) LockForInvoicing(_ context.Context, batchIDs []id.ID) ([]settlement.Batch, error) {
	var out []settlement.Batch
	for _, batchID := range batchIDs {
		if b, ok := r.batches[batchID]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBatchLink) LinkInvoice(_ context.Context, batchIDs []id.ID, invoiceID id.ID) error {
	for _, batchID := range batchIDs {
		if b, ok := r.batches[batchID]; ok {
			invID := invoiceID
			b.InvoiceID = &invID
		}
	}
	return nil
}

func (r *memBatchLink) UnlinkInvoice(_ context.Context, invoiceID id.ID) ([]id.ID, error) {
	var affected []id.ID
	for _, b := range r.batches {
		if b.InvoiceID != nil && *b.InvoiceID == invoiceID {
			b.InvoiceID = nil
			affected = append(affected, b.ID)
		}
	}
	return affected, nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(repo Repository, link BatchLink) *Service {
	return NewService(repo, link, &numerator.MockGenerator{}, fakeTxManager{}, nil, nil)
}

func testCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "user-1"})
}

// --- tests ---

func TestInvoice_LinksBatches(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	b2 := link.addBatch("200")
	repo := newMemInvoiceRepo()
	svc := newTestService(repo, link)

	inv, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID, b2.ID},
		InvoiceNumber: "F001-000123",
	})
	require.NoError(t, err)

	assert.Equal(t, StateInvoiced, inv.State)
	assert.Equal(t, "F001-000123", inv.InvoiceNumber)
	assert.Equal(t, 2, inv.BatchCount)
	assert.Equal(t, "300.00", types.Display(inv.Subtotal))
	assert.Equal(t, "54.00", types.Display(inv.Tax))
	assert.Equal(t, "354.00", types.Display(inv.Total))
	assert.Equal(t, "user-1", inv.CreatedBy)

	// Both batches now carry the invoice link.
	require.NotNil(t, link.batches[b1.ID].InvoiceID)
	require.NotNil(t, link.batches[b2.ID].InvoiceID)
	assert.Equal(t, inv.ID, *link.batches[b1.ID].InvoiceID)
}

func TestInvoice_RejectsAlreadyInvoiced(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	svc := newTestService(newMemInvoiceRepo(), link)

	_, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000123",
	})
	require.NoError(t, err)

	_, err = svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000124",
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyInvoiced))
}

func TestInvoice_RejectsVoidedBatch(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	b1.State = settlement.StateVoided
	svc := newTestService(newMemInvoiceRepo(), link)

	_, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000123",
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))
}

func TestInvoice_ValidatesInput(t *testing.T) {
	svc := newTestService(newMemInvoiceRepo(), newMemBatchLink())

	_, err := svc.Invoice(testCtx(), InvoiceRequest{InvoiceNumber: "F001-000123"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Invoice(testCtx(), InvoiceRequest{BatchIDs: []id.ID{id.New()}})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{id.New()},
		InvoiceNumber: "F001-000123",
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestVoid_RoundTrip(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	repo := newMemInvoiceRepo()
	svc := newTestService(repo, link)

	inv, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000123",
	})
	require.NoError(t, err)

	voided, err := svc.Void(testCtx(), inv.ID, "NC01-000007")
	require.NoError(t, err)
	assert.Equal(t, StateVoided, voided.State)
	assert.Equal(t, "NC01-000007", voided.CreditNoteNumber)
	assert.Equal(t, "user-1", voided.VoidedBy)
	require.NotNil(t, voided.VoidedAt)

	// The batch returns to NOT_INVOICED and can be invoiced again.
	assert.Nil(t, link.batches[b1.ID].InvoiceID)

	again, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000125",
	})
	require.NoError(t, err)
	assert.Equal(t, StateInvoiced, again.State)
}

func TestVoid_RequiresCreditNote(t *testing.T) {
	svc := newTestService(newMemInvoiceRepo(), newMemBatchLink())

	_, err := svc.Void(testCtx(), id.New(), "")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestVoid_AlreadyVoided(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	svc := newTestService(newMemInvoiceRepo(), link)

	inv, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000123",
	})
	require.NoError(t, err)

	_, err = svc.Void(testCtx(), inv.ID, "NC01-000007")
	require.NoError(t, err)

	_, err = svc.Void(testCtx(), inv.ID, "NC01-000008")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyVoided))
}

func TestVoidForBatches_SingleInvoice(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	b2 := link.addBatch("200")
	svc := newTestService(newMemInvoiceRepo(), link)

	inv, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID, b2.ID},
		InvoiceNumber: "F001-000123",
	})
	require.NoError(t, err)

	// Voiding through a subset of the linked batches still voids the
	// whole invoice.
	voided, err := svc.VoidForBatches(testCtx(), []id.ID{b1.ID}, "NC01-000007")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, voided.ID)
	assert.Equal(t, StateVoided, voided.State)
	assert.Nil(t, link.batches[b1.ID].InvoiceID)
	assert.Nil(t, link.batches[b2.ID].InvoiceID)
}

func TestVoidForBatches_MixedInvoicesRejected(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	b2 := link.addBatch("200")
	svc := newTestService(newMemInvoiceRepo(), link)

	_, err := svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b1.ID},
		InvoiceNumber: "F001-000123",
	})
	require.NoError(t, err)
	_, err = svc.Invoice(testCtx(), InvoiceRequest{
		BatchIDs:      []id.ID{b2.ID},
		InvoiceNumber: "F001-000124",
	})
	require.NoError(t, err)

	_, err = svc.VoidForBatches(testCtx(), []id.ID{b1.ID, b2.ID}, "NC01-000007")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeMixedInvoice))
}

func TestVoidForBatches_NotInvoicedRejected(t *testing.T) {
	link := newMemBatchLink()
	b1 := link.addBatch("100")
	svc := newTestService(newMemInvoiceRepo(), link)

	_, err := svc.VoidForBatches(testCtx(), []id.ID{b1.ID}, "NC01-000007")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
