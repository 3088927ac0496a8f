package settlement

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquimed/internal/core/apperror"
	appctx "liquimed/internal/core/context"
	"liquimed/internal/core/id"
	"liquimed/internal/core/numerator"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/grouping"
	"liquimed/internal/domain/listing"
	"liquimed/internal/domain/records"
)

// --- fakes ---

type fakeSource struct {
	items []records.LineItem
	err   error
}

func (f *fakeSource) FetchLineItems(_ context.Context, _, _ time.Time, _ records.Filters) ([]records.LineItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]records.LineItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

type fakeExclusions struct {
	marks map[records.Identity]records.ExclusionMark
}

func (f *fakeExclusions) Marks(_ context.Context, ids []records.Identity) (map[records.Identity]records.ExclusionMark, error) {
	out := make(map[records.Identity]records.ExclusionMark)
	for _, identity := range ids {
		if m, ok := f.marks[identity]; ok {
			out[identity] = m
		}
	}
	return out, nil
}

type memRepo struct {
	batches  map[id.ID]*Batch
	details  map[id.ID][]Detail
	registry map[records.Identity]id.ID
}

func newMemRepo() *memRepo {
	return &memRepo{
		batches:  make(map[id.ID]*Batch),
		details:  make(map[id.ID][]Detail),
		registry: make(map[records.Identity]id.ID),
	}
}

func (r *memRepo) Create(_ context.Context, b *Batch) error {
	clone := *b
	clone.Details = nil
	r.batches[b.ID] = &clone
	return nil
}

func (r *memRepo) SaveDetails(_ context.Context, details []Detail) error {
	for _, d := range details {
		r.details[d.BatchID] = append(r.details[d.BatchID], d)
	}
	return nil
}

func (r *memRepo) RegisterSettled(_ context.Context, batchID id.ID, _ string, ids []records.Identity) error {
	for _, identity := range ids {
		if _, ok := r.registry[identity]; ok {
			return apperror.NewBusinessRule(apperror.CodeAlreadySettled, "line item already settled")
		}
		r.registry[identity] = batchID
	}
	return nil
}

func (r *memRepo) LockSettled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error) {
	return r.Settled(ctx, ids)
}

func (r *memRepo) Settled(_ context.Context, ids []records.Identity) (map[records.Identity]bool, error) {
	out := make(map[records.Identity]bool)
	for _, identity := range ids {
		if _, ok := r.registry[identity]; ok {
			out[identity] = true
		}
	}
	return out, nil
}

func (r *memRepo) GetByID(_ context.Context, batchID id.ID) (*Batch, error) {
	b, ok := r.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("Settlement batch", batchID)
	}
	clone := *b
	return &clone, nil
}

func (r *memRepo) GetByNumber(_ context.Context, number string) (*Batch, error) {
	for _, b := range r.batches {
		if b.Number == number {
			clone := *b
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("Settlement batch", number)
}

func (r *memRepo) GetDetails(_ context.Context, batchID id.ID) ([]Detail, error) {
	details := append([]Detail(nil), r.details[batchID]...)
	sort.Slice(details, func(i, j int) bool { return details[i].LineNo < details[j].LineNo })
	return details, nil
}

func (r *memRepo) List(_ context.Context, f ListFilter) (*listing.Result[Batch], error) {
	var items []Batch
	for _, b := range r.batches {
		if f.State != "" && b.State != f.State {
			continue
		}
		items = append(items, *b)
	}
	return &listing.Result[Batch]{Items: items, TotalCount: int64(len(items))}, nil
}

func (r *memRepo) Update(_ context.Context, b *Batch) error {
	current, ok := r.batches[b.ID]
	if !ok {
		return apperror.NewNotFound("Settlement batch", b.ID)
	}
	if current.Version != b.Version-1 {
		return apperror.NewConcurrentModification("Settlement batch", b.ID)
	}
	clone := *b
	clone.Details = nil
	r.batches[b.ID] = &clone
	return nil
}

func (r *memRepo) LockForInvoicing(_ context.Context, batchIDs []id.ID) ([]Batch, error) {
	var out []Batch
	for _, batchID := range batchIDs {
		if b, ok := r.batches[batchID]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memRepo) LinkInvoice(_ context.Context, batchIDs []id.ID, invoiceID id.ID) error {
	for _, batchID := range batchIDs {
		if b, ok := r.batches[batchID]; ok {
			invID := invoiceID
			b.InvoiceID = &invID
		}
	}
	return nil
}

func (r *memRepo) UnlinkInvoice(_ context.Context, invoiceID id.ID) ([]id.ID, error) {
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

// --- helpers ---

func testItem(rec, doc, client, unit, exam, patient, amount string) records.LineItem {
	return records.LineItem{
		Identity:         records.Identity{RecordNumber: rec, DocumentNumber: doc},
		ClientName:       client,
		ProductionUnit:   unit,
		ExamType:         exam,
		PaymentCondition: records.PaymentCredit,
		SiteCode:         "SED01",
		PatientName:      patient,
		Amount:           types.MustMoney(amount),
		ServiceStartDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestService(source *fakeSource, excl *fakeExclusions, repo Repository) *Service {
	recordsSvc := records.NewService(source, excl, repo)
	return NewService(recordsSvc, repo, &numerator.MockGenerator{}, fakeTxManager{}, nil, nil)
}

func testCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "user-1", Name: "Test User"})
}

func groupIDFor(items []records.LineItem, client string) string {
	for i := range items {
		if items[i].ClientName == client {
			return strings.Join([]string{items[i].ClientName, items[i].ProductionUnit, items[i].ExamType}, "\x1f")
		}
	}
	return ""
}

func baseRequest(groupIDs ...string) SettleRequest {
	return SettleRequest{
		DateFrom:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:           time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		PaymentCondition: "CREDIT",
		GroupIDs:         groupIDs,
	}
}

// --- tests ---

func TestSettle_CreatesBatchWithTotals(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
		testItem("R2", "D2", "Clinica Sur", "Lab", "Blood", "Jose Lopez", "200"),
		testItem("R3", "D3", "Clinica Norte", "Lab", "X-Ray", "Ana Perez", "50"),
	}
	source := &fakeSource{items: items}
	repo := newMemRepo()
	svc := newTestService(source, &fakeExclusions{}, repo)

	req := baseRequest(groupIDFor(items, "Clinica Sur"), groupIDFor(items, "Clinica Norte"))
	batch, err := svc.Settle(testCtx(), req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(batch.Number, "LQ-"))
	assert.Equal(t, StateActive, batch.State)
	assert.Equal(t, InvoiceStateNotInvoiced, batch.InvoiceState())
	assert.Equal(t, "350.00", types.Display(batch.Subtotal))
	assert.Equal(t, "63.00", types.Display(batch.Tax))
	assert.Equal(t, "413.00", types.Display(batch.Total))
	assert.Equal(t, 2, batch.GroupCount)
	assert.Equal(t, 2, batch.PatientCount)
	assert.Equal(t, "user-1", batch.CreatedBy)
	assert.Len(t, batch.Details, 3)
	for i, d := range batch.Details {
		assert.Equal(t, i+1, d.LineNo)
	}

	// Registry rows written for every settled identity.
	settled, err := repo.Settled(context.Background(), []records.Identity{
		{RecordNumber: "R1", DocumentNumber: "D1"},
		{RecordNumber: "R3", DocumentNumber: "D3"},
	})
	require.NoError(t, err)
	assert.True(t, settled[records.Identity{RecordNumber: "R1", DocumentNumber: "D1"}])
	assert.True(t, settled[records.Identity{RecordNumber: "R3", DocumentNumber: "D3"}])
}

func TestSettle_TaxIsEighteenPercent(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	repo := newMemRepo()
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, repo)

	batch, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.NoError(t, err)

	assert.Equal(t, "100.00", types.Display(batch.Subtotal))
	assert.Equal(t, "18.00", types.Display(batch.Tax))
	assert.Equal(t, "118.00", types.Display(batch.Total))
}

func TestSettle_SkipsExcludedItems(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
		testItem("R2", "D2", "Clinica Sur", "Lab", "Blood", "Jose Lopez", "200"),
	}
	excl := &fakeExclusions{marks: map[records.Identity]records.ExclusionMark{
		{RecordNumber: "R2", DocumentNumber: "D2"}: {Excluded: true, CreatedAt: time.Now()},
	}}
	repo := newMemRepo()
	svc := newTestService(&fakeSource{items: items}, excl, repo)

	batch, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.NoError(t, err)

	require.Len(t, batch.Details, 1)
	assert.Equal(t, "R1", batch.Details[0].RecordNumber)
	assert.Equal(t, "100.00", types.Display(batch.Subtotal))

	// The excluded item is not registered as settled.
	settled, err := repo.Settled(context.Background(), []records.Identity{
		{RecordNumber: "R2", DocumentNumber: "D2"},
	})
	require.NoError(t, err)
	assert.Empty(t, settled)
}

func TestSettle_NothingToSettle(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	excl := &fakeExclusions{marks: map[records.Identity]records.ExclusionMark{
		{RecordNumber: "R1", DocumentNumber: "D1"}: {Excluded: true, CreatedAt: time.Now()},
	}}
	svc := newTestService(&fakeSource{items: items}, excl, newMemRepo())

	_, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.Error(t, err)
	assert.True(t, apperror.IsNothingToSettle(err))
}

func TestSettle_ResettleIsRejected(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	repo := newMemRepo()
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, repo)
	gid := groupIDFor(items, "Clinica Sur")

	_, err := svc.Settle(testCtx(), baseRequest(gid))
	require.NoError(t, err)

	// A second run over the same period sees the item settled.
	_, err = svc.Settle(testCtx(), baseRequest(gid))
	require.Error(t, err)
	assert.True(t, apperror.IsNothingToSettle(err))
}

// lateSettleRepo simulates an item that is settled between the snapshot
// and the transactional lock: the read side reports it unsettled, the
// locked registry check reports it taken.
type lateSettleRepo struct {
	*memRepo
	hidden records.Identity
}

func (r *lateSettleRepo) Settled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error) {
	out, err := r.memRepo.Settled(ctx, ids)
	if err != nil {
		return nil, err
	}
	delete(out, r.hidden)
	return out, nil
}

func (r *lateSettleRepo) LockSettled(ctx context.Context, ids []records.Identity) (map[records.Identity]bool, error) {
	return r.memRepo.Settled(ctx, ids)
}

func TestSettle_DropsItemsSettledAfterSnapshot(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
		testItem("R2", "D2", "Clinica Sur", "Lab", "Blood", "Jose Lopez", "200"),
	}
	hidden := records.Identity{RecordNumber: "R1", DocumentNumber: "D1"}

	inner := newMemRepo()
	inner.registry[hidden] = id.New()
	repo := &lateSettleRepo{memRepo: inner, hidden: hidden}
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, repo)

	batch, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.NoError(t, err)

	require.Len(t, batch.Details, 1)
	assert.Equal(t, "R2", batch.Details[0].RecordNumber)
	assert.Equal(t, "200.00", types.Display(batch.Subtotal))
}

func TestSettle_UnknownGroupRejected(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, newMemRepo())

	_, err := svc.Settle(testCtx(), baseRequest("no-such-group"))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestSettle_ValidatesInput(t *testing.T) {
	svc := newTestService(&fakeSource{}, &fakeExclusions{}, newMemRepo())

	t.Run("bad payment condition", func(t *testing.T) {
		req := baseRequest("g")
		req.PaymentCondition = "INSTALLMENTS"
		_, err := svc.Settle(testCtx(), req)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("inverted range", func(t *testing.T) {
		req := baseRequest("g")
		req.DateFrom, req.DateTo = req.DateTo, req.DateFrom
		_, err := svc.Settle(testCtx(), req)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("no groups", func(t *testing.T) {
		req := baseRequest()
		_, err := svc.Settle(testCtx(), req)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
}

func TestVoid_Lifecycle(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	repo := newMemRepo()
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, repo)

	batch, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.NoError(t, err)

	voided, err := svc.Void(testCtx(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, StateVoided, voided.State)
	assert.Equal(t, "user-1", voided.VoidedBy)
	require.NotNil(t, voided.VoidedAt)

	// Voiding does not release the settled items.
	settled, err := repo.Settled(context.Background(), []records.Identity{
		{RecordNumber: "R1", DocumentNumber: "D1"},
	})
	require.NoError(t, err)
	assert.True(t, settled[records.Identity{RecordNumber: "R1", DocumentNumber: "D1"}])

	_, err = svc.Void(testCtx(), batch.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyVoided))
}

func TestVoid_InvoicedBatchRejected(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	repo := newMemRepo()
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, repo)

	batch, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.NoError(t, err)

	require.NoError(t, repo.LinkInvoice(context.Background(), []id.ID{batch.ID}, id.New()))

	_, err = svc.Void(testCtx(), batch.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))
}

// rollbackTx restores the repo's maps when fn fails, emulating a database
// rollback over the in-memory store.
type rollbackTx struct{ repo *memRepo }

func (m rollbackTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	batches := make(map[id.ID]*Batch, len(m.repo.batches))
	for k, v := range m.repo.batches {
		clone := *v
		batches[k] = &clone
	}
	details := make(map[id.ID][]Detail, len(m.repo.details))
	for k, v := range m.repo.details {
		details[k] = append([]Detail(nil), v...)
	}
	registry := make(map[records.Identity]id.ID, len(m.repo.registry))
	for k, v := range m.repo.registry {
		registry[k] = v
	}

	if err := fn(ctx); err != nil {
		m.repo.batches, m.repo.details, m.repo.registry = batches, details, registry
		return err
	}
	return nil
}

// flakyRegistry fails the registry write after header and lines are in.
type flakyRegistry struct {
	*memRepo
	fail bool
}

func (r *flakyRegistry) RegisterSettled(ctx context.Context, batchID id.ID, number string, ids []records.Identity) error {
	if r.fail {
		return errors.New("registry write failed")
	}
	return r.memRepo.RegisterSettled(ctx, batchID, number, ids)
}

func TestSettle_AtomicOnRegistryFailure(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
	}
	inner := newMemRepo()
	repo := &flakyRegistry{memRepo: inner, fail: true}
	recordsSvc := records.NewService(&fakeSource{items: items}, &fakeExclusions{}, repo)
	svc := NewService(recordsSvc, repo, &numerator.MockGenerator{}, rollbackTx{repo: inner}, nil, nil)
	gid := groupIDFor(items, "Clinica Sur")

	_, err := svc.Settle(testCtx(), baseRequest(gid))
	require.Error(t, err)

	// The header and lines written before the failure do not survive it.
	assert.Empty(t, inner.batches)
	assert.Empty(t, inner.details)
	assert.Empty(t, inner.registry)

	// The items were not consumed; a later run settles them normally.
	repo.fail = false
	batch, err := svc.Settle(testCtx(), baseRequest(gid))
	require.NoError(t, err)
	require.Len(t, batch.Details, 1)
	assert.Equal(t, "R1", batch.Details[0].RecordNumber)
}

func TestSettle_ReleasedExclusionReopensItem(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
		testItem("R2", "D2", "Clinica Sur", "Lab", "Blood", "Jose Lopez", "200"),
	}
	held := records.Identity{RecordNumber: "R2", DocumentNumber: "D2"}
	excl := &fakeExclusions{marks: map[records.Identity]records.ExclusionMark{
		held: {Excluded: true, CreatedAt: time.Now()},
	}}
	source := &fakeSource{items: items}
	repo := newMemRepo()
	svc := newTestService(source, excl, repo)
	recordsSvc := records.NewService(source, excl, repo)
	req := baseRequest(groupIDFor(items, "Clinica Sur"))

	first, err := svc.Settle(testCtx(), req)
	require.NoError(t, err)
	require.Len(t, first.Details, 1)
	assert.Equal(t, "R1", first.Details[0].RecordNumber)

	// One member settled, one still held back.
	snapshot, err := recordsSvc.FetchWithStatus(testCtx(), req.DateFrom, req.DateTo, records.Filters{})
	require.NoError(t, err)
	groups := grouping.Group(snapshot, grouping.ByClientUnitExam)
	require.Len(t, groups, 1)
	assert.Equal(t, grouping.StatePartiallySettled, groups[0].State)

	// Releasing the exclusion reopens the item for the next run.
	delete(excl.marks, held)

	second, err := svc.Settle(testCtx(), req)
	require.NoError(t, err)
	require.Len(t, second.Details, 1)
	assert.Equal(t, "R2", second.Details[0].RecordNumber)
	assert.NotEqual(t, first.ID, second.ID)

	snapshot, err = recordsSvc.FetchWithStatus(testCtx(), req.DateFrom, req.DateTo, records.Filters{})
	require.NoError(t, err)
	groups = grouping.Group(snapshot, grouping.ByClientUnitExam)
	require.Len(t, groups, 1)
	assert.Equal(t, grouping.StateSettled, groups[0].State)
}

func TestGet_ReturnsDetails(t *testing.T) {
	items := []records.LineItem{
		testItem("R1", "D1", "Clinica Sur", "Lab", "Blood", "Ana Perez", "100"),
		testItem("R2", "D2", "Clinica Sur", "Lab", "Blood", "Jose Lopez", "200"),
	}
	repo := newMemRepo()
	svc := newTestService(&fakeSource{items: items}, &fakeExclusions{}, repo)

	batch, err := svc.Settle(testCtx(), baseRequest(groupIDFor(items, "Clinica Sur")))
	require.NoError(t, err)

	got, err := svc.Get(testCtx(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.Number, got.Number)
	require.Len(t, got.Details, 2)
	assert.Equal(t, 1, got.Details[0].LineNo)

	byNumber, err := svc.GetByNumber(testCtx(), batch.Number)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, byNumber.ID)
}
