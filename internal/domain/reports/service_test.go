package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
)

type stubRepo struct {
	pending     []PendingRow
	settlements []SettlementSummaryRow
	invoices    []InvoiceRegisterRow

	gotPending PendingFilter
}

func (s *stubRepo) PendingSummary(_ context.Context, f PendingFilter) ([]PendingRow, error) {
	s.gotPending = f
	return s.pending, nil
}

func (s *stubRepo) SettlementSummary(_ context.Context, _, _ time.Time) ([]SettlementSummaryRow, error) {
	return s.settlements, nil
}

func (s *stubRepo) InvoiceRegister(_ context.Context, _, _ time.Time) ([]InvoiceRegisterRow, error) {
	return s.invoices, nil
}

func reportRange() (time.Time, time.Time) {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
}

func TestPending_Totals(t *testing.T) {
	repo := &stubRepo{pending: []PendingRow{
		{ClientName: "Clinica Sur", SiteCode: "SED01", ExamType: "Blood", ItemCount: 3, Amount: types.MustMoney("300"), CarriedOverCount: 1},
		{ClientName: "Clinica Norte", SiteCode: "SED02", ExamType: "X-Ray", ItemCount: 2, Amount: types.MustMoney("150")},
	}}
	svc := NewService(repo)

	from, _ := reportRange()
	report, err := svc.Pending(context.Background(), PendingFilter{PeriodStart: from})
	require.NoError(t, err)

	assert.Equal(t, 5, report.ItemCount)
	assert.Equal(t, "450.00", types.Display(report.TotalAmount))
	assert.Equal(t, from, repo.gotPending.PeriodStart)

	// Site names are resolved for presentation.
	for _, row := range report.Rows {
		assert.NotEmpty(t, row.SiteName)
	}
}

func TestPending_EmptyLedger(t *testing.T) {
	svc := NewService(&stubRepo{})

	report, err := svc.Pending(context.Background(), PendingFilter{})
	require.NoError(t, err)
	assert.Zero(t, report.ItemCount)
	assert.Equal(t, "0.00", types.Display(report.TotalAmount))
}

func TestSettlements_Totals(t *testing.T) {
	repo := &stubRepo{settlements: []SettlementSummaryRow{
		{Period: "2025-03", PaymentCondition: "CREDIT", BatchCount: 2, LineCount: 10, Total: types.MustMoney("1180")},
		{Period: "2025-03", PaymentCondition: "CASH", BatchCount: 1, LineCount: 4, Total: types.MustMoney("590")},
	}}
	svc := NewService(repo)

	from, to := reportRange()
	summary, err := svc.Settlements(context.Background(), from, to)
	require.NoError(t, err)

	assert.Equal(t, from, summary.DateFrom)
	assert.Len(t, summary.Rows, 2)
	assert.Equal(t, "1770.00", types.Display(summary.Total))
}

func TestSettlements_InvalidRange(t *testing.T) {
	svc := NewService(&stubRepo{})

	from, to := reportRange()
	_, err := svc.Settlements(context.Background(), to, from)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestInvoices_VoidedExcludedFromTotal(t *testing.T) {
	repo := &stubRepo{invoices: []InvoiceRegisterRow{
		{Number: "VAL-2025-000001", InvoiceNumber: "F001-123", State: "INVOICED", Total: types.MustMoney("1180")},
		{Number: "VAL-2025-000002", InvoiceNumber: "F001-124", CreditNoteNumber: "NC01-7", State: "VOIDED", Total: types.MustMoney("590")},
	}}
	svc := NewService(repo)

	from, to := reportRange()
	register, err := svc.Invoices(context.Background(), from, to)
	require.NoError(t, err)

	// Voided invoices stay listed but do not count toward the total.
	assert.Len(t, register.Rows, 2)
	assert.Equal(t, "1180.00", types.Display(register.Total))
}
