package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
)

type stubSource struct {
	items []LineItem
	err   error

	gotFrom, gotTo time.Time
	gotFilters     Filters
}

func (s *stubSource) FetchLineItems(_ context.Context, dateFrom, dateTo time.Time, f Filters) ([]LineItem, error) {
	s.gotFrom, s.gotTo, s.gotFilters = dateFrom, dateTo, f
	if s.err != nil {
		return nil, s.err
	}
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

type stubExclusions struct {
	marks map[Identity]ExclusionMark
}

func (s *stubExclusions) Marks(_ context.Context, ids []Identity) (map[Identity]ExclusionMark, error) {
	out := make(map[Identity]ExclusionMark)
	for _, identity := range ids {
		if m, ok := s.marks[identity]; ok {
			out[identity] = m
		}
	}
	return out, nil
}

type stubSettled struct {
	settled map[Identity]bool
}

func (s *stubSettled) Settled(_ context.Context, ids []Identity) (map[Identity]bool, error) {
	out := make(map[Identity]bool)
	for _, identity := range ids {
		if s.settled[identity] {
			out[identity] = true
		}
	}
	return out, nil
}

func stubItem(rec string) LineItem {
	return LineItem{
		Identity:         Identity{RecordNumber: rec, DocumentNumber: "D-" + rec},
		ClientName:       "Clinica Sur",
		ProductionUnit:   "Lab",
		ExamType:         "Blood",
		PaymentCondition: PaymentCredit,
		SiteCode:         "SED01",
		Amount:           types.MustMoney("100"),
		ServiceStartDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func rangeFor(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
}

func TestFetchWithStatus_StitchesFlags(t *testing.T) {
	from, to := rangeFor(t)
	excludedID := Identity{RecordNumber: "R2", DocumentNumber: "D-R2"}
	settledID := Identity{RecordNumber: "R3", DocumentNumber: "D-R3"}

	svc := NewService(
		&stubSource{items: []LineItem{stubItem("R1"), stubItem("R2"), stubItem("R3")}},
		&stubExclusions{marks: map[Identity]ExclusionMark{
			excludedID: {Excluded: true, CreatedAt: from.AddDate(0, 0, 5)},
		}},
		&stubSettled{settled: map[Identity]bool{settledID: true}},
	)

	items, err := svc.FetchWithStatus(context.Background(), from, to, Filters{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.False(t, items[0].IsExcluded)
	assert.False(t, items[0].IsSettled)
	assert.True(t, items[0].Eligible())

	assert.True(t, items[1].IsExcluded)
	assert.False(t, items[1].CarriedOver)
	assert.False(t, items[1].Eligible())

	assert.True(t, items[2].IsSettled)
	assert.False(t, items[2].Eligible())
}

func TestFetchWithStatus_CarriedOver(t *testing.T) {
	from, to := rangeFor(t)
	identity := Identity{RecordNumber: "R1", DocumentNumber: "D-R1"}

	svc := NewService(
		&stubSource{items: []LineItem{stubItem("R1")}},
		&stubExclusions{marks: map[Identity]ExclusionMark{
			// Excluded before the period, still unresolved.
			identity: {Excluded: true, CreatedAt: from.AddDate(0, -1, 0)},
		}},
		&stubSettled{},
	)

	items, err := svc.FetchWithStatus(context.Background(), from, to, Filters{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsExcluded)
	assert.True(t, items[0].CarriedOver)
}

func TestFetchWithStatus_PassesFilters(t *testing.T) {
	from, to := rangeFor(t)
	source := &stubSource{}
	svc := NewService(source, &stubExclusions{}, &stubSettled{})

	f := Filters{PaymentCondition: PaymentCash, ClientName: "Sur", SiteCode: "SED02"}
	_, err := svc.FetchWithStatus(context.Background(), from, to, f)
	require.NoError(t, err)

	assert.Equal(t, from, source.gotFrom)
	assert.Equal(t, to, source.gotTo)
	assert.Equal(t, f, source.gotFilters)
}

func TestFetchWithStatus_WrapsSourceError(t *testing.T) {
	from, to := rangeFor(t)
	svc := NewService(&stubSource{err: errors.New("connection refused")}, &stubExclusions{}, &stubSettled{})

	_, err := svc.FetchWithStatus(context.Background(), from, to, Filters{})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeExternalSource))
}

func TestFetchWithStatus_InvalidRange(t *testing.T) {
	from, to := rangeFor(t)
	svc := NewService(&stubSource{}, &stubExclusions{}, &stubSettled{})

	_, err := svc.FetchWithStatus(context.Background(), to, from, Filters{})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.FetchWithStatus(context.Background(), time.Time{}, to, Filters{})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestParsePaymentCondition(t *testing.T) {
	pc, err := ParsePaymentCondition(" credit ")
	require.NoError(t, err)
	assert.Equal(t, PaymentCredit, pc)

	pc, err = ParsePaymentCondition("CASH")
	require.NoError(t, err)
	assert.Equal(t, PaymentCash, pc)

	_, err = ParsePaymentCondition("BARTER")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
