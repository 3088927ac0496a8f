package numerator

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "liquimed/internal/core/numerator"
)

// fakeRow scans a preset int64 value.
type fakeRow struct {
	val int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int64); ok {
		*p = r.val
	}
	return nil
}

// fakeSequences emulates the sys_sequences UPSERT: every QueryRow call
// advances the counter by the increment argument (1 for Strict).
type fakeSequences struct {
	counters map[string]int64
	calls    int
}

func (q *fakeSequences) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.calls++
	key := args[0].(string)
	inc := int64(1)
	if len(args) > 1 {
		switch v := args[1].(type) {
		case int64:
			inc = v
		case int:
			inc = int64(v)
		}
	}
	if q.counters == nil {
		q.counters = make(map[string]int64)
	}
	q.counters[key] += inc
	return fakeRow{val: q.counters[key]}
}

func staticProvider(q Querier) QuerierProvider {
	return func(context.Context) Querier { return q }
}

func TestGetNextNumber_Strict(t *testing.T) {
	seq := &fakeSequences{}
	svc := New(staticProvider(seq))
	period := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	cfg := corenumerator.DefaultConfig("LQ")

	n1, err := svc.GetNextNumber(context.Background(), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "LQ-2025-00001", n1)

	n2, err := svc.GetNextNumber(context.Background(), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "LQ-2025-00002", n2)

	// Every Strict allocation hits the database.
	assert.Equal(t, 2, seq.calls)
}

func TestGetNextNumber_SeparateSequencesPerPrefix(t *testing.T) {
	svc := New(staticProvider(&fakeSequences{}))
	period := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	lq, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("LQ"), nil, period)
	require.NoError(t, err)
	val, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("VAL"), nil, period)
	require.NoError(t, err)

	assert.Equal(t, "LQ-2025-00001", lq)
	assert.Equal(t, "VAL-2025-00001", val)
}

func TestGetNextNumber_YearlyReset(t *testing.T) {
	svc := New(staticProvider(&fakeSequences{}))
	cfg := corenumerator.DefaultConfig("LQ")

	n2025, err := svc.GetNextNumber(context.Background(), cfg, nil,
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	n2026, err := svc.GetNextNumber(context.Background(), cfg, nil,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Counters are independent per year.
	assert.Equal(t, "LQ-2025-00001", n2025)
	assert.Equal(t, "LQ-2026-00001", n2026)
}

func TestGetNextNumber_CachedAllocatesRanges(t *testing.T) {
	seq := &fakeSequences{}
	svc := New(staticProvider(seq))
	period := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	cfg := corenumerator.DefaultConfig("LQ")
	opts := &corenumerator.Options{
		Strategy:  corenumerator.StrategyCached,
		RangeSize: 10,
	}

	for i := 1; i <= 15; i++ {
		n, err := svc.GetNextNumber(context.Background(), cfg, opts, period)
		require.NoError(t, err)
		assert.Contains(t, n, "LQ-2025-")
	}

	// 15 numbers from ranges of 10 need only two database round trips.
	assert.Equal(t, 2, seq.calls)
}

func TestSetNextNumber(t *testing.T) {
	seq := &fakeSequences{}
	svc := New(staticProvider(seq))
	period := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	cfg := corenumerator.DefaultConfig("LQ")

	// The fake advances by the given value, so the next Strict call
	// continues from there.
	require.NoError(t, svc.SetNextNumber(context.Background(), cfg, period, 100))

	n, err := svc.GetNextNumber(context.Background(), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "LQ-2025-00101", n)
}
