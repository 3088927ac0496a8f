package grouping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquimed/internal/core/types"
	"liquimed/internal/domain/records"
)

func item(rec, client, unit, exam, amount string) records.LineItem {
	return records.LineItem{
		Identity:         records.Identity{RecordNumber: rec, DocumentNumber: "D-" + rec},
		ClientName:       client,
		ProductionUnit:   unit,
		ExamType:         exam,
		Amount:           types.MustMoney(amount),
		ServiceStartDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestGroup_PartitionsByKey(t *testing.T) {
	items := []records.LineItem{
		item("R1", "Clinica Sur", "Lab", "Blood", "100"),
		item("R2", "Clinica Sur", "Lab", "Blood", "200"),
		item("R3", "Clinica Sur", "Lab", "X-Ray", "50"),
		item("R4", "Clinica Norte", "Lab", "Blood", "75"),
	}

	groups := Group(items, ByClientUnitExam)
	require.Len(t, groups, 3)

	// Case-insensitive lexicographic order over the key fields.
	assert.Equal(t, []string{"Clinica Norte", "Lab", "Blood"}, groups[0].Keys)
	assert.Equal(t, []string{"Clinica Sur", "Lab", "Blood"}, groups[1].Keys)
	assert.Equal(t, []string{"Clinica Sur", "Lab", "X-Ray"}, groups[2].Keys)

	sur := groups[1]
	assert.Len(t, sur.Items, 2)
	assert.Equal(t, "300.00", types.Display(sur.TotalAmount))
	assert.Equal(t, 2, sur.EligibleCount)
	assert.Equal(t, StateUnsettled, sur.State)
}

func TestGroup_EmptyInput(t *testing.T) {
	groups := Group(nil, ByClientUnitExam)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGroup_EmptyDimensionBucketsUnderUnknown(t *testing.T) {
	items := []records.LineItem{
		item("R1", "", "Lab", "Blood", "100"),
		item("R2", "  ", "Lab", "Blood", "50"),
	}

	groups := Group(items, ByClientUnitExam)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{UnknownKey, "Lab", "Blood"}, groups[0].Keys)
	assert.Len(t, groups[0].Items, 2)
}

func TestGroup_ExcludedAndSettledNotCounted(t *testing.T) {
	excluded := item("R2", "Clinica Sur", "Lab", "Blood", "200")
	excluded.IsExcluded = true
	settled := item("R3", "Clinica Sur", "Lab", "Blood", "400")
	settled.IsSettled = true

	items := []records.LineItem{
		item("R1", "Clinica Sur", "Lab", "Blood", "100"),
		excluded,
		settled,
	}

	groups := Group(items, ByClientUnitExam)
	require.Len(t, groups, 1)

	g := groups[0]
	// All members stay visible; only eligible ones contribute to the total.
	assert.Len(t, g.Items, 3)
	assert.Equal(t, "100.00", types.Display(g.TotalAmount))
	assert.Equal(t, 1, g.EligibleCount)
	assert.Equal(t, 1, g.ExcludedCount)
	assert.Equal(t, 1, g.SettledCount)
	assert.Equal(t, StatePartiallySettled, g.State)
}

func TestGroup_StateDerivation(t *testing.T) {
	settled := item("R1", "Clinica Sur", "Lab", "Blood", "100")
	settled.IsSettled = true

	groups := Group([]records.LineItem{settled}, ByClientUnitExam)
	require.Len(t, groups, 1)
	assert.Equal(t, StateSettled, groups[0].State)
}

func TestGroup_EarliestServiceDate(t *testing.T) {
	early := item("R1", "Clinica Sur", "Lab", "Blood", "100")
	early.ServiceStartDate = time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	late := item("R2", "Clinica Sur", "Lab", "Blood", "100")
	late.ServiceStartDate = time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	groups := Group([]records.LineItem{late, early}, ByClientUnitExam)
	require.Len(t, groups, 1)
	assert.Equal(t, early.ServiceStartDate, groups[0].EarliestServiceDate)
}

func TestKeyOf_StableAcrossRuns(t *testing.T) {
	it := item("R1", "Clinica Sur", "Lab", "Blood", "100")
	first := KeyOf(&it, ByClientUnitExam)
	second := KeyOf(&it, ByClientUnitExam)
	assert.Equal(t, first, second)

	other := item("R2", "Clinica Sur", "Lab", "Blood", "50")
	assert.Equal(t, first, KeyOf(&other, ByClientUnitExam))
}

func TestBySiteExam(t *testing.T) {
	it := item("R1", "Clinica Sur", "Lab", "Blood", "100")
	it.SiteCode = "SED01"
	assert.Equal(t, []string{"SED01", "Blood"}, BySiteExam(&it))
}

func TestSelect_PreservesOrder(t *testing.T) {
	items := []records.LineItem{
		item("R1", "Alfa", "Lab", "Blood", "100"),
		item("R2", "Beta", "Lab", "Blood", "100"),
		item("R3", "Gamma", "Lab", "Blood", "100"),
	}
	groups := Group(items, ByClientUnitExam)
	require.Len(t, groups, 3)

	ids := map[string]struct{}{
		groups[2].GroupID: {},
		groups[0].GroupID: {},
	}
	selected := Select(groups, ids)
	require.Len(t, selected, 2)
	assert.Equal(t, "Alfa", selected[0].Keys[0])
	assert.Equal(t, "Gamma", selected[1].Keys[0])
}
