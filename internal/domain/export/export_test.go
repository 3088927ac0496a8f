package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/records"
	"liquimed/internal/domain/settlement"
)

func testBatch() *settlement.Batch {
	b := settlement.NewBatch(
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		records.PaymentCredit,
	)
	b.Number = "LQ-2025-00007"
	b.Details = []settlement.Detail{
		{
			BatchID: b.ID, LineNo: 1,
			RecordNumber: "R1", DocumentNumber: "D1",
			ClientName: "Clinica Sur", ProductionUnit: "Lab", ExamType: "Blood",
			SiteCode: "SED01", SiteName: "Sede Central", PatientName: "Ana Perez",
			Amount:           types.MustMoney("100"),
			ServiceStartDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			BatchID: b.ID, LineNo: 2,
			RecordNumber: "R2", DocumentNumber: "D2",
			ClientName: "Clinica Sur", ProductionUnit: "Lab", ExamType: "Blood",
			SiteCode: "SED01", SiteName: "Sede Central", PatientName: "Jose Lopez",
			Amount:           types.MustMoney("200"),
			ServiceStartDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		},
	}
	b.RecomputeTotals()
	b.GroupCount = 1
	b.PatientCount = 2
	return b
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = ParseFormat("csv")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestBatchXLSX(t *testing.T) {
	b := testBatch()

	data, err := BatchXLSX(b)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Settlement")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "Settlement Batch", rows[0][0])
	assert.Equal(t, "LQ-2025-00007", rows[0][1])

	var flat []string
	for _, row := range rows {
		flat = append(flat, row...)
	}
	assert.Contains(t, flat, "Ana Perez")
	assert.Contains(t, flat, "300.00")
	assert.Contains(t, flat, "54.00")
	assert.Contains(t, flat, "354.00")
}

func TestBatchPDF(t *testing.T) {
	data, err := BatchPDF(testBatch())
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestBatch_DispatchesOnFormat(t *testing.T) {
	b := testBatch()

	xlsx, err := Batch(b, FormatXLSX)
	require.NoError(t, err)
	pdf, err := Batch(b, FormatPDF)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
	assert.False(t, bytes.HasPrefix(xlsx, []byte("%PDF")))
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
	assert.Equal(t, "LQ-2025-00007.xlsx", FormatXLSX.Filename(b.Number))
}
