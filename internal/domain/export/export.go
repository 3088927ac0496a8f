// Package export renders settlement batches as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"liquimed/internal/core/apperror"
	"liquimed/internal/core/types"
	"liquimed/internal/domain/settlement"
)

// Format identifies an export format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatXLSX, FormatPDF:
		return Format(s), nil
	default:
		return "", apperror.NewValidation("unsupported export format").
			WithDetail("format", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Filename returns the download filename for a batch.
func (f Format) Filename(batchNumber string) string {
	return fmt.Sprintf("%s.%s", batchNumber, f)
}

var detailHeaders = []string{
	"#", "Record", "Document", "Client", "Production Unit", "Exam Type",
	"Site", "Patient", "Service Date", "Amount",
}

// Batch renders the batch in the requested format.
func Batch(b *settlement.Batch, format Format) ([]byte, error) {
	switch format {
	case FormatPDF:
		return BatchPDF(b)
	default:
		return BatchXLSX(b)
	}
}

// BatchXLSX renders the batch as a spreadsheet: a header block with the
// document fields, one row per detail line, and a totals block.
func BatchXLSX(b *settlement.Batch) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Settlement"
	f.SetSheetName("Sheet1", sheet)

	headerRows := [][]any{
		{"Settlement Batch", b.Number},
		{"Period", b.DateFrom.Format("2006-01-02") + " to " + b.DateTo.Format("2006-01-02")},
		{"Payment Condition", string(b.PaymentCondition)},
		{"State", string(b.State)},
		{"Groups", b.GroupCount},
		{"Patients", b.PatientCount},
	}
	row := 1
	for _, hr := range headerRows {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &hr); err != nil {
			return nil, err
		}
		row++
	}

	row++
	cell, _ := excelize.CoordinatesToCellName(1, row)
	headers := make([]any, len(detailHeaders))
	for i, h := range detailHeaders {
		headers[i] = h
	}
	if err := f.SetSheetRow(sheet, cell, &headers); err != nil {
		return nil, err
	}

	for _, d := range b.Details {
		row++
		cell, _ = excelize.CoordinatesToCellName(1, row)
		values := []any{
			d.LineNo, d.RecordNumber, d.DocumentNumber, d.ClientName,
			d.ProductionUnit, d.ExamType, d.SiteName, d.PatientName,
			d.ServiceStartDate.Format("2006-01-02"), types.Display(d.Amount),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	totals := [][]any{
		{"Subtotal", types.Display(b.Subtotal)},
		{"IGV", types.Display(b.Tax)},
		{"Total", types.Display(b.Total)},
	}
	row++
	for _, tr := range totals {
		row++
		cell, _ = excelize.CoordinatesToCellName(9, row)
		if err := f.SetSheetRow(sheet, cell, &tr); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BatchPDF renders the batch as a landscape PDF table.
func BatchPDF(b *settlement.Batch) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Settlement Batch "+b.Number)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s    Payment: %s    State: %s",
		b.DateFrom.Format("2006-01-02"), b.DateTo.Format("2006-01-02"),
		b.PaymentCondition, b.State))
	pdf.Ln(10)

	widths := []float64{10, 25, 25, 45, 30, 30, 30, 45, 22, 25}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range detailHeaders {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, d := range b.Details {
		cells := []string{
			strconv.Itoa(d.LineNo), d.RecordNumber, d.DocumentNumber,
			d.ClientName, d.ProductionUnit, d.ExamType, d.SiteName,
			d.PatientName, d.ServiceStartDate.Format("2006-01-02"),
			types.Display(d.Amount),
		}
		for i, c := range cells {
			align := "L"
			if i == len(cells)-1 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 5, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	labelWidth := widths[len(widths)-2]
	valueWidth := widths[len(widths)-1]
	offset := 0.0
	for _, w := range widths[:len(widths)-2] {
		offset += w
	}
	pdf.SetX(pdf.GetX() + offset)
	pdf.CellFormat(labelWidth, 6, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(valueWidth, 6, types.Display(b.Subtotal), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.SetX(pdf.GetX() + offset)
	pdf.CellFormat(labelWidth, 6, "IGV", "", 0, "R", false, 0, "")
	pdf.CellFormat(valueWidth, 6, types.Display(b.Tax), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.SetX(pdf.GetX() + offset)
	pdf.CellFormat(labelWidth, 6, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(valueWidth, 6, types.Display(b.Total), "1", 0, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
