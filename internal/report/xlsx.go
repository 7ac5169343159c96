/**
 * XLSX export of the reliability report
 *
 * Same table as the HTML report, as a workbook for offline analysis.
 */

package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/formguard/extraction-worker/internal/reliability"
)

// ExportXLSX returns the reliability report as an XLSX workbook.
func ExportXLSX(r *reliability.ReliabilityReport) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Reliability"
	// NewFile starts with a default Sheet1; rename it so the workbook
	// carries exactly one sheet.
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Field",
		"Documents",
		"Match Rate",
		"Reliability Score",
		"Confidence Avg",
		"Valid Format",
		"Empty",
		"Invalid Format",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	fields := make([]string, 0, len(r.PerField))
	for field := range r.PerField {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	row := 2
	for _, field := range fields {
		stats := r.PerField[field]

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, field)
		write(2, stats.SampleCount)
		write(3, fmt.Sprintf("%.1f%%", stats.MatchRate*100))
		write(4, fmt.Sprintf("%.1f%%", stats.ReliabilityScore*100))
		write(5, fmt.Sprintf("%.4f", stats.ConfidenceAvg))
		write(6, stats.Formats.Valid)
		write(7, stats.Formats.Empty)
		write(8, stats.Formats.Invalid)

		row++
	}

	// Summary block beneath the table.
	summaryRow := row + 1
	cell, _ := excelize.CoordinatesToCellName(1, summaryRow)
	_ = f.SetCellValue(sheet, cell, "Overall score")
	cell, _ = excelize.CoordinatesToCellName(2, summaryRow)
	_ = f.SetCellValue(sheet, cell, fmt.Sprintf("%.1f%%", r.OverallScore*100))
	cell, _ = excelize.CoordinatesToCellName(1, summaryRow+1)
	_ = f.SetCellValue(sheet, cell, "Documents")
	cell, _ = excelize.CoordinatesToCellName(2, summaryRow+1)
	_ = f.SetCellValue(sheet, cell, r.DocumentCount)

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "H", 16)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
