package export

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

const (
	headerFill = "404040"
	headerFont = "FFFFFF"
	maxColWidth = 50.0
)

// writeHeader writes a bold, white-on-dark header row at row 1 for the given
// columns, freezes it, and enables autofilter across the used range.
func writeHeader(f *excelize.File, sheet string, columns []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: headerFont},
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	lastCell, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCell, style); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}

	if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s", lastCell), nil); err != nil {
		return fmt.Errorf("failed to enable autofilter: %w", err)
	}

	for i := range columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, maxColWidth); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	return nil
}

// WriteOutcome is the result of attempting to replace a destination file
// atomically.
type WriteOutcome string

const (
	WriteOK     WriteOutcome = "ok"
	WriteLocked WriteOutcome = "locked"
	WriteIOErr  WriteOutcome = "io_error"
)

// atomicSave writes f to tmpPath then renames it over destPath. If destPath
// exists and cannot be replaced (commonly because an operator has it open),
// the tmp file is preserved and WriteLocked is returned so the caller can
// retry on the next cadence without losing work.
func atomicSave(f *excelize.File, tmpPath, destPath string) (WriteOutcome, error) {
	if err := f.SaveAs(tmpPath); err != nil {
		return WriteIOErr, fmt.Errorf("failed to write temp workbook: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		if os.IsPermission(err) {
			return WriteLocked, nil
		}
		return WriteIOErr, fmt.Errorf("failed to replace workbook: %w", err)
	}

	return WriteOK, nil
}
