package excel

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	dexport "riskboard/domain/export"
	"riskboard/ports"
)

// DefaultSheetName is the worksheet exported results are written to
const DefaultSheetName = "Predictions"

// XLSXEncoder writes a grid to a single-sheet workbook
type XLSXEncoder struct {
	SheetName string
}

var _ ports.SheetEncoder = (*XLSXEncoder)(nil)

// NewXLSXEncoder creates an encoder writing to sheet (DefaultSheetName when empty)
func NewXLSXEncoder(sheet string) *XLSXEncoder {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &XLSXEncoder{SheetName: sheet}
}

// Format returns xlsx
func (e *XLSXEncoder) Format() dexport.Format {
	return dexport.FormatXLSX
}

// Encode writes the header in bold on row 1 and one row per grid row below it.
// Numbers and bools keep their native cell types. A panic inside the workbook
// library is returned as an error so the caller can fall back to CSV.
func (e *XLSXEncoder) Encode(grid dexport.Grid) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("xlsx encoder panicked: %v", r)
		}
	}()

	f := excelize.NewFile()
	defer f.Close()

	sheet := e.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for r, row := range grid.Matrix() {
		for c, v := range row {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, cellValue(v)); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", cell, err)
			}
		}
	}
	if len(grid.Header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(grid.Header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// cellValue maps a grid cell to a value excelize stores natively
func cellValue(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return dexport.FormatCell(val)
		}
		return val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case string, bool, int, int64, int32, uint, uint64, float32:
		return val
	default:
		return dexport.FormatCell(val)
	}
}
