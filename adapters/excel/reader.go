// Package excel reads patient files (CSV or XLSX) and writes exported results as XLSX.
package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	logger *slog.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(logger *slog.Logger) *DataReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataReader{logger: logger.With("component", "data_reader")}
}

// ReadFile reads a file, choosing the format by extension
func (r *DataReader) ReadFile(path string) (*Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return r.ReadXLSX(f, "")
	case ".csv":
		return r.ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// ReadCSV reads CSV data into a Table. Rows may be ragged; missing cells read as "".
func (r *DataReader) ReadCSV(in io.Reader) (*Table, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.logger.Debug("csv read", "rows", len(rows), "elapsed", time.Since(readStart))

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}
	rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")

	return r.processRows(rows, "csv"), nil
}

// ReadXLSX reads the named sheet, or the first sheet when sheet is empty
func (r *DataReader) ReadXLSX(in io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("Excel file has no sheets")
		}
		sheet = sheets[0]
	}

	readStart := time.Now()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	r.logger.Debug("sheet read", "sheet", sheet, "rows", len(rows), "elapsed", time.Since(readStart))

	if len(rows) < 2 {
		return nil, fmt.Errorf("Excel file must have at least a header row and one data row")
	}

	return r.processRows(rows, "xlsx"), nil
}

// processRows converts raw string rows into a Table
func (r *DataReader) processRows(rows [][]string, kind string) *Table {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	dataRows := make([]Row, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rowData := make(Row, len(headers))
		for j, header := range headers {
			if j < len(row) {
				rowData[header] = strings.TrimSpace(row[j])
			} else {
				rowData[header] = ""
			}
		}
		dataRows = append(dataRows, rowData)
	}

	r.logger.Debug("file processed", "type", kind, "columns", len(headers), "rows", len(dataRows))

	return &Table{Headers: headers, Rows: dataRows}
}
