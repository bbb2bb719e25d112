package export

import (
	"bytes"
	"encoding/csv"

	dexport "riskboard/domain/export"
	"riskboard/ports"
)

// CSVEncoder writes a grid as RFC 4180 CSV. It is always available and serves as
// the fallback when the spreadsheet encoder cannot be used.
type CSVEncoder struct{}

var _ ports.SheetEncoder = CSVEncoder{}

// Format returns csv
func (CSVEncoder) Format() dexport.Format {
	return dexport.FormatCSV
}

// Encode writes the header then each row, quoting cells only where needed.
// A row made of a single empty cell is written as "" so readers do not take it
// for a blank line.
func (CSVEncoder) Encode(grid dexport.Grid) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range grid.Text() {
		if len(row) == 1 && row[0] == "" {
			w.Flush()
			buf.WriteString(emptyRow)
			continue
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const emptyRow = "\"\"\n"
