package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Format identifies an export encoding
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat parses a user supplied format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatXLSX, "":
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// FilePrefix is the stem of every exported file name
const FilePrefix = "healthcare_predictions"

// FileName returns healthcare_predictions_<YYYY-MM-DD>.<ext>
func FileName(f Format, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", FilePrefix, at.Format("2006-01-02"), f)
}

// Grid is the normalized two-dimensional form of a result batch.
// Cells hold strings, numbers or bools only.
type Grid struct {
	Header []string
	Rows   [][]any
}

// Empty reports whether the grid has no data rows
func (g Grid) Empty() bool {
	return len(g.Rows) == 0
}

// Matrix returns the header followed by the rows, as a single table
func (g Grid) Matrix() [][]any {
	out := make([][]any, 0, len(g.Rows)+1)
	header := make([]any, len(g.Header))
	for i, h := range g.Header {
		header[i] = h
	}
	out = append(out, header)
	return append(out, g.Rows...)
}

// Text returns the header and rows as the strings both encoders write
func (g Grid) Text() [][]string {
	out := make([][]string, 0, len(g.Rows)+1)
	out = append(out, append([]string(nil), g.Header...))
	for _, row := range g.Rows {
		line := make([]string, len(row))
		for i, cell := range row {
			line[i] = FormatCell(cell)
		}
		out = append(out, line)
	}
	return out
}

// ExportedFile is a finished export handed to a sink
type ExportedFile struct {
	Name        string
	Format      Format
	ContentType string
	Data        []byte
}

// FormatCell renders a normalized cell as text
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
