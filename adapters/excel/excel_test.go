package excel

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	dexport "riskboard/domain/export"
	"riskboard/internal/logger"
)

func sampleGrid() dexport.Grid {
	return dexport.Grid{
		Header: []string{"patient_id", "readmission_probability", "risk_level", "top_factors"},
		Rows: [][]any{
			{"P001", 0.87, "High Risk", `["prior_admissions","age"]`},
			{"P002", 0.12, "Low Risk", ""},
			{"P003", 3, "", `{"note":"a < b & c"}`},
		},
	}
}

// padRows restores the trailing empty cells GetRows trims
func padRows(rows [][]string, width int) [][]string {
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows
}

func TestXLSXEncoderRoundTrip(t *testing.T) {
	grid := sampleGrid()
	enc := NewXLSXEncoder("")

	data, err := enc.Encode(grid)
	require.NoError(t, err)
	assert.Equal(t, dexport.FormatXLSX, enc.Format())

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheetName}, f.GetSheetList())

	rows, err := f.GetRows(DefaultSheetName)
	require.NoError(t, err)
	assert.Equal(t, grid.Text(), padRows(rows, len(grid.Header)))

	styleID, err := f.GetCellStyle(DefaultSheetName, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	cellType, err := f.GetCellType(DefaultSheetName, "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, cellType, "probabilities stay numeric")
}

func TestXLSXEncoderCustomSheet(t *testing.T) {
	data, err := NewXLSXEncoder("Readmissions").Encode(sampleGrid())
	require.NoError(t, err)

	table, err := NewDataReader(logger.Discard()).ReadXLSX(bytes.NewReader(data), "Readmissions")
	require.NoError(t, err)
	assert.Equal(t, sampleGrid().Header, table.Headers)
	assert.Equal(t, "P002", table.Rows[1]["patient_id"])
	assert.Equal(t, "", table.Rows[1]["top_factors"])
}

func TestXLSXEncoderRejectsOversizedCell(t *testing.T) {
	grid := dexport.Grid{
		Header: []string{"explanation"},
		Rows:   [][]any{{strings.Repeat("x", excelize.TotalCellChars+1)}},
	}

	_, err := NewXLSXEncoder("").Encode(grid)
	assert.Error(t, err)
}

func TestXLSXEncoderInvalidSheetName(t *testing.T) {
	_, err := NewXLSXEncoder("bad/name").Encode(sampleGrid())
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	r := NewDataReader(logger.Discard())
	in := "\ufeffpatient_id, age ,gender\nP001,65,Female\nP002, 70\n"

	table, err := r.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"patient_id", "age", "gender"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, Row{"patient_id": "P001", "age": "65", "gender": "Female"}, table.Rows[0])
	assert.Equal(t, Row{"patient_id": "P002", "age": "70", "gender": ""}, table.Rows[1])
	assert.Equal(t, []string{"diagnosis"}, table.Missing([]string{"age", "diagnosis"}))
}

func TestReadCSVRequiresDataRow(t *testing.T) {
	r := NewDataReader(logger.Discard())

	_, err := r.ReadCSV(strings.NewReader("patient_id,age\n"))
	assert.ErrorContains(t, err, "at least a header row and one data row")

	_, err = r.ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = r.ReadCSV(strings.NewReader("a,b\n\"unterminated,1\n"))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	r := NewDataReader(logger.Discard())

	csvPath := filepath.Join(dir, "patients.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("patient_id\nP1\n"), 0644))
	table, err := r.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	data, err := NewXLSXEncoder("").Encode(sampleGrid())
	require.NoError(t, err)
	xlsxPath := filepath.Join(dir, "results.xlsx")
	require.NoError(t, os.WriteFile(xlsxPath, data, 0644))
	table, err = r.ReadFile(xlsxPath)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)

	_, err = r.ReadFile(filepath.Join(dir, "missing.csv"))
	assert.ErrorContains(t, err, "file not found")

	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0644))
	_, err = r.ReadFile(txtPath)
	assert.ErrorContains(t, err, "unsupported file type")
}
