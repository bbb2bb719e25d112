package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dexport "riskboard/domain/export"
	"riskboard/domain/prediction"
	"riskboard/internal/clock"
	"riskboard/internal/config"
	"riskboard/internal/logger"
	"riskboard/internal/metrics"
	"riskboard/ports"
)

type exportCounter struct {
	metrics.Noop
	exports   []string
	fallbacks int
}

func (c *exportCounter) RecordExport(format string, fallback bool) {
	c.exports = append(c.exports, format)
	if fallback {
		c.fallbacks++
	}
}

type memorySink struct {
	files []dexport.ExportedFile
	err   error
}

func (s *memorySink) Deliver(ctx context.Context, file dexport.ExportedFile) error {
	if s.err != nil {
		return s.err
	}
	s.files = append(s.files, file)
	return nil
}

// stubEncoder stands in for the spreadsheet encoder
type stubEncoder struct {
	err   error
	grids []dexport.Grid
}

func (e *stubEncoder) Format() dexport.Format { return dexport.FormatXLSX }

func (e *stubEncoder) Encode(grid dexport.Grid) ([]byte, error) {
	e.grids = append(e.grids, grid)
	if e.err != nil {
		return nil, e.err
	}
	return []byte("xlsx-bytes"), nil
}

var exportDay = time.Date(2024, 11, 5, 14, 30, 0, 0, time.UTC)

func defaultNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	glyphs, err := ParseGlyphFilter(config.DefaultStripRanges)
	require.NoError(t, err)
	return NewNormalizer(glyphs)
}

func newPipeline(t *testing.T, primary *stubEncoder, recorder metrics.Recorder) *Pipeline {
	t.Helper()
	var enc ports.SheetEncoder
	if primary != nil {
		enc = primary
	}
	return NewPipeline(enc, defaultNormalizer(t), clock.NewFake(exportDay), recorder, logger.Discard())
}

func TestDiscoverColumnsFirstOccurrence(t *testing.T) {
	records := []prediction.Record{
		prediction.NewRecord("a", 1.0, "b", 2.0),
		prediction.NewRecord("b", 3.0, "c", 4.0),
	}
	assert.Equal(t, []string{"a", "b", "c"}, DiscoverColumns(records))

	late := []prediction.Record{
		prediction.NewRecord("patient_id", "P1", "risk_level", "Low"),
		prediction.NewRecord("risk_level", "High", "patient_id", "P2"),
		prediction.NewRecord("patient_id", "P3", "top_factors", []any{"age"}, "risk_level", "Low"),
	}
	assert.Equal(t, []string{"patient_id", "risk_level", "top_factors"}, DiscoverColumns(late))
	assert.Empty(t, DiscoverColumns(nil))
}

func TestBuildGridFillsMissingFields(t *testing.T) {
	records := []prediction.Record{
		prediction.NewRecord("a", 1.0, "b", 2.0),
		prediction.NewRecord("b", 3.0, "c", 4.0),
	}

	grid := BuildGrid(records, NewNormalizer(nil))

	assert.Equal(t, []string{"a", "b", "c"}, grid.Header)
	assert.Equal(t, [][]any{
		{1.0, 2.0, ""},
		{"", 3.0, 4.0},
	}, grid.Rows)
	assert.Equal(t, [][]string{
		{"a", "b", "c"},
		{"1", "2", ""},
		{"", "3", "4"},
	}, grid.Text())
}

func TestNormalize(t *testing.T) {
	n := defaultNormalizer(t)

	assert.Equal(t, "", n.Normalize(nil))
	assert.Equal(t, "High Risk", n.Normalize("🔴 High Risk"))
	assert.Equal(t, "Moderate", n.Normalize("Moderate ⚠️"))
	assert.Equal(t, "  plain  ", n.Normalize("  plain  "), "untouched text keeps its spacing")
	assert.Equal(t, 0.87, n.Normalize(0.87))
	assert.Equal(t, 3, n.Normalize(3))
	assert.Equal(t, true, n.Normalize(true))

	assert.Equal(t, `["age","prior <visits>"]`, n.Normalize([]any{"age", "prior <visits>"}))
	assert.Equal(t,
		`{"label":"High","weights":[0.5,1],"zeta":null}`,
		n.Normalize(map[string]any{"zeta": nil, "label": "🔴 High", "weights": []any{0.5, 1.0}}))
}

func TestNormalizeFallsBackToFormatting(t *testing.T) {
	n := NewNormalizer(nil)
	ch := make(chan int)

	assert.Equal(t, fmt.Sprint(ch), n.Normalize(ch))
}

func TestGlyphFilter(t *testing.T) {
	f, err := ParseGlyphFilter("1F300-1FAFF, 2600-27BF, FE0F")
	require.NoError(t, err)

	assert.True(t, f.Matches('🟢'))
	assert.True(t, f.Matches('⚠'))
	assert.True(t, f.Matches(0xFE0F))
	assert.False(t, f.Matches('A'))
	assert.False(t, f.Matches('é'))
	assert.Equal(t, "Low Risk", f.Strip("🟢 Low Risk"))
	assert.Equal(t, "", f.Strip("🟢"))

	latin, err := ParseGlyphFilter("U+0041-0043")
	require.NoError(t, err)
	assert.Equal(t, "D", latin.Strip("ABCD"))

	var none *GlyphFilter
	assert.Equal(t, " x ", none.Strip(" x "))
}

func TestParseRangesErrors(t *testing.T) {
	for _, list := range []string{"zz", "2700-26FF", "1F600-", "110000"} {
		_, err := ParseRanges(list)
		assert.Error(t, err, list)
	}

	ranges, err := ParseRanges("")
	require.NoError(t, err)
	assert.Empty(t, ranges)

	ranges, err = ParseRanges("FFF0-10010")
	require.NoError(t, err)
	f := NewGlyphFilter(ranges)
	assert.True(t, f.Matches(0xFFF5))
	assert.True(t, f.Matches(0x10005))
	assert.False(t, f.Matches(0x10011))
}

func TestCSVEncoderQuoting(t *testing.T) {
	grid := dexport.Grid{
		Header: []string{"patient_id", "notes"},
		Rows: [][]any{
			{"P1", `said "fine", left`},
			{"P2", "line one\nline two"},
			{"P3", 0.25},
		},
	}

	data, err := CSVEncoder{}.Encode(grid)
	require.NoError(t, err)

	assert.Equal(t,
		"patient_id,notes\nP1,\"said \"\"fine\"\", left\"\nP2,\"line one\nline two\"\nP3,0.25\n",
		string(data))

	parsed, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, grid.Text(), parsed)
}

func TestCSVSingleColumnKeepsEmptyRows(t *testing.T) {
	records := []prediction.Record{
		prediction.NewRecord("note", "ok"),
		prediction.NewRecord("note", nil),
		prediction.NewRecord("other", 1.0),
		prediction.NewRecord("note", "🔴"),
	}
	grid := BuildGrid(records, defaultNormalizer(t))
	grid.Header = grid.Header[:1]
	for i := range grid.Rows {
		grid.Rows[i] = grid.Rows[i][:1]
	}

	data, err := CSVEncoder{}.Encode(grid)
	require.NoError(t, err)
	assert.Equal(t, "note\nok\n\"\"\n\"\"\n\"\"\n", string(data))

	parsed, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"note"}, {"ok"}, {""}, {""}, {""}}, parsed)
}

func TestExportCSVRoundTripsSingleColumn(t *testing.T) {
	records := []prediction.Record{
		prediction.NewRecord("note", "ok"),
		prediction.NewRecord("note", nil),
		prediction.NewRecord("note", "🔴"),
	}
	p := newPipeline(t, &stubEncoder{}, metrics.Noop{})
	sink := &memorySink{}

	_, err := p.ExportAs(context.Background(), records, dexport.FormatCSV, sink)
	require.NoError(t, err)
	require.Len(t, sink.files, 1)

	parsed, err := csv.NewReader(bytes.NewReader(sink.files[0].Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"note"}, {"ok"}, {""}, {""}}, parsed)
}

func TestExportUsesPrimaryEncoder(t *testing.T) {
	primary := &stubEncoder{}
	counter := &exportCounter{}
	p := newPipeline(t, primary, counter)
	sink := &memorySink{}

	out, err := p.Export(context.Background(), []prediction.Record{prediction.NewRecord("a", 1.0)}, sink)
	require.NoError(t, err)

	assert.Equal(t, Outcome{
		Exported: true,
		FileName: "healthcare_predictions_2024-11-05.xlsx",
		Format:   dexport.FormatXLSX,
	}, out)
	require.Len(t, sink.files, 1)
	assert.Equal(t, []byte("xlsx-bytes"), sink.files[0].Data)
	assert.Equal(t, dexport.FormatXLSX.ContentType(), sink.files[0].ContentType)
	assert.Len(t, primary.grids, 1)

	assert.Equal(t, []string{"xlsx"}, counter.exports)
	assert.Zero(t, counter.fallbacks)
}

func TestExportFallsBackToCSV(t *testing.T) {
	records := []prediction.Record{
		prediction.NewRecord("patient_id", "P1", "risk_level", "🔴 High"),
		prediction.NewRecord("patient_id", "P2", "explanation", map[string]any{"age": 0.4}),
	}

	cases := map[string]*stubEncoder{
		"encoder error": {err: fmt.Errorf("zip writer closed")},
		"no encoder":    nil,
	}
	for name, primary := range cases {
		t.Run(name, func(t *testing.T) {
			sink := &memorySink{}
			counter := &exportCounter{}
			p := newPipeline(t, primary, counter)

			out, err := p.Export(context.Background(), records, sink)
			require.NoError(t, err, "encoder failures are recovered")

			assert.True(t, out.Exported)
			assert.True(t, out.UsedFallback)
			assert.Equal(t, dexport.FormatCSV, out.Format)
			assert.Equal(t, "healthcare_predictions_2024-11-05.csv", out.FileName)

			require.Len(t, sink.files, 1)
			assert.Equal(t,
				"patient_id,risk_level,explanation\nP1,High,\nP2,,\"{\"\"age\"\":0.4}\"\n",
				string(sink.files[0].Data))
			assert.Equal(t, []string{"csv"}, counter.exports)
			assert.Equal(t, 1, counter.fallbacks)
		})
	}
}

func TestExportAsCSVSkipsSpreadsheet(t *testing.T) {
	primary := &stubEncoder{}
	p := newPipeline(t, primary, metrics.Noop{})
	sink := &memorySink{}

	out, err := p.ExportAs(context.Background(), []prediction.Record{prediction.NewRecord("a", 1.0)}, dexport.FormatCSV, sink)
	require.NoError(t, err)

	assert.Equal(t, dexport.FormatCSV, out.Format)
	assert.False(t, out.UsedFallback)
	assert.Empty(t, primary.grids)
}

func TestExportEmptyBatchIsNoop(t *testing.T) {
	primary := &stubEncoder{}
	p := newPipeline(t, primary, metrics.Noop{})
	sink := &memorySink{}

	out, err := p.Export(context.Background(), nil, sink)
	require.NoError(t, err)

	assert.False(t, out.Exported)
	assert.Empty(t, sink.files)
	assert.Empty(t, primary.grids)
}

func TestExportSinkError(t *testing.T) {
	p := newPipeline(t, &stubEncoder{}, metrics.Noop{})
	sink := &memorySink{err: fmt.Errorf("disk full")}

	_, err := p.Export(context.Background(), []prediction.Record{prediction.NewRecord("a", 1.0)}, sink)
	assert.ErrorContains(t, err, "disk full")
}

func TestExportIsInformationallyEquivalent(t *testing.T) {
	records := []prediction.Record{
		prediction.NewRecord("id", 1.0, "tags", []any{"x", "y"}),
		prediction.NewRecord("id", 2.0, "flag", true),
	}
	primary := &stubEncoder{}
	p := newPipeline(t, primary, metrics.Noop{})

	_, err := p.Export(context.Background(), records, &memorySink{})
	require.NoError(t, err)

	sink := &memorySink{}
	_, err = p.ExportAs(context.Background(), records, dexport.FormatCSV, sink)
	require.NoError(t, err)

	parsed, err := csv.NewReader(bytes.NewReader(sink.files[0].Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, primary.grids[0].Text(), parsed)
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := DirSink{Dir: dir}
	file := dexport.ExportedFile{Name: "healthcare_predictions_2024-11-05.csv", Data: []byte("a\n1\n")}

	require.NoError(t, sink.Deliver(context.Background(), file))
	require.NoError(t, sink.Deliver(context.Background(), file))

	data, err := os.ReadFile(sink.Path(file))
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sink.Deliver(ctx, file))
}

func TestRecordsFromJSONKeepOrder(t *testing.T) {
	var records []prediction.Record
	require.NoError(t, json.Unmarshal([]byte(`[{"z":1,"a":2},{"m":3,"z":4}]`), &records))
	assert.Equal(t, []string{"z", "a", "m"}, DiscoverColumns(records))
}
