package export

import (
	dexport "riskboard/domain/export"
	"riskboard/domain/prediction"
)

// DiscoverColumns returns the union of field names across records, ordered by
// first occurrence: a field first seen in a later record comes after every field
// seen before it.
func DiscoverColumns(records []prediction.Record) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range records {
		for _, name := range r.Fields() {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	return columns
}

// BuildGrid flattens records into a header plus one normalized row per record.
// Fields a record lacks become empty strings.
func BuildGrid(records []prediction.Record, n *Normalizer) dexport.Grid {
	columns := DiscoverColumns(records)
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			v, ok := r.Get(col)
			if !ok {
				row[i] = ""
				continue
			}
			row[i] = n.Normalize(v)
		}
		rows = append(rows, row)
	}
	return dexport.Grid{Header: columns, Rows: rows}
}
