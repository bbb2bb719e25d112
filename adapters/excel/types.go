package excel

// Row is one data row keyed by header
type Row map[string]string

// Table is a tabular file read into memory
type Table struct {
	Headers []string
	Rows    []Row
}

// Missing returns the required headers the table lacks, in the order given
func (t *Table) Missing(required []string) []string {
	have := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		have[h] = true
	}
	var missing []string
	for _, h := range required {
		if !have[h] {
			missing = append(missing, h)
		}
	}
	return missing
}
