package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"riskboard/domain/prediction"
)

// Normalizer turns arbitrary result values into grid cells: strings, numbers and bools
type Normalizer struct {
	glyphs *GlyphFilter
}

// NewNormalizer creates a Normalizer; a nil filter leaves text untouched
func NewNormalizer(glyphs *GlyphFilter) *Normalizer {
	return &Normalizer{glyphs: glyphs}
}

// Normalize maps one field value to a cell
func (n *Normalizer) Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return n.glyphs.Strip(val)
	case bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return val
	default:
		return n.compact(val)
	}
}

// compact renders nested values as JSON with the glyph filter applied to every
// embedded string. Map keys come out sorted.
func (n *Normalizer) compact(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(n.scrub(v)); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func (n *Normalizer) scrub(v any) any {
	switch val := v.(type) {
	case string:
		return n.glyphs.Strip(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = n.scrub(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = n.glyphs.Strip(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = n.scrub(item)
		}
		return out
	case prediction.Record:
		var out prediction.Record
		for _, name := range val.Fields() {
			item, _ := val.Get(name)
			out.Set(name, n.scrub(item))
		}
		return out
	default:
		return v
	}
}
