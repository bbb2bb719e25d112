package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/rangetable"
)

// Range is an inclusive span of code points
type Range struct {
	Lo, Hi rune
}

// ParseRanges parses a comma separated list of hex code points and spans,
// e.g. "1F300-1FAFF,2600-27BF,FE0F".
func ParseRanges(list string) ([]Range, error) {
	var out []Range
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		loText, hiText, isSpan := strings.Cut(part, "-")
		lo, err := parseCodePoint(loText)
		if err != nil {
			return nil, fmt.Errorf("invalid glyph range %q: %w", part, err)
		}
		hi := lo
		if isSpan {
			hi, err = parseCodePoint(hiText)
			if err != nil {
				return nil, fmt.Errorf("invalid glyph range %q: %w", part, err)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("invalid glyph range %q: end before start", part)
		}
		out = append(out, Range{Lo: lo, Hi: hi})
	}
	return out, nil
}

func parseCodePoint(s string) (rune, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "U+"), "u+")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	if v > unicode.MaxRune {
		return 0, fmt.Errorf("code point %X out of range", v)
	}
	return rune(v), nil
}

// GlyphFilter removes pictographic glyphs (emoji risk badges and the like) from text.
type GlyphFilter struct {
	table *unicode.RangeTable
}

// NewGlyphFilter builds a filter matching every code point in ranges
func NewGlyphFilter(ranges []Range) *GlyphFilter {
	tables := make([]*unicode.RangeTable, 0, len(ranges))
	for _, r := range ranges {
		tables = append(tables, tableFor(r))
	}
	return &GlyphFilter{table: rangetable.Merge(tables...)}
}

// ParseGlyphFilter is NewGlyphFilter over ParseRanges
func ParseGlyphFilter(list string) (*GlyphFilter, error) {
	ranges, err := ParseRanges(list)
	if err != nil {
		return nil, err
	}
	return NewGlyphFilter(ranges), nil
}

// Matches reports whether r is stripped by the filter
func (f *GlyphFilter) Matches(r rune) bool {
	if f == nil || f.table == nil {
		return false
	}
	return unicode.Is(f.table, r)
}

// Strip removes matching glyphs. When anything was removed the result is trimmed,
// so "🔴 High Risk" becomes "High Risk"; untouched text is returned as is.
func (f *GlyphFilter) Strip(s string) string {
	if f == nil {
		return s
	}
	removed := false
	out := strings.Map(func(r rune) rune {
		if f.Matches(r) {
			removed = true
			return -1
		}
		return r
	}, s)
	if !removed {
		return s
	}
	return strings.TrimSpace(out)
}

// tableFor converts a span to a range table, splitting it at the 16-bit boundary
func tableFor(r Range) *unicode.RangeTable {
	t := &unicode.RangeTable{}
	if r.Lo <= 0xFFFF {
		hi := r.Hi
		if hi > 0xFFFF {
			hi = 0xFFFF
		}
		t.R16 = []unicode.Range16{{Lo: uint16(r.Lo), Hi: uint16(hi), Stride: 1}}
		if hi <= unicode.MaxLatin1 {
			t.LatinOffset = 1
		}
	}
	if r.Hi > 0xFFFF {
		lo := r.Lo
		if lo <= 0xFFFF {
			lo = 0x10000
		}
		t.R32 = []unicode.Range32{{Lo: uint32(lo), Hi: uint32(r.Hi), Stride: 1}}
	}
	return t
}
