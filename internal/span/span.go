// Package span defines linear-offset ranges over a surface's text and the
// error records produced by analysis passes.
//
// Offsets count runes (Unicode code points) as exposed by the surface text
// API, not bytes and not grapheme clusters. Hosts whose editing APIs index
// text in other units (for example UTF-16 code units) must translate at the
// bridge boundary; no package below the bridge performs unit conversion.
package span

import "strings"

// Span is a half-open [Start, End) range over linear rune offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of offsets covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Valid reports whether 0 <= Start <= End <= textLen.
func (s Span) Valid(textLen int) bool {
	return s.Start >= 0 && s.Start <= s.End && s.End <= textLen
}

// Contains reports half-open containment: Start <= off < End.
func (s Span) Contains(off int) bool {
	return off >= s.Start && off < s.End
}

// ContainsInclusive reports boundary-inclusive containment: Start <= off <= End.
// Used for pointer-driven lookups, where users commonly hit a word edge.
func (s Span) ContainsInclusive(off int) bool {
	return off >= s.Start && off <= s.End
}

// Overlaps reports whether the two spans share at least one offset.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Clamp restricts the span to [0, textLen], preserving Start <= End.
func (s Span) Clamp(textLen int) Span {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End > textLen {
		s.End = textLen
	}
	if s.End < s.Start {
		s.End = s.Start
	}
	return s
}

// ErrorRecord is a single analysis finding over a surface's text. Records are
// produced fresh on every analysis pass; a pass fully replaces the previous
// list for its surface, so offsets are only meaningful against the text the
// pass saw.
type ErrorRecord struct {
	Span        Span     `json:"span"`
	Kind        string   `json:"kind"`
	Suggestions []string `json:"suggestions"`
}

// Decoration colors by error category.
const (
	ColorSpelling   = "red"
	ColorWordChoice = "green"
	ColorStyle      = "orange"
	ColorRepetition = "blue"
	ColorDefault    = "gray"
)

// kindColors maps category-tag substrings to decoration colors. Matching is
// case-insensitive, first match wins.
var kindColors = []struct {
	substr string
	color  string
}{
	{"spell", ColorSpelling},
	{"word", ColorWordChoice},
	{"style", ColorStyle},
	{"repetition", ColorRepetition},
}

// ColorFor returns the decoration color for a category tag.
func ColorFor(kind string) string {
	lower := strings.ToLower(kind)
	for _, kc := range kindColors {
		if strings.Contains(lower, kc.substr) {
			return kc.color
		}
	}
	return ColorDefault
}
