// Package tooltip resolves the error under a caret or pointer offset and
// prepares its suggestions for presentation.
//
// Visual design of the tooltip itself is host-side; this package produces the
// data the host renders: the matched record, display/replacement pairs for
// each suggestion, and a viewport-clamped anchor point.
package tooltip

import (
	"context"
	"regexp"

	"proofd/internal/span"
	"proofd/internal/surface"
)

// FindErrorAt returns the first record whose span contains off, using
// boundary-inclusive containment (start <= off <= end): users commonly
// right-click exactly at a word edge.
func FindErrorAt(records []span.ErrorRecord, off int) (span.ErrorRecord, bool) {
	for _, r := range records {
		if r.Span.ContainsInclusive(off) {
			return r, true
		}
	}
	return span.ErrorRecord{}, false
}

// FindErrorsAt returns every record containing off. Rendering lets the last
// processed overlapping span win, but resolution considers all of them.
func FindErrorsAt(records []span.ErrorRecord, off int) []span.ErrorRecord {
	var out []span.ErrorRecord
	for _, r := range records {
		if r.Span.ContainsInclusive(off) {
			out = append(out, r)
		}
	}
	return out
}

// Suggestion is one presentable replacement: Display is what the host shows,
// Replacement is the value applied to the surface. The two are always equal:
// punctuation suggestions are concatenated onto the problem text for both, so
// they read naturally and apply exactly as shown.
type Suggestion struct {
	Display     string `json:"display"`
	Replacement string `json:"replacement"`
}

// purePunct matches suggestions consisting only of punctuation, which would
// be unreadable presented on their own.
var purePunct = regexp.MustCompile(`^\pP+$`)

// Suggestions prepares a record's ranked suggestions for presentation.
// problem is the flagged text the record's span currently covers.
func Suggestions(rec span.ErrorRecord, problem string) []Suggestion {
	out := make([]Suggestion, 0, len(rec.Suggestions))
	for _, s := range rec.Suggestions {
		v := s
		if purePunct.MatchString(s) {
			v = problem + s
		}
		out = append(out, Suggestion{Display: v, Replacement: v})
	}
	return out
}

// Reprocessor triggers a full analysis pass for a surface. Applying a
// suggestion is a rare, user-initiated action, so the full pass (not an
// incremental patch) is acceptable.
type Reprocessor interface {
	Process(ctx context.Context, surf surface.Surface) []span.ErrorRecord
}

// Apply replaces the record's span with the chosen suggestion's replacement
// value and immediately reprocesses the surface. Invalid offsets abort the
// operation and leave the surface untouched.
func Apply(ctx context.Context, surf surface.Surface, rec span.ErrorRecord, s Suggestion, proc Reprocessor) error {
	if err := surface.Replace(surf, rec.Span, s.Replacement); err != nil {
		return err
	}
	proc.Process(ctx, surf)
	return nil
}

// Margin is the minimum distance kept between the tooltip box and every
// viewport edge.
const Margin = 10

// Anchor is the tooltip's top-left corner in pixel space.
type Anchor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClampAnchor positions a tooltip of the given size near the triggering
// pointer location, keeping its full bounding box at least Margin pixels
// inside the viewport on all sides.
func ClampAnchor(pointer Anchor, w, h float64, viewport surface.Rect) Anchor {
	a := pointer

	maxX := viewport.X + viewport.W - w - Margin
	maxY := viewport.Y + viewport.H - h - Margin
	if a.X > maxX {
		a.X = maxX
	}
	if a.Y > maxY {
		a.Y = maxY
	}
	if a.X < viewport.X+Margin {
		a.X = viewport.X + Margin
	}
	if a.Y < viewport.Y+Margin {
		a.Y = viewport.Y + Margin
	}
	return a
}
