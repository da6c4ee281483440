// Package surface models the editable text surfaces the engine attaches to.
//
// A surface is one of a closed set of variants: a plain single-line field, a
// multi-line text area, or an editable region backed by a tree of text-bearing
// nodes. Callers program against the Surface capability interface and never
// branch on the concrete host element type.
//
// The engine never owns a surface's content; it observes the live state
// mirrored by the host and mutates it only through SetText/SetCaret, which
// notify the host through the surface's mutation callback.
package surface

import (
	"errors"
	"fmt"

	"proofd/internal/span"
)

// Kind identifies the surface variant.
type Kind int

const (
	// KindInput is a plain single-line text input.
	KindInput Kind = iota
	// KindTextArea is a plain multi-line text area.
	KindTextArea
	// KindEditableRegion is a rich editable element backed by a node tree.
	KindEditableRegion
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTextArea:
		return "textarea"
	case KindEditableRegion:
		return "editable-region"
	default:
		return "unknown"
	}
}

// Rect is a pixel-space rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Style is the subset of text-rendering-affecting style the overlay must
// mirror for its glyph layout to match the live surface exactly.
type Style struct {
	Font          string `json:"font,omitempty"`
	LineHeight    string `json:"lineHeight,omitempty"`
	LetterSpacing string `json:"letterSpacing,omitempty"`
	Padding       string `json:"padding,omitempty"`
	Border        string `json:"border,omitempty"`
	BoxSizing     string `json:"boxSizing,omitempty"`
	TextAlign     string `json:"textAlign,omitempty"`
	Direction     string `json:"direction,omitempty"`
	WhiteSpace    string `json:"whiteSpace,omitempty"`
	WordWrap      string `json:"wordWrap,omitempty"`
}

// Metrics is a host-reported geometry snapshot for a surface.
type Metrics struct {
	Rect     Rect    `json:"rect"`
	ScrollX  float64 `json:"scrollX"`
	ScrollY  float64 `json:"scrollY"`
	Viewport Rect    `json:"viewport"`
	Style    Style   `json:"style"`
}

// MutateFunc is invoked after the engine changes a surface's text or caret so
// the host can apply the same mutation to the live element.
type MutateFunc func(text string, caret int)

// Surface is the capability interface shared by all variants.
type Surface interface {
	// ID returns the host-assigned identity of the surface. Identity is
	// stable for the surface's lifetime and keys all per-surface caches.
	ID() string

	// Kind returns the surface variant.
	Kind() Kind

	// Text returns the current text content.
	Text() string

	// Len returns the text length in runes.
	Len() int

	// SetText replaces the entire content and notifies the host.
	SetText(text string)

	// Caret returns the current linear caret offset in runes.
	Caret() int

	// SetCaret moves the caret, clamping to [0, Len], and notifies the host.
	SetCaret(off int)

	// Sync applies a host-observed state change without echoing it back
	// through the mutation callback. Used when the user, not the engine,
	// edited the surface.
	Sync(text string, caret int)

	// Metrics returns the most recent geometry snapshot.
	Metrics() Metrics

	// SetMetrics records a fresh geometry snapshot from the host.
	SetMetrics(m Metrics)
}

// ErrInvalidSpan is returned when a replacement names offsets outside the
// surface's current text.
var ErrInvalidSpan = errors.New("surface: replacement span out of range")

// Replace splices repl over the given span of s's text, placing the caret at
// the end of the inserted text. The new content is computed in full before
// any mutation, so a failed validation leaves the surface untouched.
func Replace(s Surface, rng span.Span, repl string) error {
	text := []rune(s.Text())
	if !rng.Valid(len(text)) {
		return fmt.Errorf("%w: [%d,%d) over %d runes", ErrInvalidSpan, rng.Start, rng.End, len(text))
	}

	next := make([]rune, 0, len(text)-rng.Len()+len([]rune(repl)))
	next = append(next, text[:rng.Start]...)
	next = append(next, []rune(repl)...)
	next = append(next, text[rng.End:]...)

	s.SetText(string(next))
	s.SetCaret(rng.Start + len([]rune(repl)))
	return nil
}
