// Package overlay keeps a transparent decoration element visually aligned
// with a live text surface.
//
// The overlay never receives input and never contains visible glyphs: its own
// text color is always fully transparent, so the surface's real rendered text
// remains the only visible text and alignment needs no layout computation of
// its own. Only decorations (underlines, transient flashes) are visible.
//
// Overlay elements live host-side; this package computes their state and
// pushes it through a Sink. If the host cannot create an overlay element for
// a surface, the overlay degrades to a visible outline on the surface itself
// whenever errors exist.
package overlay

import (
	"log/slog"
	"sync"

	"proofd/internal/span"
	"proofd/internal/surface"
)

// TextColor is the overlay's forced text color.
const TextColor = "transparent"

// StyleState is the complete visual state pushed to the host for an overlay
// element: mirrored geometry and text-rendering style, scroll offsets, the
// forced transparent text color, and the diagnostic border flag.
type StyleState struct {
	Rect        surface.Rect  `json:"rect"`
	ScrollX     float64       `json:"scrollX"`
	ScrollY     float64       `json:"scrollY"`
	Style       surface.Style `json:"style"`
	TextColor   string        `json:"textColor"`
	DebugBorder bool          `json:"debugBorder"`
}

// Sink applies overlay state to the host. Implementations must be safe for
// use from a single controller goroutine per surface.
type Sink interface {
	// Create creates the overlay element beside the surface. Called once
	// per surface; an error marks the overlay as failed for its lifetime.
	Create(surfaceID string) error

	// ApplyStyle applies geometry and style to the overlay element.
	ApplyStyle(surfaceID string, st StyleState) error

	// SetMarkup replaces the overlay element's decorated content.
	SetMarkup(surfaceID string, markup string) error

	// SetOutline toggles the fallback outline on the surface itself.
	SetOutline(surfaceID string, on bool) error
}

// Overlay tracks one surface. One overlay exists per surface, created lazily
// on first Ensure and kept for the surface's lifetime.
type Overlay struct {
	mu   sync.Mutex
	surf surface.Surface
	sink Sink
	log  *slog.Logger

	created bool
	failed  bool
	outline bool

	debugBorder bool
	styled      bool
	lastStyle   StyleState

	lastText string
	lastErrs []span.ErrorRecord
	flash    *span.Span
}

// New creates an overlay tracker for the given surface.
func New(surf surface.Surface, sink Sink, log *slog.Logger) *Overlay {
	if log == nil {
		log = slog.Default()
	}
	return &Overlay{
		surf: surf,
		sink: sink,
		log:  log.With("component", "overlay", "surface", surf.ID()),
	}
}

// Ensure creates the overlay element once. Safe to call on every event; all
// calls after the first (successful or failed) are no-ops.
func (o *Overlay) Ensure() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.created || o.failed {
		return
	}
	if err := o.sink.Create(o.surf.ID()); err != nil {
		o.failed = true
		o.log.Warn("overlay creation failed, falling back to outline", "error", err)
		return
	}
	o.created = true
}

// Failed reports whether overlay creation failed and the outline fallback is
// in effect.
func (o *Overlay) Failed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}

// Sync mirrors the surface's current geometry, scroll offsets, and
// text-rendering style onto the overlay element. Calling Sync twice with no
// intervening surface change applies the identical style and skips the
// redundant host round trip.
func (o *Overlay) Sync() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.created {
		return
	}

	m := o.surf.Metrics()
	st := StyleState{
		Rect:        m.Rect,
		ScrollX:     m.ScrollX,
		ScrollY:     m.ScrollY,
		Style:       m.Style,
		TextColor:   TextColor,
		DebugBorder: o.debugBorder,
	}
	if o.styled && st == o.lastStyle {
		return
	}

	if err := o.sink.ApplyStyle(o.surf.ID(), st); err != nil {
		o.log.Warn("overlay style apply failed", "error", err)
		return
	}
	o.styled = true
	o.lastStyle = st
}

// Render rebuilds the overlay's decorated content from text and the current
// error records. When overlay creation failed, it drives the outline fallback
// instead: outlined while any errors exist, cleared otherwise.
func (o *Overlay) Render(text string, errs []span.ErrorRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastText = text
	o.lastErrs = errs

	if o.failed {
		o.setOutlineLocked(len(errs) > 0)
		return
	}
	if !o.created {
		return
	}
	o.renderLocked()
}

// Flash overlays a transient highlight over rng, typically the range just
// replaced by an auto-correction. The returned function clears it; callers
// schedule the clear (~1s) on their own dispatcher.
func (o *Overlay) Flash(rng span.Span) (clear func()) {
	o.mu.Lock()
	o.flash = &rng
	if o.created && !o.failed {
		o.renderLocked()
	}
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.flash == nil || *o.flash != rng {
			return
		}
		o.flash = nil
		if o.created && !o.failed {
			o.renderLocked()
		}
	}
}

// SetDebugBorder toggles the diagnostic border and re-applies style.
func (o *Overlay) SetDebugBorder(on bool) {
	o.mu.Lock()
	changed := o.debugBorder != on
	o.debugBorder = on
	o.mu.Unlock()

	if changed {
		o.Sync()
	}
}

// renderLocked pushes the current markup to the host.
func (o *Overlay) renderLocked() {
	markup := Markup(o.lastText, o.lastErrs, o.flash)
	if err := o.sink.SetMarkup(o.surf.ID(), markup); err != nil {
		o.log.Warn("overlay render failed", "error", err)
	}
}

// setOutlineLocked toggles the fallback outline, suppressing repeats.
func (o *Overlay) setOutlineLocked(on bool) {
	if o.outline == on {
		return
	}
	if err := o.sink.SetOutline(o.surf.ID(), on); err != nil {
		o.log.Warn("outline fallback failed", "error", err)
		return
	}
	o.outline = on
}
