// Package controller drives the per-surface event loop.
//
// Each tracked surface gets one Controller: a single dispatcher goroutine
// consuming a typed event stream from the host bridge. Ordinary input
// restarts a debounced reprocess; auto-correct and revert bypass the debounce
// and run on the dispatcher immediately, because the single-slot correction
// record depends on tight temporal coupling with the triggering keystroke.
// Blur flushes immediately, canceling any pending debounce.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"proofd/internal/autocorrect"
	"proofd/internal/overlay"
	"proofd/internal/settings"
	"proofd/internal/span"
	"proofd/internal/surface"
	"proofd/internal/tooltip"
)

// DefaultDebounce is the reprocess window when the config does not set one.
const DefaultDebounce = 300 * time.Millisecond

// flashFade is how long the post-correction highlight stays visible.
const flashFade = time.Second

// EventKind distinguishes host event types.
type EventKind int

const (
	// EventInput is a user edit, reported after the host applied it.
	EventInput EventKind = iota
	// EventMutation is a content change observed outside the input path,
	// e.g. a script edit or a rich-region tree update.
	EventMutation
	// EventSelection is a caret move without a content change.
	EventSelection
	// EventScroll is a scroll position change.
	EventScroll
	// EventResize is a geometry or style change.
	EventResize
	// EventFocus indicates the surface gained focus.
	EventFocus
	// EventBlur indicates the surface lost focus.
	EventBlur
	// EventApply asks the dispatcher to replace a flagged span with a
	// chosen suggestion.
	EventApply

	// eventDebounceFired is internal: a debounce timer expired.
	eventDebounceFired
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventInput:
		return "input"
	case EventMutation:
		return "mutation"
	case EventSelection:
		return "selection"
	case EventScroll:
		return "scroll"
	case EventResize:
		return "resize"
	case EventFocus:
		return "focus"
	case EventBlur:
		return "blur"
	case EventApply:
		return "apply"
	case eventDebounceFired:
		return "debounce_fired"
	default:
		return "unknown"
	}
}

// State is the host-observed text and caret after an event landed.
type State struct {
	Text  string
	Caret int
}

// ApplyRequest identifies a flagged record by the exact span the host was
// shown and names the replacement to splice in.
type ApplyRequest struct {
	Span        span.Span
	Replacement string
}

// Event is one host-reported surface event. State, Tree, Metrics and Apply
// are optional payloads; which ones a kind carries depends on the host.
type Event struct {
	Kind      EventKind
	InputType string
	InputData string
	State     *State
	Tree      *surface.Node
	Metrics   *surface.Metrics
	Apply     *ApplyRequest

	gen uint64
}

// Processor runs analysis passes for a surface and owns its record cache.
type Processor interface {
	Process(ctx context.Context, surf surface.Surface) []span.ErrorRecord
	Records(surfaceID string) []span.ErrorRecord
	Drop(surfaceID string)
}

// TreeSyncer is implemented by surfaces that track rich content structure.
type TreeSyncer interface {
	SyncTree(root *surface.Node, caret int)
}

// Hooks receive state-machine outcomes, e.g. for history recording. Either
// field may be nil.
type Hooks struct {
	CorrectionApplied  func(autocorrect.CorrectionRecord)
	CorrectionReverted func(autocorrect.CorrectionRecord)
}

// Controller owns one surface's dispatcher loop.
type Controller struct {
	surf    surface.Surface
	ov      *overlay.Overlay
	proc    Processor
	machine *autocorrect.Machine
	hooks   Hooks
	log     *slog.Logger

	events chan Event
	window time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	flags      settings.Flags
	debounce   *time.Timer
	gen        uint64
	flashTimer *time.Timer
	clearFlash func()
}

// New creates a controller for surf. window <= 0 selects DefaultDebounce.
func New(surf surface.Surface, ov *overlay.Overlay, proc Processor, machine *autocorrect.Machine, flags settings.Flags, window time.Duration, log *slog.Logger) *Controller {
	if window <= 0 {
		window = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		surf:    surf,
		ov:      ov,
		proc:    proc,
		machine: machine,
		flags:   flags,
		log:     log.With("component", "controller", "surface", surf.ID()),
		events:  make(chan Event, 128),
		window:  window,
		done:    make(chan struct{}),
	}
}

// SetHooks installs outcome hooks. Call before Start.
func (c *Controller) SetHooks(h Hooks) {
	c.hooks = h
}

// Surface returns the controlled surface.
func (c *Controller) Surface() surface.Surface { return c.surf }

// Overlay returns the surface's overlay.
func (c *Controller) Overlay() *overlay.Overlay { return c.ov }

// Start launches the dispatcher goroutine.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.run()
}

// Stop shuts the dispatcher down and cancels pending timers. The surface's
// analysis cache and any pending correction are left to the caller.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	c.mu.Lock()
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.flashTimer != nil {
		c.flashTimer.Stop()
		c.flashTimer = nil
	}
	clear := c.clearFlash
	c.clearFlash = nil
	c.mu.Unlock()

	if clear != nil {
		clear()
	}
}

// Deliver enqueues an event for the dispatcher. Never blocks; events are
// dropped with a warning when the queue is full.
func (c *Controller) Deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event queue full, dropping event", "kind", ev.Kind)
	}
}

// SetFlags applies a fresh settings snapshot. Disabling auto-correct drops
// any pending correction for this surface.
func (c *Controller) SetFlags(f settings.Flags) {
	c.mu.Lock()
	prev := c.flags
	c.flags = f
	c.mu.Unlock()

	if prev.DebugBorder != f.DebugBorder {
		c.ov.SetDebugBorder(f.DebugBorder)
	}
	if prev.AutoCorrect && !f.AutoCorrect {
		c.machine.Invalidate(c.surf.ID())
	}
}

func (c *Controller) currentFlags() settings.Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev Event) {
	switch ev.Kind {
	case EventInput:
		if ev.State != nil {
			c.surf.Sync(ev.State.Text, ev.State.Caret)
		}
		c.handleInput(ev)

	case EventMutation:
		caret := c.surf.Caret()
		if ev.State != nil {
			caret = ev.State.Caret
		}
		if ev.Tree != nil {
			if ts, ok := c.surf.(TreeSyncer); ok {
				ts.SyncTree(ev.Tree, caret)
			}
		} else if ev.State != nil {
			c.surf.Sync(ev.State.Text, ev.State.Caret)
		}
		c.restartDebounce()

	case EventSelection:
		if ev.State != nil {
			c.surf.Sync(c.surf.Text(), ev.State.Caret)
		}
		c.ov.Sync()

	case EventScroll, EventResize:
		if ev.Metrics != nil {
			c.surf.SetMetrics(*ev.Metrics)
		}
		c.ov.Sync()

	case EventFocus:
		c.ov.Ensure()
		c.ov.Sync()
		c.processNow()

	case EventBlur:
		// Final state must be accurate when focus leaves, independent of
		// any pending debounce.
		c.cancelDebounce()
		c.processNow()

	case EventApply:
		c.applySuggestion(ev)

	case eventDebounceFired:
		c.mu.Lock()
		live := ev.gen == c.gen
		if live {
			c.debounce = nil
		}
		c.mu.Unlock()
		if live {
			c.processNow()
		}
	}
}

// handleInput classifies an edit and routes it: space may apply an
// auto-correction, backspace may revert one; both bypass the debounce.
// Everything else restarts it.
func (c *Controller) handleInput(ev Event) {
	kind := autocorrect.Classify(ev.InputType, ev.InputData)
	flags := c.currentFlags()

	switch kind {
	case autocorrect.InputInsertSpace:
		if flags.AutoCorrect {
			if rec, ok := c.machine.OnSpaceInserted(c.ctx, c.surf); ok {
				if c.hooks.CorrectionApplied != nil {
					c.hooks.CorrectionApplied(rec)
				}
				c.cancelDebounce()
				c.processNow()
				return
			}
		}

	case autocorrect.InputDeleteBackward:
		if rec, ok := c.machine.OnDeleteBackward(c.ctx, c.surf); ok {
			if c.hooks.CorrectionReverted != nil {
				c.hooks.CorrectionReverted(rec)
			}
			c.cancelDebounce()
			c.processNow()
			return
		}
	}

	c.restartDebounce()
}

// applySuggestion replaces a flagged span with the host's chosen suggestion.
// It runs on the dispatcher so the replacement serializes with input events:
// the span is re-matched against the live record cache, and a request made
// stale by an intervening edit becomes a logged no-op instead of splicing
// text that no longer exists.
func (c *Controller) applySuggestion(ev Event) {
	req := ev.Apply
	if req == nil {
		return
	}

	var rec span.ErrorRecord
	var match bool
	for _, r := range c.proc.Records(c.surf.ID()) {
		if r.Span == req.Span {
			rec, match = r, true
			break
		}
	}
	if !match {
		c.log.Debug("apply request matches no flagged span", "span", req.Span)
		return
	}

	s := tooltip.Suggestion{Display: req.Replacement, Replacement: req.Replacement}
	if err := tooltip.Apply(c.ctx, c.surf, rec, s, c.proc); err != nil {
		c.log.Warn("apply suggestion failed", "span", req.Span, "error", err)
		return
	}
	c.cancelDebounce()
	c.ov.Render(c.surf.Text(), c.proc.Records(c.surf.ID()))
}

// restartDebounce supersedes any pending reprocess with a fresh handle. The
// generation stamp lets the dispatcher ignore a fire that raced with its own
// cancellation.
func (c *Controller) restartDebounce() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	gen := c.gen
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(c.window, func() {
		c.Deliver(Event{Kind: eventDebounceFired, gen: gen})
	})
}

func (c *Controller) cancelDebounce() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

// processNow runs a full analysis pass and repaints the overlay with the
// result. Runs on the dispatcher; the analyzer call may block, which is fine
// because newer events simply queue behind it.
func (c *Controller) processNow() {
	recs := c.proc.Process(c.ctx, c.surf)
	c.ov.Render(c.surf.Text(), recs)
}

// flash paints the transient post-correction highlight and schedules its
// fade-out, superseding a previous one still on screen.
func (c *Controller) flash(rng span.Span) {
	c.mu.Lock()
	if c.clearFlash != nil {
		c.clearFlash()
	}
	if c.flashTimer != nil {
		c.flashTimer.Stop()
	}
	c.mu.Unlock()

	clear := c.ov.Flash(rng)

	c.mu.Lock()
	c.clearFlash = clear
	// Stale timers were stopped above, so a firing timer is always the
	// latest one.
	c.flashTimer = time.AfterFunc(flashFade, func() {
		clear()
		c.mu.Lock()
		c.clearFlash = nil
		c.flashTimer = nil
		c.mu.Unlock()
	})
	c.mu.Unlock()
}
