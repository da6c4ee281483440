package analyze

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"proofd/internal/span"
	"proofd/internal/surface"
)

// RenderFunc receives a completed pass: the surface, the exact text the pass
// analyzed, and the fresh record list.
type RenderFunc func(surf surface.Surface, text string, records []span.ErrorRecord)

// Gateway serializes analyzer access and owns the per-surface record caches.
//
// Each pass fully replaces the surface's previous record list; offsets from a
// prior pass are never consulted after the text changes. A monotonically
// increasing pass counter per surface discards results of superseded passes,
// however late they resolve. In-flight analyzer calls are never cancelled,
// only their arrivals ignored.
type Gateway struct {
	analyzer Analyzer
	mode     Mode
	log      *slog.Logger
	onRender RenderFunc

	readyMu sync.Mutex
	ready   bool

	// Written by the config hot-reload path while dispatchers read it.
	maxTextLen atomic.Int64

	mu      sync.Mutex
	records map[string][]span.ErrorRecord
	passes  map[string]uint64
}

// NewGateway creates a gateway around the given analyzer.
func NewGateway(a Analyzer, mode Mode, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		analyzer: a,
		mode:     mode,
		log:      log.With("component", "analyze"),
		records:  make(map[string][]span.ErrorRecord),
		passes:   make(map[string]uint64),
	}
}

// OnRender registers the callback invoked after each completed pass.
func (g *Gateway) OnRender(fn RenderFunc) {
	g.onRender = fn
}

// SetMaxTextLen caps analyzed text at n runes; longer content is skipped
// entirely rather than truncated, since truncation would shift offsets.
// 0 disables the cap.
func (g *Gateway) SetMaxTextLen(n int) {
	g.maxTextLen.Store(int64(n))
}

// Analyze runs the analyzer on text and normalizes its findings. Failures
// never propagate: analysis is best-effort decoration, so an unavailable or
// failing engine yields an empty list and a log line, not a broken surface.
// Whitespace-only text short-circuits without invoking the engine.
func (g *Gateway) Analyze(ctx context.Context, text string) []span.ErrorRecord {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit := g.maxTextLen.Load(); limit > 0 {
		if n := utf8.RuneCountInString(text); int64(n) > limit {
			g.log.Debug("skipping oversized text", "runes", n, "limit", limit)
			return nil
		}
	}
	if err := g.awaitReady(ctx); err != nil {
		g.log.Warn("analyzer initialization failed", "error", err)
		return nil
	}

	findings, err := g.analyzer.Lint(ctx, text, g.mode)
	if err != nil {
		g.log.Warn("analyzer call failed", "error", err)
		return nil
	}
	return normalize(findings, utf8.RuneCountInString(text))
}

// Process reads the surface's live text, analyzes it, atomically replaces the
// surface's record cache, and triggers a render. A pass superseded by a newer
// one while the analyzer ran is discarded on arrival and returns the newer
// pass's records.
func (g *Gateway) Process(ctx context.Context, surf surface.Surface) []span.ErrorRecord {
	id := surf.ID()

	g.mu.Lock()
	g.passes[id]++
	pass := g.passes[id]
	g.mu.Unlock()

	text := surf.Text()
	records := g.Analyze(ctx, text)

	g.mu.Lock()
	if g.passes[id] != pass {
		stale := g.records[id]
		g.mu.Unlock()
		g.log.Debug("discarding superseded analysis pass", "surface", id, "pass", pass)
		return stale
	}
	g.records[id] = records
	g.mu.Unlock()

	if g.onRender != nil {
		g.onRender(surf, text, records)
	}
	return records
}

// Records returns the cached record list for a surface.
func (g *Gateway) Records(surfaceID string) []span.ErrorRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records[surfaceID]
}

// Drop forgets a detached surface's cache.
func (g *Gateway) Drop(surfaceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, surfaceID)
	delete(g.passes, surfaceID)
}

// awaitReady resolves the one-time initialization gate. Already-resolved
// gates return immediately; a failed initialization is retried on the next
// call.
func (g *Gateway) awaitReady(ctx context.Context) error {
	g.readyMu.Lock()
	defer g.readyMu.Unlock()

	if g.ready {
		return nil
	}
	if err := g.analyzer.Initialize(ctx); err != nil {
		return err
	}
	g.ready = true
	return nil
}

// normalize converts raw findings to records: spans are clamped to the text,
// empty and invalid ranges dropped, and the result ordered by start offset.
// The analyzer's suggestion ranking is preserved untouched.
func normalize(findings []Finding, textLen int) []span.ErrorRecord {
	records := make([]span.ErrorRecord, 0, len(findings))
	for _, f := range findings {
		rng := span.Span{Start: f.Start, End: f.End}
		if rng.Start > rng.End {
			continue
		}
		rng = rng.Clamp(textLen)
		if !rng.Valid(textLen) || rng.Len() == 0 {
			continue
		}
		records = append(records, span.ErrorRecord{
			Span:        rng,
			Kind:        f.Category,
			Suggestions: f.Suggestions,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Span.Start < records[j].Span.Start
	})
	return records
}
