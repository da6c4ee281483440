// Package analyze wraps the external proofreading engine behind an
// asynchronous gateway with per-surface result caches.
//
// The engine itself (linguistic analysis, suggestion ranking) is an
// external collaborator. This package only normalizes its findings into
// error records indexed by linear rune offset and enforces the ordering
// discipline that keeps stale in-flight passes from clobbering newer ones.
package analyze

import "context"

// Mode selects how the analyzer interprets the text.
type Mode int

const (
	// ModePlain treats the text as plain prose.
	ModePlain Mode = iota
	// ModeMarkdown treats the text as Markdown source.
	ModeMarkdown
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	if m == ModeMarkdown {
		return "markdown"
	}
	return "plain"
}

// ParseMode parses a mode name. Unknown names fall back to plain.
func ParseMode(s string) Mode {
	if s == "markdown" {
		return ModeMarkdown
	}
	return ModePlain
}

// Finding is one raw analyzer result: a flagged range, a category tag, and
// ranked replacement suggestions.
type Finding struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Category    string   `json:"category"`
	Suggestions []string `json:"suggestions"`
}

// Analyzer is the external proofreading engine. Implementations must
// tolerate repeated calls on overlapping text and must not mutate their
// input. Both methods may block; callers bound them with the context.
type Analyzer interface {
	// Initialize performs the engine's one-time startup. It is invoked
	// through a process-wide readiness gate: awaited cheaply once resolved,
	// retried on the next call after a failure.
	Initialize(ctx context.Context) error

	// Lint analyzes text and returns findings with offsets into it.
	Lint(ctx context.Context, text string, mode Mode) ([]Finding, error)
}
