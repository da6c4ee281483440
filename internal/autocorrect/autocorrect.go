// Package autocorrect implements the single-slot auto-correct/revert state
// machine.
//
// The machine holds at most one live CorrectionRecord process-wide. Applying
// a second correction overwrites the first, which becomes unrevertable; this
// last-writer-wins slot is the only mutual exclusion the feature needs.
// Correction and reversion are tightly coupled to the triggering keystroke,
// so both bypass the debounced reprocessing path entirely.
package autocorrect

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"proofd/internal/span"
	"proofd/internal/surface"
)

// InputKind classifies a raw input event for the state machine.
type InputKind int

const (
	// InputOther is any event the machine ignores.
	InputOther InputKind = iota
	// InputInsertSpace is the insertion of exactly one space character.
	InputInsertSpace
	// InputInsertText is any other text insertion.
	InputInsertText
	// InputDeleteBackward is the deletion of one character before the caret.
	InputDeleteBackward
)

// String returns a human-readable name for the input kind.
func (k InputKind) String() string {
	switch k {
	case InputInsertSpace:
		return "insert_space"
	case InputInsertText:
		return "insert_text"
	case InputDeleteBackward:
		return "delete_backward"
	default:
		return "other"
	}
}

// Classify maps a host input event (DOM beforeinput naming) to an InputKind.
func Classify(inputType, data string) InputKind {
	switch inputType {
	case "insertText":
		if data == " " {
			return InputInsertSpace
		}
		return InputInsertText
	case "deleteContentBackward":
		return InputDeleteBackward
	default:
		return InputOther
	}
}

// RevertTolerance is the caret divergence, in runes, beyond which a pending
// correction is discarded outright so a stale revert cannot fire much later.
const RevertTolerance = 2

// CorrectionRecord remembers one applied auto-correction so a single
// backspace at the boundary can undo it. Read once on a matching revert,
// then cleared.
type CorrectionRecord struct {
	SurfaceID string
	// Original is the replaced text, trigger space included.
	Original string
	// Corrected is the applied text: the top suggestion plus the
	// re-inserted trigger space.
	Corrected string
	// Start and End bound the corrected text in the post-correction
	// content: End = Start + len(Corrected) in runes.
	Start, End int
	AppliedAt  time.Time
}

// Reprocessor runs a full analysis pass and returns the fresh records.
type Reprocessor interface {
	Process(ctx context.Context, surf surface.Surface) []span.ErrorRecord
}

// FlashFunc applies the transient post-correction highlight. Purely visual;
// callers schedule its fade-out.
type FlashFunc func(surf surface.Surface, rng span.Span)

// Machine is the auto-correct state machine. Idle until a space-classified
// input applies a correction; one live record until it is reverted,
// overwritten, or invalidated.
type Machine struct {
	mu    sync.Mutex
	rec   *CorrectionRecord
	proc  Reprocessor
	flash FlashFunc
	log   *slog.Logger
	now   func() time.Time
}

// New creates an idle machine. flash may be nil.
func New(proc Reprocessor, flash FlashFunc, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		proc:  proc,
		flash: flash,
		log:   log.With("component", "autocorrect"),
		now:   time.Now,
	}
}

// Pending returns the live correction record, if any.
func (m *Machine) Pending() (CorrectionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return CorrectionRecord{}, false
	}
	return *m.rec, true
}

// OnSpaceInserted runs the apply transition after a single space was typed:
// the surface text already contains the space, with the caret right after it.
// The error list is refreshed synchronously first so it reflects the
// just-typed text, then the word the caret left is matched against it.
// When a correction was applied, the new record is returned and callers
// schedule the asynchronous reprocess and the highlight fade-out.
func (m *Machine) OnSpaceInserted(ctx context.Context, surf surface.Surface) (CorrectionRecord, bool) {
	records := m.proc.Process(ctx, surf)
	if len(records) == 0 {
		return CorrectionRecord{}, false
	}

	text := []rune(surf.Text())
	caret := surf.Caret()
	spaceIdx := caret - 1
	if spaceIdx < 0 || spaceIdx >= len(text) || text[spaceIdx] != ' ' {
		return CorrectionRecord{}, false
	}

	wordStart, wordEnd := wordBefore(text, spaceIdx)
	if wordStart == wordEnd {
		return CorrectionRecord{}, false
	}

	rec, ok := matchError(records, wordStart, wordEnd)
	if !ok || len(rec.Suggestions) == 0 {
		return CorrectionRecord{}, false
	}

	// Replace the matched error's text plus the trigger space with the
	// first-ranked suggestion plus a space. The analyzer's ranking is
	// trusted, never re-scored.
	rng := span.Span{Start: rec.Span.Start, End: rec.Span.End}
	if rng.End < caret {
		rng.End = caret
	}
	if !rng.Valid(len(text)) {
		m.log.Warn("correction span out of range", "span", rng, "len", len(text))
		return CorrectionRecord{}, false
	}
	original := string(text[rng.Start:rng.End])
	corrected := rec.Suggestions[0] + " "

	if err := surface.Replace(surf, rng, corrected); err != nil {
		m.log.Warn("correction replace failed", "error", err)
		return CorrectionRecord{}, false
	}

	record := &CorrectionRecord{
		SurfaceID: surf.ID(),
		Original:  original,
		Corrected: corrected,
		Start:     rng.Start,
		End:       rng.Start + len([]rune(corrected)),
		AppliedAt: m.now(),
	}

	m.mu.Lock()
	m.rec = record // a prior record is silently overwritten
	m.mu.Unlock()

	if m.flash != nil {
		m.flash(surf, span.Span{Start: record.Start, End: record.End})
	}
	m.log.Debug("auto-correction applied",
		"surface", surf.ID(), "original", original, "corrected", corrected)
	return *record, true
}

// OnDeleteBackward runs the revert transition after a backspace landed on the
// surface. A revert fires only when that backspace was the one that deleted
// the trailing space the correction inserted: the caret must sit exactly at
// the corrected word's end boundary (one rune short of the recorded End). Any
// other position is a silent no-op, the expected steady state once the user
// types past the revert window, except that divergence beyond
// RevertTolerance discards the record outright. On a revert the record is
// returned and cleared; callers then schedule the asynchronous reprocess.
func (m *Machine) OnDeleteBackward(ctx context.Context, surf surface.Surface) (CorrectionRecord, bool) {
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()

	if rec == nil || rec.SurfaceID != surf.ID() {
		return CorrectionRecord{}, false
	}

	boundary := rec.End - 1
	caret := surf.Caret()
	if caret != boundary {
		if diff := caret - boundary; diff > RevertTolerance || diff < -RevertTolerance {
			m.clear(rec)
			m.log.Debug("stale correction discarded", "surface", surf.ID())
		}
		return CorrectionRecord{}, false
	}

	// With the trigger space gone, the range up to the boundary must still
	// hold the corrected word; anything else means the text changed under
	// the record.
	text := []rune(surf.Text())
	rng := span.Span{Start: rec.Start, End: boundary}
	corrected := strings.TrimSuffix(rec.Corrected, " ")
	if !rng.Valid(len(text)) || string(text[rng.Start:rng.End]) != corrected {
		m.clear(rec)
		return CorrectionRecord{}, false
	}

	// Original carries its trigger space, so this single replacement
	// restores both the word and the space the backspace removed, putting
	// the caret back where the space was typed.
	if err := surface.Replace(surf, rng, rec.Original); err != nil {
		m.log.Warn("revert replace failed", "error", err)
		m.clear(rec)
		return CorrectionRecord{}, false
	}

	m.clear(rec)
	m.log.Debug("auto-correction reverted", "surface", surf.ID(), "restored", rec.Original)
	return *rec, true
}

// Invalidate drops any pending correction for the surface, used when focus
// leaves or the surface detaches.
func (m *Machine) Invalidate(surfaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec != nil && m.rec.SurfaceID == surfaceID {
		m.rec = nil
	}
}

// clear consumes the record if it is still the live one.
func (m *Machine) clear(rec *CorrectionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == rec {
		m.rec = nil
	}
}

// wordBefore returns the boundaries of the word immediately before idx,
// scanning back over non-space runes.
func wordBefore(text []rune, idx int) (start, end int) {
	end = idx
	start = idx
	for start > 0 && !unicode.IsSpace(text[start-1]) {
		start--
	}
	return start, end
}

// matchError locates the error whose word the caret just left, trying three
// policies in order: exact span match on the word boundaries, an error span
// fully containing them, then any overlap. First match wins. The fallback
// tiers are heuristic and can pick a merely-adjacent error under heavy
// overlap; exact matches dominate in practice.
func matchError(records []span.ErrorRecord, wordStart, wordEnd int) (span.ErrorRecord, bool) {
	for _, r := range records {
		if r.Span.Start == wordStart && r.Span.End == wordEnd {
			return r, true
		}
	}
	for _, r := range records {
		if r.Span.Start <= wordStart && r.Span.End >= wordEnd {
			return r, true
		}
	}
	word := span.Span{Start: wordStart, End: wordEnd}
	for _, r := range records {
		if r.Span.Overlaps(word) {
			return r, true
		}
	}
	return span.ErrorRecord{}, false
}
