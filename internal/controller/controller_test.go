package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofd/internal/autocorrect"
	"proofd/internal/overlay"
	"proofd/internal/settings"
	"proofd/internal/span"
	"proofd/internal/surface"
)

// recordingProc counts passes and remembers the text each one saw.
type recordingProc struct {
	mu      sync.Mutex
	records map[string][]span.ErrorRecord
	calls   int
	texts   []string
}

func (p *recordingProc) Process(_ context.Context, surf surface.Surface) []span.ErrorRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.texts = append(p.texts, surf.Text())
	return p.records[surf.ID()]
}

func (p *recordingProc) Records(surfaceID string) []span.ErrorRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[surfaceID]
}

func (p *recordingProc) Drop(string) {}

func (p *recordingProc) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *recordingProc) lastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.texts) == 0 {
		return ""
	}
	return p.texts[len(p.texts)-1]
}

// nullSink satisfies overlay.Sink for tests that ignore rendering.
type nullSink struct {
	mu     sync.Mutex
	styles int
}

func (s *nullSink) Create(string) error { return nil }
func (s *nullSink) ApplyStyle(string, overlay.StyleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styles++
	return nil
}
func (s *nullSink) SetMarkup(string, string) error { return nil }
func (s *nullSink) SetOutline(string, bool) error  { return nil }

func (s *nullSink) styleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.styles
}

func newTestManager(t *testing.T, proc Processor, flags settings.Flags, window time.Duration) (*Manager, *settings.Store) {
	t.Helper()
	store := settings.NewStore(flags)
	m := NewManager(proc, store, window, Hooks{}, nil)
	t.Cleanup(m.Shutdown)
	return m, store
}

func inputEvent(inputType, data, text string, caret int) Event {
	return Event{
		Kind:      EventInput,
		InputType: inputType,
		InputData: data,
		State:     &State{Text: text, Caret: caret},
	}
}

func TestDebounceCollapsesBurst(t *testing.T) {
	proc := &recordingProc{}
	m, _ := newTestManager(t, proc, settings.Flags{}, 30*time.Millisecond)
	ctl := m.Attach(context.Background(), surface.NewPlainField("s1", surface.KindInput), &nullSink{})

	// Five rapid keystrokes inside one window.
	for i, text := range []string{"h", "he", "hel", "hell", "hello"} {
		ctl.Deliver(inputEvent("insertText", string(text[len(text)-1]), text, i+1))
	}

	require.Eventually(t, func() bool { return proc.callCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", proc.lastText(), "pass must see the last state of the burst")

	// No further pass sneaks in after the window.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, proc.callCount())
}

func TestBlurFlushesPendingDebounce(t *testing.T) {
	proc := &recordingProc{}
	m, _ := newTestManager(t, proc, settings.Flags{}, time.Hour)
	ctl := m.Attach(context.Background(), surface.NewPlainField("s1", surface.KindInput), &nullSink{})

	ctl.Deliver(inputEvent("insertText", "x", "x", 1))
	ctl.Deliver(Event{Kind: EventBlur})

	// The hour-long debounce can't be what fires; blur must.
	require.Eventually(t, func() bool { return proc.callCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "x", proc.lastText())
}

func TestFocusTriggersImmediatePass(t *testing.T) {
	proc := &recordingProc{}
	m, _ := newTestManager(t, proc, settings.Flags{}, time.Hour)
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	surf.Sync("existing text", 0)
	ctl := m.Attach(context.Background(), surf, &nullSink{})

	ctl.Deliver(Event{Kind: EventFocus})
	require.Eventually(t, func() bool { return proc.callCount() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestAutoCorrectBypassesDebounce(t *testing.T) {
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	surf.Sync("I has a dog", 6)
	proc := &recordingProc{records: map[string][]span.ErrorRecord{
		"s1": {{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling", Suggestions: []string{"have"}}},
	}}

	var applied []autocorrect.CorrectionRecord
	var mu sync.Mutex
	store := settings.NewStore(settings.Flags{AutoCorrect: true})
	m := NewManager(proc, store, time.Hour, Hooks{
		CorrectionApplied: func(rec autocorrect.CorrectionRecord) {
			mu.Lock()
			applied = append(applied, rec)
			mu.Unlock()
		},
	}, nil)
	t.Cleanup(m.Shutdown)

	ctl := m.Attach(context.Background(), surf, &nullSink{})
	ctl.Deliver(inputEvent("insertText", " ", "I has a dog", 6))

	require.Eventually(t, func() bool { return surf.Text() == "I have a dog" },
		time.Second, 5*time.Millisecond)
	// One synchronous pass inside the machine plus the immediate reprocess.
	require.Eventually(t, func() bool { return proc.callCount() == 2 },
		time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, applied, 1)
	assert.Equal(t, "has ", applied[0].Original)
}

func TestBackspaceRevertsThroughController(t *testing.T) {
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	surf.Sync("I has a dog", 6)
	proc := &recordingProc{records: map[string][]span.ErrorRecord{
		"s1": {{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling", Suggestions: []string{"have"}}},
	}}

	var reverted []autocorrect.CorrectionRecord
	var mu sync.Mutex
	store := settings.NewStore(settings.Flags{AutoCorrect: true})
	m := NewManager(proc, store, time.Hour, Hooks{
		CorrectionReverted: func(rec autocorrect.CorrectionRecord) {
			mu.Lock()
			reverted = append(reverted, rec)
			mu.Unlock()
		},
	}, nil)
	t.Cleanup(m.Shutdown)

	ctl := m.Attach(context.Background(), surf, &nullSink{})
	ctl.Deliver(inputEvent("insertText", " ", "I has a dog", 6))
	require.Eventually(t, func() bool { return surf.Text() == "I have a dog" },
		time.Second, 5*time.Millisecond)

	// The host applies the backspace, then reports it.
	ctl.Deliver(inputEvent("deleteContentBackward", "", "I havea dog", 6))
	require.Eventually(t, func() bool { return surf.Text() == "I has a dog" },
		time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reverted, 1)
	assert.Equal(t, "have ", reverted[0].Corrected)
}

func TestApplySuggestionSerializesWithInput(t *testing.T) {
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	surf.Sync("I teh cat", 9)
	proc := &recordingProc{records: map[string][]span.ErrorRecord{
		"s1": {{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling", Suggestions: []string{"the"}}},
	}}
	m, _ := newTestManager(t, proc, settings.Flags{}, time.Hour)
	ctl := m.Attach(context.Background(), surf, &nullSink{})

	// A keystroke and an apply request land back to back. The dispatcher
	// must sync the keystroke before splicing, or the replacement would be
	// computed from the pre-edit snapshot and overwrite the new character.
	ctl.Deliver(inputEvent("insertText", "s", "I teh cats", 10))
	ctl.Deliver(Event{Kind: EventApply, Apply: &ApplyRequest{
		Span: span.Span{Start: 2, End: 5}, Replacement: "the",
	}})

	require.Eventually(t, func() bool { return surf.Text() == "I the cats" },
		time.Second, 5*time.Millisecond)
}

func TestApplySuggestionIgnoresUnknownSpan(t *testing.T) {
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	surf.Sync("clean text", 10)
	proc := &recordingProc{}
	m, _ := newTestManager(t, proc, settings.Flags{}, time.Hour)
	ctl := m.Attach(context.Background(), surf, &nullSink{})

	ctl.Deliver(Event{Kind: EventApply, Apply: &ApplyRequest{
		Span: span.Span{Start: 0, End: 5}, Replacement: "dirty",
	}})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "clean text", surf.Text())
	assert.Zero(t, proc.callCount())
}

func TestAutoCorrectDisabledFallsThrough(t *testing.T) {
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	surf.Sync("I has a dog", 6)
	proc := &recordingProc{records: map[string][]span.ErrorRecord{
		"s1": {{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling", Suggestions: []string{"have"}}},
	}}
	m, _ := newTestManager(t, proc, settings.Flags{AutoCorrect: false}, 20*time.Millisecond)
	ctl := m.Attach(context.Background(), surf, &nullSink{})

	ctl.Deliver(inputEvent("insertText", " ", "I has a dog", 6))

	// The text is never rewritten; the event only schedules a debounced pass.
	require.Eventually(t, func() bool { return proc.callCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "I has a dog", surf.Text())
}

func TestScrollResyncsOverlayGeometry(t *testing.T) {
	proc := &recordingProc{}
	sink := &nullSink{}
	m, _ := newTestManager(t, proc, settings.Flags{}, time.Hour)
	surf := surface.NewPlainField("s1", surface.KindTextArea)
	ctl := m.Attach(context.Background(), surf, sink)

	ctl.Deliver(Event{Kind: EventFocus})
	require.Eventually(t, func() bool { return sink.styleCount() == 1 },
		time.Second, 5*time.Millisecond)

	metrics := surf.Metrics()
	metrics.ScrollY = 42
	ctl.Deliver(Event{Kind: EventScroll, Metrics: &metrics})
	require.Eventually(t, func() bool { return sink.styleCount() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestSettingsBroadcastReachesControllers(t *testing.T) {
	proc := &recordingProc{}
	m, store := newTestManager(t, proc, settings.Flags{}, time.Hour)
	ctl := m.Attach(context.Background(), surface.NewPlainField("s1", surface.KindInput), &nullSink{})

	store.Apply(settings.Notification{Type: settings.ToggleAutoCorrect, Enabled: true})
	assert.True(t, ctl.currentFlags().AutoCorrect)

	store.Apply(settings.Notification{Type: settings.ToggleAutoCorrect, Enabled: false})
	assert.False(t, ctl.currentFlags().AutoCorrect)
}

func TestDetachStopsDispatcher(t *testing.T) {
	proc := &recordingProc{}
	m, _ := newTestManager(t, proc, settings.Flags{}, 20*time.Millisecond)
	ctl := m.Attach(context.Background(), surface.NewPlainField("s1", surface.KindInput), &nullSink{})

	m.Detach("s1")
	_, ok := m.Get("s1")
	assert.False(t, ok)

	// Events after detach never produce a pass.
	ctl.Deliver(inputEvent("insertText", "x", "x", 1))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, proc.callCount())
}
