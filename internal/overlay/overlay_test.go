package overlay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofd/internal/span"
	"proofd/internal/surface"
)

// fakeSink records host calls.
type fakeSink struct {
	createErr error
	creates   int
	styles    []StyleState
	markups   []string
	outlines  []bool
}

func (f *fakeSink) Create(string) error { f.creates++; return f.createErr }

func (f *fakeSink) ApplyStyle(_ string, st StyleState) error {
	f.styles = append(f.styles, st)
	return nil
}

func (f *fakeSink) SetMarkup(_ string, m string) error {
	f.markups = append(f.markups, m)
	return nil
}

func (f *fakeSink) SetOutline(_ string, on bool) error {
	f.outlines = append(f.outlines, on)
	return nil
}

func newTestSurface() *surface.PlainField {
	p := surface.NewPlainField("s1", surface.KindTextArea)
	p.SetMetrics(surface.Metrics{
		Rect:    surface.Rect{X: 10, Y: 20, W: 300, H: 80},
		ScrollY: 12,
		Style:   surface.Style{Font: "16px serif", Padding: "4px"},
	})
	return p
}

func TestEnsureIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	o := New(newTestSurface(), sink, nil)

	o.Ensure()
	o.Ensure()
	o.Ensure()

	assert.Equal(t, 1, sink.creates)
	assert.False(t, o.Failed())
}

func TestSyncIdempotence(t *testing.T) {
	sink := &fakeSink{}
	surf := newTestSurface()
	o := New(surf, sink, nil)
	o.Ensure()

	o.Sync()
	o.Sync()

	require.Len(t, sink.styles, 1, "unchanged geometry must not re-apply style")
	st := sink.styles[0]
	assert.Equal(t, TextColor, st.TextColor)
	assert.Equal(t, surf.Metrics().Rect, st.Rect)
	assert.Equal(t, 12.0, st.ScrollY)

	// A geometry change resumes syncing.
	m := surf.Metrics()
	m.ScrollY = 40
	surf.SetMetrics(m)
	o.Sync()
	require.Len(t, sink.styles, 2)
	assert.Equal(t, 40.0, sink.styles[1].ScrollY)
}

func TestRenderWrapsErrorSpans(t *testing.T) {
	sink := &fakeSink{}
	o := New(newTestSurface(), sink, nil)
	o.Ensure()

	o.Render("I has a dog", []span.ErrorRecord{
		{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling", Suggestions: []string{"have", "had"}},
	})

	require.Len(t, sink.markups, 1)
	m := sink.markups[0]
	assert.Contains(t, m, `proofd-red`)
	assert.Contains(t, m, `data-kind="Spelling"`)
	assert.Contains(t, m, `have`)
	assert.Contains(t, m, `>has</span>`)
}

func TestRenderOverlappingSpansDescending(t *testing.T) {
	// Overlapping [0,5) and [3,8) over "abcdefgh" must not invert splice
	// ranges, in either input order.
	recs := []span.ErrorRecord{
		{Span: span.Span{Start: 0, End: 5}, Kind: "Style"},
		{Span: span.Span{Start: 3, End: 8}, Kind: "Repetition"},
	}
	reversed := []span.ErrorRecord{recs[1], recs[0]}

	for _, errs := range [][]span.ErrorRecord{recs, reversed} {
		m := Markup("abcdefgh", errs, nil)
		assert.Contains(t, m, "abc")
		assert.Contains(t, m, "de")
		assert.Contains(t, m, "fgh")
		assert.Equal(t, 2, countSubstr(m, "<span"), "both spans decorated")
		assert.Equal(t, 2, countSubstr(m, "</span>"))
	}
}

func TestRenderEscapesText(t *testing.T) {
	m := Markup(`a <b> & "c"`, nil, nil)
	assert.NotContains(t, m, "<b>")
	assert.Contains(t, m, "&lt;b&gt;")
	assert.Contains(t, m, "&amp;")
}

func TestRenderClampsOutOfRangeSpans(t *testing.T) {
	m := Markup("short", []span.ErrorRecord{
		{Span: span.Span{Start: 2, End: 99}, Kind: "Spelling"},
		{Span: span.Span{Start: 50, End: 60}, Kind: "Spelling"},
	}, nil)
	assert.Contains(t, m, ">ort</span>")
}

func TestOutlineFallback(t *testing.T) {
	sink := &fakeSink{createErr: errors.New("host refused")}
	o := New(newTestSurface(), sink, nil)

	o.Ensure()
	require.True(t, o.Failed())

	o.Render("text", []span.ErrorRecord{{Span: span.Span{Start: 0, End: 4}, Kind: "Spelling"}})
	require.Equal(t, []bool{true}, sink.outlines)
	assert.Empty(t, sink.markups, "failed overlay must not render markup")

	// Errors cleared: outline removed.
	o.Render("text", nil)
	assert.Equal(t, []bool{true, false}, sink.outlines)
}

func TestFlashAddsAndClearsHighlight(t *testing.T) {
	sink := &fakeSink{}
	o := New(newTestSurface(), sink, nil)
	o.Ensure()

	o.Render("I have a dog", nil)
	clear := o.Flash(span.Span{Start: 2, End: 7})

	require.NotEmpty(t, sink.markups)
	assert.Contains(t, sink.markups[len(sink.markups)-1], "proofd-flash")

	clear()
	assert.NotContains(t, sink.markups[len(sink.markups)-1], "proofd-flash")

	// A second clear is a no-op.
	n := len(sink.markups)
	clear()
	assert.Len(t, sink.markups, n)
}

func TestDebugBorderReappliesStyle(t *testing.T) {
	sink := &fakeSink{}
	o := New(newTestSurface(), sink, nil)
	o.Ensure()
	o.Sync()

	o.SetDebugBorder(true)
	require.Len(t, sink.styles, 2)
	assert.True(t, sink.styles[1].DebugBorder)

	// Same value again changes nothing.
	o.SetDebugBorder(true)
	assert.Len(t, sink.styles, 2)
}

func countSubstr(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
