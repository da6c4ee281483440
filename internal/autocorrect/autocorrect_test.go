package autocorrect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofd/internal/span"
	"proofd/internal/surface"
)

// scriptedProc returns a fixed record list on every pass.
type scriptedProc struct {
	records []span.ErrorRecord
	calls   int
}

func (p *scriptedProc) Process(context.Context, surface.Surface) []span.ErrorRecord {
	p.calls++
	return p.records
}

func hasDogSurface() *surface.PlainField {
	// "I has a dog" with the caret right after the space the user typed
	// following "has".
	p := surface.NewPlainField("s1", surface.KindTextArea)
	p.Sync("I has a dog", 6)
	return p
}

func hasDogProc() *scriptedProc {
	return &scriptedProc{records: []span.ErrorRecord{
		{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling", Suggestions: []string{"have", "had"}},
	}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		inputType, data string
		want            InputKind
	}{
		{"insertText", " ", InputInsertSpace},
		{"insertText", "a", InputInsertText},
		{"insertText", "  ", InputInsertText},
		{"deleteContentBackward", "", InputDeleteBackward},
		{"insertParagraph", "", InputOther},
		{"deleteContentForward", "", InputOther},
	}

	for _, tt := range tests {
		if got := Classify(tt.inputType, tt.data); got != tt.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", tt.inputType, tt.data, got, tt.want)
		}
	}
}

func TestCorrectionRevertRoundTrip(t *testing.T) {
	surf := hasDogSurface()
	proc := hasDogProc()
	m := New(proc, nil, nil)

	// Space-triggered correction applies the first-ranked suggestion.
	rec, applied := m.OnSpaceInserted(context.Background(), surf)
	require.True(t, applied)
	assert.Equal(t, "I have a dog", surf.Text())
	assert.Equal(t, 7, surf.Caret())
	assert.Equal(t, "has ", rec.Original)
	assert.Equal(t, "have ", rec.Corrected)
	assert.Equal(t, 2, rec.Start)
	assert.Equal(t, 7, rec.End)

	// The user's backspace lands on the host first, deleting the trailing
	// space; the revert then restores the original exactly.
	surf.Sync("I havea dog", 6)
	reverted, ok := m.OnDeleteBackward(context.Background(), surf)
	require.True(t, ok)
	assert.Equal(t, rec, reverted)
	assert.Equal(t, "I has a dog", surf.Text())
	assert.Equal(t, 6, surf.Caret())

	// The record was consumed; a second backspace does not re-revert.
	_, ok = m.Pending()
	assert.False(t, ok)
	_, ok = m.OnDeleteBackward(context.Background(), surf)
	assert.False(t, ok)
	assert.Equal(t, "I has a dog", surf.Text())
}

func TestNoMatchNoCorrection(t *testing.T) {
	surf := hasDogSurface()
	proc := &scriptedProc{records: []span.ErrorRecord{
		{Span: span.Span{Start: 8, End: 11}, Kind: "Spelling", Suggestions: []string{"cat"}},
	}}
	m := New(proc, nil, nil)

	_, applied := m.OnSpaceInserted(context.Background(), surf)
	assert.False(t, applied)
	assert.Equal(t, "I has a dog", surf.Text())
	_, ok := m.Pending()
	assert.False(t, ok)
}

func TestNoSuggestionsNoCorrection(t *testing.T) {
	surf := hasDogSurface()
	proc := &scriptedProc{records: []span.ErrorRecord{
		{Span: span.Span{Start: 2, End: 5}, Kind: "Spelling"},
	}}
	m := New(proc, nil, nil)

	_, applied := m.OnSpaceInserted(context.Background(), surf)
	assert.False(t, applied)
	assert.Equal(t, "I has a dog", surf.Text())
}

func TestMatchFallbackTiers(t *testing.T) {
	word := span.Span{Start: 2, End: 5}

	exact := span.ErrorRecord{Span: word, Kind: "exact"}
	containing := span.ErrorRecord{Span: span.Span{Start: 0, End: 7}, Kind: "containing"}
	overlapping := span.ErrorRecord{Span: span.Span{Start: 4, End: 9}, Kind: "overlapping"}
	disjoint := span.ErrorRecord{Span: span.Span{Start: 8, End: 11}, Kind: "disjoint"}

	tests := []struct {
		name    string
		records []span.ErrorRecord
		want    string
		ok      bool
	}{
		{"exact wins over all", []span.ErrorRecord{overlapping, containing, exact}, "exact", true},
		{"containing beats overlap", []span.ErrorRecord{overlapping, containing}, "containing", true},
		{"overlap as last resort", []span.ErrorRecord{disjoint, overlapping}, "overlapping", true},
		{"nothing matches", []span.ErrorRecord{disjoint}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchError(tt.records, word.Start, word.End)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Kind)
			}
		})
	}
}

func TestSingleSlotOverwrite(t *testing.T) {
	surf := hasDogSurface()
	proc := hasDogProc()
	m := New(proc, nil, nil)
	first, applied := m.OnSpaceInserted(context.Background(), surf)
	require.True(t, applied)

	// A second correction on another surface overwrites the slot.
	surf2 := surface.NewPlainField("s2", surface.KindTextArea)
	surf2.Sync("we was here", 7)
	proc2 := &scriptedProc{records: []span.ErrorRecord{
		{Span: span.Span{Start: 3, End: 6}, Kind: "Spelling", Suggestions: []string{"were"}},
	}}
	m.proc = proc2
	_, applied = m.OnSpaceInserted(context.Background(), surf2)
	require.True(t, applied)
	assert.Equal(t, "we were here", surf2.Text())

	second, ok := m.Pending()
	require.True(t, ok)
	assert.NotEqual(t, first.SurfaceID, second.SurfaceID)

	// The first correction is permanently unrevertable: its surface still
	// holds the corrected text and the revert attempt is a no-op.
	surf.Sync("I havea dog", 6)
	_, ok = m.OnDeleteBackward(context.Background(), surf)
	assert.False(t, ok)
	assert.Equal(t, "I havea dog", surf.Text())

	// The second correction still reverts normally after its backspace.
	surf2.Sync("we werehere", 7)
	_, ok = m.OnDeleteBackward(context.Background(), surf2)
	require.True(t, ok)
	assert.Equal(t, "we was here", surf2.Text())
	assert.Equal(t, 7, surf2.Caret())
}

func TestRevertPreconditionPositions(t *testing.T) {
	// After the correction the boundary sits at offset 6: the corrected
	// word's end once the trigger space is backspaced away.
	tests := []struct {
		name        string
		text        string
		caret       int
		reverted    bool
		recordAlive bool
	}{
		{"exact boundary reverts", "I havea dog", 6, true, false},
		{"one short is a silent no-op", "I have a dog", 5, false, true},
		{"two past is a silent no-op", "I have a dog", 8, false, true},
		{"past tolerance discards the record", "I have a dog", 9, false, false},
		{"far before discards the record", "I have a dog", 2, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surf := hasDogSurface()
			m := New(hasDogProc(), nil, nil)
			_, applied := m.OnSpaceInserted(context.Background(), surf)
			require.True(t, applied)

			surf.Sync(tt.text, tt.caret)
			_, got := m.OnDeleteBackward(context.Background(), surf)
			assert.Equal(t, tt.reverted, got)

			_, alive := m.Pending()
			assert.Equal(t, tt.recordAlive, alive)
		})
	}
}

func TestRevertDetectsChangedText(t *testing.T) {
	surf := hasDogSurface()
	m := New(hasDogProc(), nil, nil)
	_, applied := m.OnSpaceInserted(context.Background(), surf)
	require.True(t, applied)

	// The corrected range no longer holds what the correction wrote.
	surf.Sync("I xxxxa dog", 6)
	_, ok := m.OnDeleteBackward(context.Background(), surf)
	assert.False(t, ok)
	_, alive := m.Pending()
	assert.False(t, alive, "mismatched text must discard the record")
}

func TestFlashCoversCorrectedRange(t *testing.T) {
	surf := hasDogSurface()
	var flashed span.Span
	m := New(hasDogProc(), func(_ surface.Surface, rng span.Span) { flashed = rng }, nil)

	_, applied := m.OnSpaceInserted(context.Background(), surf)
	require.True(t, applied)
	assert.Equal(t, span.Span{Start: 2, End: 7}, flashed)
}

func TestInvalidate(t *testing.T) {
	surf := hasDogSurface()
	m := New(hasDogProc(), nil, nil)
	_, applied := m.OnSpaceInserted(context.Background(), surf)
	require.True(t, applied)

	m.Invalidate("other-surface")
	_, alive := m.Pending()
	assert.True(t, alive)

	m.Invalidate("s1")
	_, alive = m.Pending()
	assert.False(t, alive)
}

func TestNoWordBeforeSpace(t *testing.T) {
	surf := surface.NewPlainField("s1", surface.KindInput)
	surf.Sync("  x", 1) // caret after a space preceded by another space
	m := New(hasDogProc(), nil, nil)

	_, applied := m.OnSpaceInserted(context.Background(), surf)
	assert.False(t, applied)
}
