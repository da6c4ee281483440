package surface

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTree builds a nested content tree:
//
//	<root> "Hello " <b>"wrold"</b> " and " <i><u>"goobdye"</u></i> "!" </root>
func testTree() *Node {
	return ElementNode(
		TextNode("Hello "),
		ElementNode(TextNode("wrold")),
		TextNode(" and "),
		ElementNode(ElementNode(TextNode("goobdye"))),
		TextNode("!"),
	)
}

func TestRegionText(t *testing.T) {
	r := NewEditableRegion("r1")
	r.SyncTree(testTree(), 0)

	assert.Equal(t, "Hello wrold and goobdye!", r.Text())
	assert.Equal(t, utf8.RuneCountInString("Hello wrold and goobdye!"), r.Len())
}

func TestOffsetRoundTrip(t *testing.T) {
	r := NewEditableRegion("r1")
	r.SyncTree(testTree(), 0)

	for off := 0; off <= r.Len(); off++ {
		pos, ok := r.PositionFromOffset(off)
		require.True(t, ok, "offset %d has no position", off)

		back, ok := r.OffsetFromPosition(pos.Node, pos.Offset)
		require.True(t, ok, "position for offset %d did not map back", off)
		assert.Equal(t, off, back, "round trip at offset %d", off)
	}
}

func TestOffsetRoundTripMultibyte(t *testing.T) {
	r := NewEditableRegion("r1")
	r.SyncTree(ElementNode(
		TextNode("héllo "),
		ElementNode(TextNode("wörld")),
		TextNode(" — done"),
	), 0)

	for off := 0; off <= r.Len(); off++ {
		pos, ok := r.PositionFromOffset(off)
		require.True(t, ok)
		back, ok := r.OffsetFromPosition(pos.Node, pos.Offset)
		require.True(t, ok)
		assert.Equal(t, off, back)
	}
}

func TestPositionClampsPastEnd(t *testing.T) {
	r := NewEditableRegion("r1")
	r.SyncTree(testTree(), 0)

	pos, ok := r.PositionFromOffset(r.Len() + 100)
	require.True(t, ok)
	assert.Equal(t, "!", pos.Node.Text)
	assert.Equal(t, 1, pos.Offset)
}

func TestEmptyRegionHasNoPosition(t *testing.T) {
	r := NewEditableRegion("r1")

	_, ok := r.PositionFromOffset(0)
	assert.False(t, ok)
}

func TestOffsetFromForeignNode(t *testing.T) {
	r := NewEditableRegion("r1")
	r.SyncTree(testTree(), 0)

	_, ok := r.OffsetFromPosition(TextNode("elsewhere"), 0)
	assert.False(t, ok)

	_, ok = r.OffsetFromPosition(nil, 0)
	assert.False(t, ok)

	_, ok = r.OffsetFromPosition(ElementNode(), 0)
	assert.False(t, ok)
}

func TestSetTextCollapsesTree(t *testing.T) {
	r := NewEditableRegion("r1")
	r.SyncTree(testTree(), 3)

	var gotText string
	gotCaret := -1
	r.OnMutate(func(text string, caret int) {
		gotText, gotCaret = text, caret
	})

	r.SetText("fresh")
	assert.Equal(t, "fresh", r.Text())
	assert.Equal(t, "fresh", gotText)
	assert.Equal(t, 3, gotCaret)
}
