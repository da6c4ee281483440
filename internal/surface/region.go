package surface

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Node is one node in an editable region's content tree. A node either bears
// text (leaf) or children (element); mixed nodes do not occur because hosts
// report element text as child text nodes.
type Node struct {
	Text     string
	Children []*Node
	element  bool
}

// TextNode creates a text-bearing leaf node.
func TextNode(text string) *Node {
	return &Node{Text: text}
}

// ElementNode creates an element node with the given children.
func ElementNode(children ...*Node) *Node {
	return &Node{Children: children, element: true}
}

// IsText reports whether the node is a text-bearing leaf.
func (n *Node) IsText() bool { return !n.element }

// runeLen returns the node's text length in runes.
func (n *Node) runeLen() int { return utf8.RuneCountInString(n.Text) }

// Position is a (node, intra-node offset) pair inside an editable region.
// Intra-node offsets count runes.
type Position struct {
	Node   *Node
	Offset int
}

// EditableRegion is a rich editable surface backed by a node tree. Linear
// offsets and (node, offset) positions are convertible in both directions
// through PositionFromOffset and OffsetFromPosition.
type EditableRegion struct {
	mu       sync.Mutex
	id       string
	root     *Node
	caret    int
	metrics  Metrics
	onMutate MutateFunc
}

// NewEditableRegion creates an editable region with an empty content tree.
func NewEditableRegion(id string) *EditableRegion {
	return &EditableRegion{id: id, root: ElementNode()}
}

// OnMutate registers the host mutation callback.
func (r *EditableRegion) OnMutate(fn MutateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMutate = fn
}

// ID returns the surface identity.
func (r *EditableRegion) ID() string { return r.id }

// Kind returns KindEditableRegion.
func (r *EditableRegion) Kind() Kind { return KindEditableRegion }

// Text returns the concatenated text of all text-bearing nodes in document
// order.
func (r *EditableRegion) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	for _, n := range r.textNodesLocked() {
		sb.WriteString(n.Text)
	}
	return sb.String()
}

// Len returns the total text length in runes.
func (r *EditableRegion) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalLenLocked()
}

// SetText collapses the content tree to a single text node holding text and
// notifies the host. Structural markup inside the region is host-side state;
// after an engine-driven replacement the host re-reports the resulting tree.
func (r *EditableRegion) SetText(text string) {
	r.mu.Lock()
	r.root = ElementNode(TextNode(text))
	total := r.totalLenLocked()
	if r.caret > total {
		r.caret = total
	}
	fn, caret := r.onMutate, r.caret
	r.mu.Unlock()

	if fn != nil {
		fn(text, caret)
	}
}

// Caret returns the linear caret offset.
func (r *EditableRegion) Caret() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caret
}

// SetCaret moves the caret, clamping to the content bounds.
func (r *EditableRegion) SetCaret(off int) {
	r.mu.Lock()
	total := r.totalLenLocked()
	if off < 0 {
		off = 0
	}
	if off > total {
		off = total
	}
	r.caret = off
	fn := r.onMutate
	var text string
	if fn != nil {
		var sb strings.Builder
		for _, n := range r.textNodesLocked() {
			sb.WriteString(n.Text)
		}
		text = sb.String()
	}
	r.mu.Unlock()

	if fn != nil {
		fn(text, off)
	}
}

// Metrics returns the most recent geometry snapshot.
func (r *EditableRegion) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// SetMetrics records a fresh geometry snapshot.
func (r *EditableRegion) SetMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// SyncTree applies a host-observed content tree and caret without echoing
// through the mutation callback.
func (r *EditableRegion) SyncTree(root *Node, caret int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if root == nil {
		root = ElementNode()
	}
	r.root = root
	total := r.totalLenLocked()
	if caret < 0 {
		caret = 0
	}
	if caret > total {
		caret = total
	}
	r.caret = caret
}

// Sync applies a host-observed flat state change, collapsing the tree to a
// single text node. Hosts that track rich structure follow up with SyncTree.
func (r *EditableRegion) Sync(text string, caret int) {
	r.SyncTree(ElementNode(TextNode(text)), caret)
}

// Root returns the current content tree root.
func (r *EditableRegion) Root() *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root
}

// PositionFromOffset converts a linear offset to a (node, intra-offset)
// position by walking text-bearing nodes in document order and accumulating
// consumed length. Offsets beyond the total length clamp to end-of-content.
// An empty region has no addressable position; ok is false and callers fall
// back to collapsing to the region's end.
func (r *EditableRegion) PositionFromOffset(off int) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := r.textNodesLocked()
	if len(nodes) == 0 {
		return Position{}, false
	}
	if off < 0 {
		off = 0
	}

	cum := 0
	for _, n := range nodes {
		next := cum + n.runeLen()
		if off <= next {
			return Position{Node: n, Offset: off - cum}, true
		}
		cum = next
	}

	// Past end-of-content: clamp to the last node's end.
	last := nodes[len(nodes)-1]
	return Position{Node: last, Offset: last.runeLen()}, true
}

// OffsetFromPosition converts a (node, intra-offset) position back to a
// linear offset. ok is false when the node is not a text-bearing descendant
// of this region. Intra-node offsets are clamped to the node's length.
func (r *EditableRegion) OffsetFromPosition(node *Node, intra int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if node == nil || !node.IsText() {
		return 0, false
	}

	cum := 0
	for _, n := range r.textNodesLocked() {
		if n == node {
			if intra < 0 {
				intra = 0
			}
			if l := n.runeLen(); intra > l {
				intra = l
			}
			return cum + intra, true
		}
		cum += n.runeLen()
	}
	return 0, false
}

// textNodesLocked returns the region's text-bearing leaves in document order.
func (r *EditableRegion) textNodesLocked() []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.IsText() {
			out = append(out, n)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(r.root)
	return out
}

// totalLenLocked returns the total text length in runes.
func (r *EditableRegion) totalLenLocked() int {
	total := 0
	for _, n := range r.textNodesLocked() {
		total += n.runeLen()
	}
	return total
}
