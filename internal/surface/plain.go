package surface

import "sync"

// PlainField is a plain input or textarea. Its native selection API already
// exposes linear offsets, so no position mapping is involved.
type PlainField struct {
	mu       sync.Mutex
	id       string
	kind     Kind
	text     []rune
	caret    int
	metrics  Metrics
	onMutate MutateFunc
}

// NewPlainField creates a plain field surface. kind must be KindInput or
// KindTextArea; anything else is coerced to KindInput.
func NewPlainField(id string, kind Kind) *PlainField {
	if kind != KindInput && kind != KindTextArea {
		kind = KindInput
	}
	return &PlainField{id: id, kind: kind}
}

// OnMutate registers the host mutation callback.
func (p *PlainField) OnMutate(fn MutateFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMutate = fn
}

// ID returns the surface identity.
func (p *PlainField) ID() string { return p.id }

// Kind returns the surface variant.
func (p *PlainField) Kind() Kind { return p.kind }

// Text returns the current content.
func (p *PlainField) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.text)
}

// Len returns the content length in runes.
func (p *PlainField) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.text)
}

// SetText replaces the content and notifies the host.
func (p *PlainField) SetText(text string) {
	p.mu.Lock()
	p.text = []rune(text)
	if p.caret > len(p.text) {
		p.caret = len(p.text)
	}
	fn, caret := p.onMutate, p.caret
	p.mu.Unlock()

	if fn != nil {
		fn(text, caret)
	}
}

// Caret returns the linear caret offset.
func (p *PlainField) Caret() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caret
}

// SetCaret moves the caret, clamping to the content bounds.
func (p *PlainField) SetCaret(off int) {
	p.mu.Lock()
	if off < 0 {
		off = 0
	}
	if off > len(p.text) {
		off = len(p.text)
	}
	p.caret = off
	fn, text := p.onMutate, string(p.text)
	p.mu.Unlock()

	if fn != nil {
		fn(text, off)
	}
}

// Metrics returns the most recent geometry snapshot.
func (p *PlainField) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// SetMetrics records a fresh geometry snapshot.
func (p *PlainField) SetMetrics(m Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

// Sync applies a host-observed state change without echoing it back through
// the mutation callback. Used when the user, not the engine, edited the field.
func (p *PlainField) Sync(text string, caret int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = []rune(text)
	if caret < 0 {
		caret = 0
	}
	if caret > len(p.text) {
		caret = len(p.text)
	}
	p.caret = caret
}
