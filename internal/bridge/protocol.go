package bridge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"proofd/internal/surface"
	"proofd/internal/tooltip"
)

// Inbound message types (host -> daemon).
const (
	MsgHello     = "hello"
	MsgAttach    = "attach"
	MsgDetach    = "detach"
	MsgInput     = "input"
	MsgMutation  = "mutation"
	MsgSelection = "selection"
	MsgScroll    = "scroll"
	MsgResize    = "resize"
	MsgFocus     = "focus"
	MsgBlur      = "blur"
	MsgToggle    = "toggle"
	MsgSuggest   = "suggest"
	MsgApply     = "apply"
	MsgStatus    = "status"
)

// Outbound message types (daemon -> host).
const (
	MsgHelloAck       = "hello-ack"
	MsgOverlayCreate  = "overlay-create"
	MsgOverlayStyle   = "overlay-style"
	MsgOverlayMarkup  = "overlay-markup"
	MsgOverlayOutline = "overlay-outline"
	MsgSetText        = "set-text"
	MsgSuggestResult  = "suggest-result"
	MsgStatusResult   = "status-result"
	MsgError          = "error"
)

// Envelope is the wire frame for every bridge message. Payload shape depends
// on Type.
type Envelope struct {
	Type    string          `json:"type"`
	Surface string          `json:"surface,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

//go:embed envelope.schema.json
var envelopeSchemaJSON string

var envelopeSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.schema.json", strings.NewReader(envelopeSchemaJSON)); err != nil {
		panic(fmt.Sprintf("bridge: add schema resource: %v", err))
	}
	s, err := c.Compile("envelope.schema.json")
	if err != nil {
		panic(fmt.Sprintf("bridge: compile schema: %v", err))
	}
	return s
}

// ParseEnvelope validates raw against the envelope schema and decodes it.
// Host messages are untrusted input; anything malformed is rejected here,
// before any handler sees it.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if err := envelopeSchema.Validate(generic); err != nil {
		return Envelope{}, fmt.Errorf("invalid message: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode message: %w", err)
	}
	return env, nil
}

// StatePayload is a host-observed text and caret snapshot.
type StatePayload struct {
	Text  string `json:"text"`
	Caret int    `json:"caret"`
}

// WireNode is the JSON form of a content-tree node: a node carries either
// text (leaf) or children (element).
type WireNode struct {
	Text     string      `json:"text,omitempty"`
	Children []*WireNode `json:"children,omitempty"`
	Element  bool        `json:"element,omitempty"`
}

// ToNode converts a wire tree into a surface content tree.
func (w *WireNode) ToNode() *surface.Node {
	if w == nil {
		return nil
	}
	if w.Element || w.Children != nil {
		children := make([]*surface.Node, 0, len(w.Children))
		for _, c := range w.Children {
			children = append(children, c.ToNode())
		}
		return surface.ElementNode(children...)
	}
	return surface.TextNode(w.Text)
}

// AttachPayload describes a surface the host wants tracked.
type AttachPayload struct {
	Kind    string           `json:"kind"`
	Text    string           `json:"text"`
	Caret   int              `json:"caret"`
	Tree    *WireNode        `json:"tree,omitempty"`
	Metrics *surface.Metrics `json:"metrics,omitempty"`
}

// InputPayload reports a user edit, after the host applied it.
type InputPayload struct {
	InputType string        `json:"inputType"`
	Data      string        `json:"data"`
	State     *StatePayload `json:"state,omitempty"`
}

// MutationPayload reports a content change outside the input path.
type MutationPayload struct {
	State *StatePayload `json:"state,omitempty"`
	Tree  *WireNode     `json:"tree,omitempty"`
	Caret *int          `json:"caret,omitempty"`
}

// SelectionPayload reports a caret move.
type SelectionPayload struct {
	Caret int `json:"caret"`
}

// MetricsPayload carries a fresh geometry snapshot.
type MetricsPayload struct {
	Metrics surface.Metrics `json:"metrics"`
}

// SuggestPayload asks for the error and suggestions at an offset.
type SuggestPayload struct {
	Offset  int            `json:"offset"`
	Pointer tooltip.Anchor `json:"pointer"`
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
}

// ApplyPayload applies a chosen suggestion over a flagged span.
type ApplyPayload struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Replacement string `json:"replacement"`
}

// SuggestResult answers a suggest request.
type SuggestResult struct {
	Found       bool                 `json:"found"`
	Kind        string               `json:"kind,omitempty"`
	Start       int                  `json:"start,omitempty"`
	End         int                  `json:"end,omitempty"`
	Suggestions []tooltip.Suggestion `json:"suggestions,omitempty"`
	Anchor      tooltip.Anchor       `json:"anchor"`
}

// SetTextPayload echoes an engine-side mutation back to the host.
type SetTextPayload struct {
	Text  string `json:"text"`
	Caret int    `json:"caret"`
}

// MarkupPayload carries rendered overlay markup.
type MarkupPayload struct {
	Markup string `json:"markup"`
}

// OutlinePayload toggles the degraded outline-only mode.
type OutlinePayload struct {
	On bool `json:"on"`
}

// ErrorPayload reports a rejected message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// StatusResult answers a status request.
type StatusResult struct {
	Surfaces      int  `json:"surfaces"`
	DebugBorder   bool `json:"debugBorder"`
	AutoCorrect   bool `json:"autoCorrect"`
	DebugMessages bool `json:"debugMessages"`
}

// HelloAck answers a hello.
type HelloAck struct {
	Version string `json:"version"`
}
