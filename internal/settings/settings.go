// Package settings holds the runtime feature flags and distributes toggle
// notifications to every attached surface.
//
// Flags are injected at construction from configuration and updated at
// runtime by push notifications; controllers subscribe rather than reading
// shared globals.
package settings

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Notification types.
const (
	ToggleDebugBorder   = "toggle-debug-border"
	ToggleAutoCorrect   = "toggle-auto-correct"
	ToggleDebugMessages = "toggle-debug-messages"
)

// Notification is one runtime settings toggle, broadcast to all active
// surfaces.
type Notification struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// Flags is a snapshot of the three runtime flags.
type Flags struct {
	DebugBorder   bool `json:"debugBorder"`
	AutoCorrect   bool `json:"autoCorrect"`
	DebugMessages bool `json:"debugMessages"`
}

//go:embed notification.schema.json
var notificationSchema []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("notification.schema.json", bytes.NewReader(notificationSchema)); err != nil {
		panic(fmt.Sprintf("settings: add schema resource: %v", err))
	}
	s, err := c.Compile("notification.schema.json")
	if err != nil {
		panic(fmt.Sprintf("settings: compile schema: %v", err))
	}
	return s
}

// ParseNotification validates raw JSON against the notification schema and
// decodes it. Unknown types and malformed payloads are rejected before they
// reach any surface.
func ParseNotification(raw []byte) (Notification, error) {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return Notification{}, fmt.Errorf("invalid notification: %w", err)
	}

	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// Store holds the current flags and fans updates out to subscribers.
type Store struct {
	mu    sync.Mutex
	flags Flags
	subs  []func(Flags)
}

// NewStore creates a store with the given initial flags.
func NewStore(initial Flags) *Store {
	return &Store{flags: initial}
}

// Flags returns the current snapshot.
func (s *Store) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Subscribe registers fn for future updates and immediately delivers the
// current snapshot so new controllers start consistent.
func (s *Store) Subscribe(fn func(Flags)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	cur := s.flags
	s.mu.Unlock()

	fn(cur)
}

// Apply updates the flag named by the notification and broadcasts the new
// snapshot. Unknown types are ignored; ParseNotification rejects them before
// they get here when the notification arrived over the wire.
func (s *Store) Apply(n Notification) {
	s.mu.Lock()
	switch n.Type {
	case ToggleDebugBorder:
		s.flags.DebugBorder = n.Enabled
	case ToggleAutoCorrect:
		s.flags.AutoCorrect = n.Enabled
	case ToggleDebugMessages:
		s.flags.DebugMessages = n.Enabled
	default:
		s.mu.Unlock()
		return
	}
	subs := make([]func(Flags), len(s.subs))
	copy(subs, s.subs)
	cur := s.flags
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cur)
	}
}
