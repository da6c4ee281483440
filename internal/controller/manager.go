package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"proofd/internal/autocorrect"
	"proofd/internal/overlay"
	"proofd/internal/settings"
	"proofd/internal/span"
	"proofd/internal/surface"
)

// Manager owns every live controller plus the pieces they share: the
// analysis processor, the single auto-correct machine, and the settings
// store subscription that fans flag changes out to all surfaces.
type Manager struct {
	proc   Processor
	store  *settings.Store
	window time.Duration
	log    *slog.Logger

	machine *autocorrect.Machine
	hooks   Hooks

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewManager wires the shared state machine and subscribes to settings
// changes. hooks may be zero.
func NewManager(proc Processor, store *settings.Store, window time.Duration, hooks Hooks, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		proc:        proc,
		store:       store,
		window:      window,
		log:         log,
		hooks:       hooks,
		controllers: make(map[string]*Controller),
	}
	m.machine = autocorrect.New(proc, m.flashFor, log)
	store.Subscribe(m.broadcastFlags)
	return m
}

// Attach creates, starts and registers a controller for surf, rendering its
// overlay through sink. An existing controller for the same ID is stopped
// and replaced.
func (m *Manager) Attach(ctx context.Context, surf surface.Surface, sink overlay.Sink) *Controller {
	ov := overlay.New(surf, sink, m.log)
	ctl := New(surf, ov, m.proc, m.machine, m.store.Flags(), m.window, m.log)
	ctl.SetHooks(m.hooks)

	m.mu.Lock()
	prev := m.controllers[surf.ID()]
	m.controllers[surf.ID()] = ctl
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	ctl.Start(ctx)
	m.log.Info("surface attached", "surface", surf.ID(), "kind", surf.Kind())
	return ctl
}

// Detach stops the surface's controller and retires its analysis cache and
// any pending correction.
func (m *Manager) Detach(surfaceID string) {
	m.mu.Lock()
	ctl := m.controllers[surfaceID]
	delete(m.controllers, surfaceID)
	m.mu.Unlock()

	if ctl == nil {
		return
	}
	ctl.Stop()
	m.machine.Invalidate(surfaceID)
	m.proc.Drop(surfaceID)
	m.log.Info("surface detached", "surface", surfaceID)
}

// Get returns the controller for a surface ID.
func (m *Manager) Get(surfaceID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctl, ok := m.controllers[surfaceID]
	return ctl, ok
}

// Machine returns the shared auto-correct state machine.
func (m *Manager) Machine() *autocorrect.Machine { return m.machine }

// Shutdown detaches every surface.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Detach(id)
	}
}

func (m *Manager) broadcastFlags(f settings.Flags) {
	m.mu.Lock()
	ctls := make([]*Controller, 0, len(m.controllers))
	for _, ctl := range m.controllers {
		ctls = append(ctls, ctl)
	}
	m.mu.Unlock()

	for _, ctl := range ctls {
		ctl.SetFlags(f)
	}
}

func (m *Manager) flashFor(surf surface.Surface, rng span.Span) {
	m.mu.Lock()
	ctl := m.controllers[surf.ID()]
	m.mu.Unlock()
	if ctl != nil {
		ctl.flash(rng)
	}
}
