// Package bridge is the websocket transport between the engine and its hosts.
//
// A host (editor plugin, browser extension) connects, attaches the surfaces
// it tracks, and streams their events; the engine streams overlay updates and
// engine-side text mutations back. One connection may carry any number of
// surfaces; closing the connection detaches them all.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"proofd/internal/analyze"
	"proofd/internal/config"
	"proofd/internal/controller"
	"proofd/internal/logging"
	"proofd/internal/overlay"
	"proofd/internal/settings"
	"proofd/internal/span"
	"proofd/internal/surface"
	"proofd/internal/tooltip"
)

// ProtocolVersion is echoed in the hello handshake.
const ProtocolVersion = "1"

const (
	defaultMaxMessageBytes = 1 << 20
	defaultWriteTimeout    = 10 * time.Second
)

// Server accepts host connections and owns their sessions.
type Server struct {
	cfg      config.BridgeConfig
	manager  *controller.Manager
	gateway  *analyze.Gateway
	settings *settings.Store
	log      *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewServer wires a bridge server over an attached engine.
func NewServer(cfg config.BridgeConfig, mgr *controller.Manager, gw *analyze.Gateway, st *settings.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		manager:  mgr,
		gateway:  gw,
		settings: st,
		log:      log,
		sessions: make(map[*Session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin admits any origin when the allow-list is empty; loopback
// listeners rely on the address for isolation, not the Origin header.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Start begins listening and serving. It returns once the listener is bound;
// connections are handled on background goroutines until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("bridge listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		defer logging.Recover(s.log, "bridge.serve")
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("bridge server stopped", "error", err)
		}
	}()

	s.log.Info("bridge listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, usable after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes all sessions and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := &Session{
		srv:      s,
		conn:     conn,
		log:      s.log.With("remote", conn.RemoteAddr().String()),
		surfaces: make(map[string]surface.Surface),
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.log.Info("host connected", "remote", conn.RemoteAddr().String())
	go sess.readLoop()
}

func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) maxMessageBytes() int64 {
	if s.cfg.MaxMessageBytes > 0 {
		return s.cfg.MaxMessageBytes
	}
	return defaultMaxMessageBytes
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.WriteTimeoutSec > 0 {
		return time.Duration(s.cfg.WriteTimeoutSec) * time.Second
	}
	return defaultWriteTimeout
}

// Session is one host connection. It implements overlay.Sink, so overlay
// state changes for its surfaces go straight out over the wire.
type Session struct {
	srv  *Server
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	surfaces map[string]surface.Surface
	closed   bool
}

func (sess *Session) readLoop() {
	defer logging.Recover(sess.log, "bridge.readLoop")
	defer sess.close()

	sess.conn.SetReadLimit(sess.srv.maxMessageBytes())

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log.Warn("host connection lost", "error", err)
			} else {
				sess.log.Info("host disconnected")
			}
			return
		}

		env, err := ParseEnvelope(raw)
		if err != nil {
			sess.log.Warn("rejected host message", "error", err)
			sess.sendError(env.Surface, err.Error())
			continue
		}
		sess.handle(env)
	}
}

// close detaches every surface the session attached and closes the socket.
func (sess *Session) close() {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	ids := make([]string, 0, len(sess.surfaces))
	for id := range sess.surfaces {
		ids = append(ids, id)
	}
	sess.surfaces = make(map[string]surface.Surface)
	sess.mu.Unlock()

	for _, id := range ids {
		sess.srv.manager.Detach(id)
	}
	sess.conn.Close()
	sess.srv.removeSession(sess)
}

func (sess *Session) handle(env Envelope) {
	switch env.Type {
	case MsgHello:
		sess.send(Envelope{Type: MsgHelloAck, Seq: env.Seq}, HelloAck{Version: ProtocolVersion})

	case MsgAttach:
		sess.handleAttach(env)

	case MsgDetach:
		sess.handleDetach(env)

	case MsgInput, MsgMutation, MsgSelection, MsgScroll, MsgResize, MsgFocus, MsgBlur:
		sess.handleSurfaceEvent(env)

	case MsgToggle:
		n, err := settings.ParseNotification(env.Payload)
		if err != nil {
			sess.sendError(env.Surface, err.Error())
			return
		}
		sess.srv.settings.Apply(n)

	case MsgSuggest:
		sess.handleSuggest(env)

	case MsgApply:
		sess.handleApply(env)

	case MsgStatus:
		sess.handleStatus(env)
	}
}

func (sess *Session) handleAttach(env Envelope) {
	if env.Surface == "" {
		sess.sendError("", "attach requires a surface id")
		return
	}
	var p AttachPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		sess.sendError(env.Surface, fmt.Sprintf("attach payload: %v", err))
		return
	}

	var surf surface.Surface
	switch p.Kind {
	case "input":
		f := surface.NewPlainField(env.Surface, surface.KindInput)
		f.Sync(p.Text, p.Caret)
		f.OnMutate(sess.echoText(env.Surface))
		surf = f
	case "textarea":
		f := surface.NewPlainField(env.Surface, surface.KindTextArea)
		f.Sync(p.Text, p.Caret)
		f.OnMutate(sess.echoText(env.Surface))
		surf = f
	case "editable-region":
		r := surface.NewEditableRegion(env.Surface)
		if p.Tree != nil {
			r.SyncTree(p.Tree.ToNode(), p.Caret)
		} else {
			r.Sync(p.Text, p.Caret)
		}
		r.OnMutate(sess.echoText(env.Surface))
		surf = r
	default:
		sess.sendError(env.Surface, fmt.Sprintf("unknown surface kind %q", p.Kind))
		return
	}

	if p.Metrics != nil {
		surf.SetMetrics(*p.Metrics)
	}

	sess.mu.Lock()
	sess.surfaces[env.Surface] = surf
	sess.mu.Unlock()

	sess.srv.manager.Attach(sess.srv.ctx, surf, sess)
	sess.log.Info("surface attached", "surface", env.Surface, "kind", p.Kind)
}

func (sess *Session) handleDetach(env Envelope) {
	sess.mu.Lock()
	_, known := sess.surfaces[env.Surface]
	delete(sess.surfaces, env.Surface)
	sess.mu.Unlock()

	if !known {
		return
	}
	sess.srv.manager.Detach(env.Surface)
	sess.log.Info("surface detached", "surface", env.Surface)
}

func (sess *Session) handleSurfaceEvent(env Envelope) {
	ctl, ok := sess.srv.manager.Get(env.Surface)
	if !ok {
		sess.sendError(env.Surface, "unknown surface")
		return
	}

	ev, err := translateEvent(env)
	if err != nil {
		sess.sendError(env.Surface, err.Error())
		return
	}
	ctl.Deliver(ev)
}

// translateEvent maps a wire envelope onto a controller event.
func translateEvent(env Envelope) (controller.Event, error) {
	switch env.Type {
	case MsgInput:
		var p InputPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return controller.Event{}, fmt.Errorf("input payload: %w", err)
		}
		ev := controller.Event{
			Kind:      controller.EventInput,
			InputType: p.InputType,
			InputData: p.Data,
		}
		if p.State != nil {
			ev.State = &controller.State{Text: p.State.Text, Caret: p.State.Caret}
		}
		return ev, nil

	case MsgMutation:
		var p MutationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return controller.Event{}, fmt.Errorf("mutation payload: %w", err)
		}
		ev := controller.Event{Kind: controller.EventMutation}
		if p.Tree != nil {
			ev.Tree = p.Tree.ToNode()
			if p.Caret != nil {
				ev.State = &controller.State{Caret: *p.Caret}
			}
		} else if p.State != nil {
			ev.State = &controller.State{Text: p.State.Text, Caret: p.State.Caret}
		}
		return ev, nil

	case MsgSelection:
		var p SelectionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return controller.Event{}, fmt.Errorf("selection payload: %w", err)
		}
		return controller.Event{
			Kind:  controller.EventSelection,
			State: &controller.State{Caret: p.Caret},
		}, nil

	case MsgScroll, MsgResize:
		var p MetricsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return controller.Event{}, fmt.Errorf("metrics payload: %w", err)
		}
		kind := controller.EventScroll
		if env.Type == MsgResize {
			kind = controller.EventResize
		}
		return controller.Event{Kind: kind, Metrics: &p.Metrics}, nil

	case MsgFocus:
		return controller.Event{Kind: controller.EventFocus}, nil

	case MsgBlur:
		return controller.Event{Kind: controller.EventBlur}, nil
	}
	return controller.Event{}, fmt.Errorf("unroutable event type %q", env.Type)
}

func (sess *Session) handleSuggest(env Envelope) {
	surf, ok := sess.lookup(env.Surface)
	if !ok {
		sess.sendError(env.Surface, "unknown surface")
		return
	}
	var p SuggestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		sess.sendError(env.Surface, fmt.Sprintf("suggest payload: %v", err))
		return
	}

	records := sess.srv.gateway.Records(env.Surface)
	rec, found := tooltip.FindErrorAt(records, p.Offset)

	result := SuggestResult{
		Anchor: tooltip.ClampAnchor(p.Pointer, p.Width, p.Height, surf.Metrics().Viewport),
	}
	if found {
		text := []rune(surf.Text())
		problem := ""
		if rec.Span.Valid(len(text)) {
			problem = string(text[rec.Span.Start:rec.Span.End])
		}
		result.Found = true
		result.Kind = rec.Kind
		result.Start = rec.Span.Start
		result.End = rec.Span.End
		result.Suggestions = tooltip.Suggestions(rec, problem)
	}
	sess.send(Envelope{Type: MsgSuggestResult, Surface: env.Surface, Seq: env.Seq}, result)
}

func (sess *Session) handleApply(env Envelope) {
	ctl, ok := sess.srv.manager.Get(env.Surface)
	if !ok {
		sess.sendError(env.Surface, "unknown surface")
		return
	}
	var p ApplyPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		sess.sendError(env.Surface, fmt.Sprintf("apply payload: %v", err))
		return
	}

	rng := span.Span{Start: p.Start, End: p.End}
	var match bool
	for _, r := range sess.srv.gateway.Records(env.Surface) {
		if r.Span == rng {
			match = true
			break
		}
	}
	if !match {
		sess.sendError(env.Surface, "no flagged span at the requested offsets")
		return
	}

	// The splice itself runs on the surface's dispatcher, where it
	// serializes with in-flight input events; the dispatcher re-matches the
	// span against the live cache before touching the text.
	ctl.Deliver(controller.Event{
		Kind:  controller.EventApply,
		Apply: &controller.ApplyRequest{Span: rng, Replacement: p.Replacement},
	})
}

func (sess *Session) handleStatus(env Envelope) {
	sess.mu.Lock()
	n := len(sess.surfaces)
	sess.mu.Unlock()

	flags := sess.srv.settings.Flags()
	sess.send(Envelope{Type: MsgStatusResult, Seq: env.Seq}, StatusResult{
		Surfaces:      n,
		DebugBorder:   flags.DebugBorder,
		AutoCorrect:   flags.AutoCorrect,
		DebugMessages: flags.DebugMessages,
	})
}

func (sess *Session) lookup(id string) (surface.Surface, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	surf, ok := sess.surfaces[id]
	return surf, ok
}

// echoText reports an engine-side mutation (auto-correct, revert, suggestion
// apply) back to the host so it can update the real surface.
func (sess *Session) echoText(surfaceID string) surface.MutateFunc {
	return func(text string, caret int) {
		sess.send(Envelope{Type: MsgSetText, Surface: surfaceID}, SetTextPayload{Text: text, Caret: caret})
	}
}

func (sess *Session) sendError(surfaceID, msg string) {
	sess.send(Envelope{Type: MsgError, Surface: surfaceID}, ErrorPayload{Message: msg})
}

// send marshals payload into env and writes the frame. Writes are serialized;
// gorilla connections allow one concurrent writer.
func (sess *Session) send(env Envelope, payload any) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			sess.log.Error("marshal outbound payload", "type", env.Type, "error", err)
			return
		}
		env.Payload = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		sess.log.Error("marshal outbound envelope", "type", env.Type, "error", err)
		return
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	sess.conn.SetWriteDeadline(time.Now().Add(sess.srv.writeTimeout()))
	if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		sess.log.Warn("write to host failed", "type", env.Type, "error", err)
	}
}

// Create implements overlay.Sink.
func (sess *Session) Create(surfaceID string) error {
	sess.send(Envelope{Type: MsgOverlayCreate, Surface: surfaceID}, nil)
	return nil
}

// ApplyStyle implements overlay.Sink.
func (sess *Session) ApplyStyle(surfaceID string, st overlay.StyleState) error {
	sess.send(Envelope{Type: MsgOverlayStyle, Surface: surfaceID}, st)
	return nil
}

// SetMarkup implements overlay.Sink.
func (sess *Session) SetMarkup(surfaceID string, markup string) error {
	sess.send(Envelope{Type: MsgOverlayMarkup, Surface: surfaceID}, MarkupPayload{Markup: markup})
	return nil
}

// SetOutline implements overlay.Sink.
func (sess *Session) SetOutline(surfaceID string, on bool) error {
	sess.send(Envelope{Type: MsgOverlayOutline, Surface: surfaceID}, OutlinePayload{On: on})
	return nil
}
