// Package hub serves the tracking event stream over WebSocket. Every
// connected client receives a full device snapshot on attach, then a
// live feed of connection and input records. Clients can also submit
// vibration patterns for any slot.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lxzan/gws"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/openmotion/vrio/internal/tracksvc"
	"github.com/openmotion/vrio/vrinput/vibedsl"
)

// PresetLookup resolves a named haptic preset to a compiled pattern.
type PresetLookup func(name string) (vibedsl.Pattern, bool)

type options struct {
	addr    string
	path    string
	presets PresetLookup
}

type Option func(*options)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *options) { o.addr = addr }
}

// WithPath sets the WebSocket endpoint path.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithPresets lets vibe requests address configured patterns by name.
func WithPresets(lookup PresetLookup) Option {
	return func(o *options) { o.presets = lookup }
}

var defaultOptions = options{
	addr: "127.0.0.1:8675",
	path: "/ws",
}

type Service struct {
	log     *zap.Logger
	track   *tracksvc.Service
	options options
	ready   chan struct{}

	clients  *xsync.MapOf[*gws.Conn, struct{}]
	upgrader *gws.Upgrader
	seq      *atomic.Int64
}

func New(log *zap.Logger, track *tracksvc.Service, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	s := &Service{
		log:     log.Named("hub"),
		track:   track,
		options: options,
		ready:   make(chan struct{}),
		clients: xsync.NewMapOf[*gws.Conn, struct{}](),
		seq:     atomic.NewInt64(0),
	}
	s.upgrader = gws.NewUpgrader(&handler{s: s}, &gws.ServerOption{
		ParallelEnabled: true,
		Recovery:        gws.Recovery,
	})
	return s
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.track.Ready():
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.options.path, func(w http.ResponseWriter, r *http.Request) {
		socket, err := s.upgrader.Upgrade(w, r)
		if err != nil {
			s.log.Error("failed to upgrade connection", zap.Error(err))
			return
		}
		go socket.ReadLoop()
	})

	listener, err := net.Listen("tcp", s.options.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.addr, err)
	}
	server := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Hub started", zap.String("addr", s.options.addr), zap.String("path", s.options.path))
	close(s.ready)

	go s.broadcastLoop(ctx)

	err = server.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Service) broadcastLoop(ctx context.Context) {
	events := s.track.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			record := msg.Message
			s.broadcast(newEventMessage(s.seq.Inc(), &record))
		}
	}
}

func (s *Service) broadcast(msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to marshal hub message", zap.Error(err))
		return
	}
	broadcaster := gws.NewBroadcaster(gws.OpcodeText, data)
	defer broadcaster.Close()
	s.clients.Range(func(socket *gws.Conn, _ struct{}) bool {
		if err := broadcaster.Broadcast(socket); err != nil {
			s.log.Debug("failed to broadcast to client", zap.Error(err))
		}
		return true
	})
}

func (s *Service) sendSnapshot(socket *gws.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	devices, err := s.track.Snapshot(ctx)
	if err != nil {
		s.log.Error("failed to read device snapshot", zap.Error(err))
		return
	}
	data, err := json.Marshal(newSnapshotMessage(s.seq.Inc(), devices))
	if err != nil {
		s.log.Error("failed to marshal snapshot", zap.Error(err))
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, data); err != nil {
		s.log.Debug("failed to send snapshot", zap.Error(err))
	}
}

type handler struct {
	gws.BuiltinEventHandler
	s *Service
}

func (h *handler) OnOpen(socket *gws.Conn) {
	h.s.clients.Store(socket, struct{}{})
	h.s.log.Debug("client connected", zap.String("addr", socket.RemoteAddr().String()))
	h.s.sendSnapshot(socket)
}

func (h *handler) OnClose(socket *gws.Conn, err error) {
	h.s.clients.Delete(socket)
	h.s.log.Debug("client disconnected", zap.String("addr", socket.RemoteAddr().String()))
}

func (h *handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	var msg ClientMessage
	if err := json.Unmarshal(message.Bytes(), &msg); err != nil {
		h.s.log.Debug("failed to parse client message", zap.Error(err))
		return
	}
	switch msg.Type {
	case "snapshot":
		h.s.sendSnapshot(socket)
	case "vibe":
		h.handleVibe(socket, msg)
	default:
		h.s.log.Debug("unknown client message", zap.String("type", msg.Type))
	}
}

func (h *handler) handleVibe(socket *gws.Conn, msg ClientMessage) {
	pattern, err := h.resolvePattern(msg)
	if err != nil {
		h.reply(socket, newErrorMessage(err.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.s.track.Vibe(ctx, msg.Slot, msg.Channel, pattern); err != nil {
		h.reply(socket, newErrorMessage(fmt.Sprintf("failed to vibrate slot %d: %v", msg.Slot, err)))
		return
	}
	h.reply(socket, newVibeAcceptedMessage(msg.Slot, pattern.Duration()))
}

func (h *handler) resolvePattern(msg ClientMessage) (vibedsl.Pattern, error) {
	if msg.Preset != "" {
		if h.s.options.presets == nil {
			return vibedsl.Pattern{}, fmt.Errorf("no presets configured")
		}
		pattern, ok := h.s.options.presets(msg.Preset)
		if !ok {
			return vibedsl.Pattern{}, fmt.Errorf("unknown preset: %s", msg.Preset)
		}
		return pattern, nil
	}
	pattern, err := vibedsl.Parse(msg.Pattern)
	if err != nil {
		return vibedsl.Pattern{}, fmt.Errorf("invalid vibration pattern: %w", err)
	}
	return pattern, nil
}

func (h *handler) reply(socket *gws.Conn, msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.s.log.Error("failed to marshal reply", zap.Error(err))
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, data); err != nil {
		h.s.log.Debug("failed to send reply", zap.Error(err))
	}
}
