package vrinput

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openmotion/vrio/vrinput/catalog"
)

type sessionOptions struct {
	log            *zap.Logger
	catalog        *catalog.Catalog
	now            func() time.Time
	controllerOpts []ControllerOption
}

// SessionOption adjusts session construction.
type SessionOption func(*sessionOptions)

func WithSessionLogger(log *zap.Logger) SessionOption {
	return func(o *sessionOptions) { o.log = log }
}

func WithSessionCatalog(c *catalog.Catalog) SessionOption {
	return func(o *sessionOptions) { o.catalog = c }
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(o *sessionOptions) { o.now = now }
}

func WithControllerOptions(opts ...ControllerOption) SessionOption {
	return func(o *sessionOptions) { o.controllerOpts = append(o.controllerOpts, opts...) }
}

// Session owns the registry of connected controller adapters and drives
// them from a host polling API. One session per application; nothing here
// is process-wide, so independent sessions coexist.
//
// The session is single-threaded: all discovery, adapter updates and event
// delivery happen inside Update, which an external caller invokes once per
// frame.
type Session struct {
	log         *zap.Logger
	host        Host
	opts        sessionOptions
	controllers map[int]*Controller
	events      dispatcher
	ticks       uint64
}

func NewSession(host Host, opts ...SessionOption) *Session {
	options := sessionOptions{
		log:     zap.NewNop(),
		catalog: catalog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Session{
		log:         options.log,
		host:        host,
		opts:        options,
		controllers: make(map[int]*Controller),
	}
}

// Subscribe attaches an observer for connection and disconnection events.
// Connected events fire before the new adapter's first Update; both carry
// the adapter. The returned function detaches the observer.
func (s *Session) Subscribe(fn Listener) func() {
	return s.events.subscribe(fn)
}

// Controller returns the adapter registered at a slot.
func (s *Session) Controller(slot int) (*Controller, bool) {
	c, ok := s.controllers[slot]
	return c, ok
}

// Controllers returns the registered adapters in slot order.
func (s *Session) Controllers() []*Controller {
	out := make([]*Controller, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// Ticks returns how many update passes have run.
func (s *Session) Ticks() uint64 { return s.ticks }

// Update runs one poll pass: enumerate the host's device slots, construct
// adapters for newly occupied slots, drive every adapter's update and
// detect disconnection.
//
// Slot-emptiness is only one of two disconnection triggers: a powered-off
// device may keep its slot occupied with stale data, in which case the
// adapter's own update detects the fully null pose. Both paths stay in
// place deliberately; hardware behavior differs by platform.
func (s *Session) Update() {
	slots, ok := s.host.Devices()
	if !ok {
		return
	}
	s.ticks++
	for i, handle := range slots {
		existing, registered := s.controllers[i]
		if handle == nil || !handle.Connected {
			if registered {
				existing.Disconnect()
			}
			continue
		}
		if !registered {
			s.connect(i, handle)
			continue
		}
		existing.SetHandle(handle)
		existing.Update()
	}
}

func (s *Session) connect(slot int, handle *DeviceHandle) {
	opts := append([]ControllerOption{
		WithLogger(s.log.Named("controller")),
		WithCatalog(s.opts.catalog),
		WithClock(s.opts.now),
	}, s.opts.controllerOpts...)
	c := NewController(handle, opts...)
	c.onDisconnect = func(c *Controller) {
		delete(s.controllers, slot)
		s.log.Info("device disconnected",
			zap.Int("slot", slot),
			zap.String("id", c.Name()),
		)
		s.events.emit(Event{Type: EventDisconnected, Controller: c})
	}
	s.controllers[slot] = c
	s.log.Info("device connected",
		zap.Int("slot", slot),
		zap.String("id", c.Name()),
		zap.String("style", string(c.Style())),
		zap.Int("dof", c.DOF()),
	)
	s.events.emit(Event{Type: EventConnected, Controller: c})
	c.Update()
}
