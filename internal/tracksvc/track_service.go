// Package tracksvc hosts a vrinput session: it drives the poll loop from a
// frame ticker, persists metadata about every device it has ever seen and
// fans tracking events out to asynchronous consumers.
package tracksvc

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/openmotion/vrio/pkg/bus"
	"github.com/openmotion/vrio/vrinput"
	"github.com/openmotion/vrio/vrinput/catalog"
	"github.com/openmotion/vrio/vrinput/vibedsl"
)

type (
	// EventKind distinguishes connection lifecycle records from input
	// change records on the bus.
	EventKind uint8

	// EventKey routes bus subscriptions per slot and kind.
	EventKey struct {
		Kind EventKind
		Slot int
	}

	EventBus       = bus.Bus[EventKey, TrackEvent]
	EventPublisher = bus.Publisher[TrackEvent]
)

const (
	KindConnected EventKind = iota
	KindDisconnected
	KindInput
)

// TrackEvent is the wire-safe record published for every session event.
// It carries plain values only; adapter pointers never cross the bus.
type TrackEvent struct {
	Kind      string  `json:"kind"`
	Slot      int     `json:"slot"`
	Device    string  `json:"device,omitempty"`
	Style     string  `json:"style,omitempty"`
	Hand      string  `json:"hand,omitempty"`
	DOF       int     `json:"dof,omitempty"`
	Axis      string  `json:"axis,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Button    string  `json:"button,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// DeviceSnapshot is the full named state of one adapter, served to newly
// attached consumers.
type DeviceSnapshot struct {
	Slot    int                   `json:"slot"`
	Device  string                `json:"device"`
	Style   string                `json:"style"`
	Hand    string                `json:"hand"`
	DOF     int                   `json:"dof"`
	Visible bool                  `json:"visible"`
	Axes    []vrinput.AxisState   `json:"axes"`
	Buttons []vrinput.ButtonState `json:"buttons"`
}

var defaultOptions = serviceOptions{
	tickInterval: 16 * time.Millisecond,
}

type serviceOptions struct {
	host         vrinput.Host
	catalog      *catalog.Catalog
	tickInterval time.Duration
}

type Option func(*serviceOptions)

// WithHost sets the polling backend the session enumerates.
func WithHost(host vrinput.Host) Option {
	return func(o *serviceOptions) { o.host = host }
}

// WithCatalog overrides the built-in capability catalog, e.g. after alias
// doc registration.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *serviceOptions) { o.catalog = c }
}

// WithTickInterval sets the frame interval of the internal ticker.
func WithTickInterval(d time.Duration) Option {
	return func(o *serviceOptions) { o.tickInterval = d }
}

type Service struct {
	log     *zap.Logger
	db      *badger.DB
	options serviceOptions
	now     func() time.Time
	ready   chan struct{}

	session  *vrinput.Session
	eventBus *EventBus

	connected *xsync.MapOf[int, string]
	cmds      chan func(*vrinput.Session)
	ticks     *atomic.Uint64
}

func New(db *badger.DB, log *zap.Logger, now func() time.Time, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.catalog == nil {
		options.catalog = catalog.Default()
	}
	s := &Service{
		log:       log,
		db:        db,
		options:   options,
		now:       now,
		ready:     make(chan struct{}),
		eventBus:  bus.NewBus[EventKey, TrackEvent](log),
		connected: xsync.NewMapOf[int, string](),
		cmds:      make(chan func(*vrinput.Session), 16),
		ticks:     atomic.NewUint64(0),
	}
	s.session = vrinput.NewSession(options.host,
		vrinput.WithSessionLogger(log.Named("session")),
		vrinput.WithSessionCatalog(options.catalog),
		vrinput.WithSessionClock(now),
	)
	return s
}

// Start runs the tick loop until ctx is cancelled. All session access
// happens on this goroutine; external callers go through Do.
func (s *Service) Start(ctx context.Context) error {
	if s.options.host == nil {
		return fmt.Errorf("no host backend configured")
	}
	if err := s.eventBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.eventBus.Ready():
	}

	unsubscribe := s.session.Subscribe(func(ev vrinput.Event) {
		s.handleSessionEvent(ctx, ev)
	})
	defer unsubscribe()

	close(s.ready)
	s.log.Info("Track service started",
		zap.Duration("tickInterval", s.options.tickInterval))

	ticker := time.NewTicker(s.options.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.session.Update()
			s.ticks.Inc()
		case cmd := <-s.cmds:
			cmd(s.session)
		}
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// SetTickInterval overrides the frame interval. Only valid before Start,
// for settings that are loaded after the service is constructed.
func (s *Service) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.options.tickInterval = d
	}
}

// Ticks returns the number of completed update passes.
func (s *Service) Ticks() uint64 {
	return s.ticks.Load()
}

// Do schedules fn onto the tick goroutine, where touching the session and
// its adapters is safe. It blocks until the function ran or ctx ended.
func (s *Service) Do(ctx context.Context, fn func(session *vrinput.Session)) error {
	done := make(chan struct{})
	wrapped := func(session *vrinput.Session) {
		defer close(done)
		fn(session)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.cmds <- wrapped:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Events subscribes to the outbound event bus. Without keys the channel
// receives every record.
func (s *Service) Events(ctx context.Context, keys ...EventKey) <-chan bus.Message[EventKey, TrackEvent] {
	return s.eventBus.Subscribe(ctx, keys...)
}

// Snapshot captures the state of all registered adapters.
func (s *Service) Snapshot(ctx context.Context) ([]DeviceSnapshot, error) {
	var out []DeviceSnapshot
	err := s.Do(ctx, func(session *vrinput.Session) {
		for _, c := range session.Controllers() {
			out = append(out, snapshotController(c))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session: %w", err)
	}
	return out, nil
}

func snapshotController(c *vrinput.Controller) DeviceSnapshot {
	return DeviceSnapshot{
		Slot:    c.Index(),
		Device:  c.Name(),
		Style:   string(c.Style()),
		Hand:    c.Hand().String(),
		DOF:     c.DOF(),
		Visible: c.Visible(),
		Axes:    c.Axes(),
		Buttons: c.Buttons(),
	}
}

// Vibe schedules a haptic pattern on a channel of the adapter at slot.
func (s *Service) Vibe(ctx context.Context, slot int, channel string, pattern vibedsl.Pattern) error {
	var vibeErr error
	err := s.Do(ctx, func(session *vrinput.Session) {
		c, ok := session.Controller(slot)
		if !ok {
			vibeErr = fmt.Errorf("no device at slot %d", slot)
			return
		}
		pattern.Apply(c.SetVibe(channel))
	})
	if err != nil {
		return err
	}
	return vibeErr
}

func (s *Service) handleSessionEvent(ctx context.Context, ev vrinput.Event) {
	c := ev.Controller
	switch ev.Type {
	case vrinput.EventConnected:
		s.connected.Store(c.Index(), c.Name())
		if err := s.persistDevice(c); err != nil {
			s.log.Error("failed to persist device", zap.Error(err))
		}
		c.Subscribe(func(ev vrinput.Event) {
			s.handleControllerEvent(ctx, ev)
		})
		s.eventBus.Publish(ctx, EventKey{Kind: KindConnected, Slot: c.Index()}, TrackEvent{
			Kind:   "connected",
			Slot:   c.Index(),
			Device: c.Name(),
			Style:  string(c.Style()),
			Hand:   c.Hand().String(),
			DOF:    c.DOF(),
		})
	case vrinput.EventDisconnected:
		s.connected.Delete(c.Index())
		if err := s.touchDevice(c.Name()); err != nil {
			s.log.Error("failed to update device record", zap.Error(err))
		}
		s.eventBus.Publish(ctx, EventKey{Kind: KindDisconnected, Slot: c.Index()}, TrackEvent{
			Kind:   "disconnected",
			Slot:   c.Index(),
			Device: c.Name(),
		})
	}
}

func (s *Service) handleControllerEvent(ctx context.Context, ev vrinput.Event) {
	if ev.Type == vrinput.EventDisconnected {
		// Forwarded separately through the session observer.
		return
	}
	c := ev.Controller
	record := TrackEvent{
		Kind:   ev.String(),
		Slot:   c.Index(),
		Device: c.Name(),
	}
	switch ev.Type {
	case vrinput.EventAxesChanged:
		record.Axis = ev.Axis
		record.X, record.Y = ev.X, ev.Y
	case vrinput.EventDirectionPressBegan, vrinput.EventDirectionPressEnded:
		record.Axis = ev.Axis
		record.Direction = ev.Direction.String()
	case vrinput.EventButtonValueChanged, vrinput.EventTouchBegan, vrinput.EventTouchEnded,
		vrinput.EventPressBegan, vrinput.EventPressEnded:
		record.Button = ev.Button
		record.Value = ev.Value
	case vrinput.EventHandChanged:
		record.Hand = ev.Hand.String()
	}
	s.eventBus.Publish(ctx, EventKey{Kind: KindInput, Slot: c.Index()}, record)
}

// IsConnected reports whether a device currently occupies the slot.
func (s *Service) IsConnected(slot int) bool {
	_, ok := s.connected.Load(slot)
	return ok
}
