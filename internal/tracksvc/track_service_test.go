package tracksvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openmotion/vrio/vrinput"
	"github.com/openmotion/vrio/vrinput/vibedsl"
)

type fakeHost struct {
	mu    sync.Mutex
	slots []*vrinput.DeviceHandle
}

func (h *fakeHost) Devices() ([]*vrinput.DeviceHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*vrinput.DeviceHandle, len(h.slots))
	copy(out, h.slots)
	return out, true
}

func (h *fakeHost) set(slot int, handle *vrinput.DeviceHandle) {
	h.mu.Lock()
	h.slots[slot] = handle
	h.mu.Unlock()
}

func testHandle(id string) *vrinput.DeviceHandle {
	return &vrinput.DeviceHandle{
		ID:        id,
		Connected: true,
		Axes:      make([]float64, 2),
		Buttons:   make([]vrinput.RawButton, 4),
	}
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	options := badger.DefaultOptions(t.TempDir())
	options.Logger = nil
	db, err := badger.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func startService(t *testing.T, host vrinput.Host) (*Service, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(openTestDB(t), zap.NewNop(), time.Now,
		WithHost(host),
		WithTickInterval(time.Millisecond),
	)
	go func() {
		if err := s.Start(ctx); err != nil {
			t.Errorf("service failed: %v", err)
		}
	}()
	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("service did not become ready")
	}
	return s, ctx
}

func waitConnected(t *testing.T, s *Service, slot int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.IsConnected(slot) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("slot %d never connected", slot)
}

func TestConnectionLifecycle(t *testing.T) {
	host := &fakeHost{slots: []*vrinput.DeviceHandle{nil}}
	s, ctx := startService(t, host)

	events := s.Events(ctx)
	host.set(0, testHandle("OpenVR Controller"))
	waitConnected(t, s, 0)

	msg := <-events
	assert.Equal(t, KindConnected, msg.Key.Kind)
	assert.Equal(t, "connected", msg.Message.Kind)
	assert.Equal(t, "OpenVR Controller", msg.Message.Device)
	assert.Equal(t, "vive", msg.Message.Style)

	host.set(0, nil)
	for {
		msg = <-events
		if msg.Key.Kind == KindDisconnected {
			break
		}
	}
	assert.Equal(t, "disconnected", msg.Message.Kind)
	assert.False(t, s.IsConnected(0))
}

func TestInputEvents(t *testing.T) {
	handle := testHandle("OpenVR Controller")
	host := &fakeHost{slots: []*vrinput.DeviceHandle{handle}}
	s, ctx := startService(t, host)
	waitConnected(t, s, 0)

	events := s.Events(ctx, EventKey{Kind: KindInput, Slot: 0})

	pressed := testHandle("OpenVR Controller")
	pressed.Buttons[1] = vrinput.RawButton{Value: 1, Touched: true, Pressed: true}
	host.set(0, pressed)

	// The trigger press arrives as value, touch and press records, each
	// mirrored for the primary alias.
	var buttons []string
	deadline := time.After(5 * time.Second)
	for len(buttons) < 6 {
		select {
		case msg := <-events:
			buttons = append(buttons, msg.Message.Button)
		case <-deadline:
			t.Fatalf("timed out, got %v", buttons)
		}
	}
	assert.Equal(t, []string{"trigger", "primary", "trigger", "primary", "trigger", "primary"}, buttons)
}

func TestSnapshot(t *testing.T) {
	host := &fakeHost{slots: []*vrinput.DeviceHandle{testHandle("Oculus Touch (Right)")}}
	s, ctx := startService(t, host)
	waitConnected(t, s, 0)

	devices, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 0, devices[0].Slot)
	assert.Equal(t, "oculus-touch-right", devices[0].Style)
	require.Len(t, devices[0].Axes, 1)
	assert.Equal(t, "thumbstick", devices[0].Axes[0].Name)
}

func TestVibe(t *testing.T) {
	host := &fakeHost{slots: []*vrinput.DeviceHandle{testHandle("OpenVR Controller")}}
	s, ctx := startService(t, host)
	waitConnected(t, s, 0)

	pattern, err := vibedsl.Parse(`set(0.5)`)
	require.NoError(t, err)
	require.NoError(t, s.Vibe(ctx, 0, "", pattern))

	err = s.Vibe(ctx, 3, "", pattern)
	assert.ErrorContains(t, err, "no device at slot 3")
}

func TestDo(t *testing.T) {
	host := &fakeHost{slots: []*vrinput.DeviceHandle{nil}}
	s, ctx := startService(t, host)

	var ticksSeen uint64
	require.NoError(t, s.Do(ctx, func(session *vrinput.Session) {
		ticksSeen = session.Ticks()
	}))
	assert.LessOrEqual(t, ticksSeen, s.Ticks()+1)
}

func TestDeviceStore(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s := New(db, zap.NewNop(), func() time.Time { return now })

	c := vrinput.NewController(testHandle("OpenVR Controller"))
	require.NoError(t, s.persistDevice(c))

	dev, err := s.GetDevice("OpenVR Controller")
	require.NoError(t, err)
	assert.Equal(t, "vive", dev.Style)
	assert.Equal(t, 0, dev.DOF)
	assert.Equal(t, base, dev.FirstSeenAt)
	assert.Equal(t, base, dev.LastSeenAt)

	// Reconnecting later refreshes last-seen but keeps first-seen.
	now = base.Add(time.Hour)
	require.NoError(t, s.persistDevice(c))
	dev, err = s.GetDevice("OpenVR Controller")
	require.NoError(t, err)
	assert.Equal(t, base, dev.FirstSeenAt)
	assert.Equal(t, base.Add(time.Hour), dev.LastSeenAt)

	now = base.Add(2 * time.Hour)
	require.NoError(t, s.touchDevice("OpenVR Controller"))
	dev, _ = s.GetDevice("OpenVR Controller")
	assert.Equal(t, base.Add(2*time.Hour), dev.LastSeenAt)

	// Touching an unknown device is a silent no-op.
	require.NoError(t, s.touchDevice("Never Seen"))
	_, err = s.GetDevice("Never Seen")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	c2 := vrinput.NewController(testHandle("Xbox 360 Controller"))
	require.NoError(t, s.persistDevice(c2))
	devices, err := s.ListDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}
