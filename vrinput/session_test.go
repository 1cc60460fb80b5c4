package vrinput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/vrio/vrinput/math3"
)

type fakeHost struct {
	slots []*DeviceHandle
	ok    bool
}

func (h *fakeHost) Devices() ([]*DeviceHandle, bool) {
	return h.slots, h.ok
}

func TestSessionConnect(t *testing.T) {
	host := &fakeHost{
		slots: []*DeviceHandle{testHandle("OpenVR Controller", 2, 4), nil},
		ok:    true,
	}
	s := NewSession(host)
	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	s.Update()
	assert.Equal(t, uint64(1), s.Ticks())

	c, ok := s.Controller(0)
	require.True(t, ok)
	assert.Equal(t, "vive", string(c.Style()))
	_, ok = s.Controller(1)
	assert.False(t, ok)

	require.Len(t, events, 1)
	assert.Equal(t, EventConnected, events[0].Type)
	assert.Same(t, c, events[0].Controller)
	assert.Len(t, s.Controllers(), 1)
}

func TestSessionHostUnavailable(t *testing.T) {
	s := NewSession(&fakeHost{ok: false})
	s.Update()
	s.Update()
	assert.Equal(t, uint64(0), s.Ticks())
	assert.Empty(t, s.Controllers())
}

func TestSessionConnectedBeforeFirstUpdate(t *testing.T) {
	handle := testHandle("Oculus Touch (Right)", 2, 5)
	q := math3.QuatIdentity()
	p := math3.Vec3{Y: 1.1}
	handle.Pose = &RawPose{HasOrientation: true, HasPosition: true, Orientation: &q, Position: &p}
	host := &fakeHost{slots: []*DeviceHandle{handle}, ok: true}

	s := NewSession(host)
	var visibleAtConnect bool
	s.Subscribe(func(ev Event) {
		if ev.Type == EventConnected {
			visibleAtConnect = ev.Controller.Visible()
		}
	})

	s.Update()
	// The connected notification fires before the adapter's first tick,
	// so observers see the device pre-pose.
	assert.False(t, visibleAtConnect)
	c, _ := s.Controller(0)
	assert.True(t, c.Visible())
}

func TestSessionSlotEmptyDisconnect(t *testing.T) {
	host := &fakeHost{
		slots: []*DeviceHandle{testHandle("OpenVR Controller", 2, 4)},
		ok:    true,
	}
	s := NewSession(host)
	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	s.Update()
	require.Len(t, s.Controllers(), 1)

	host.slots[0] = nil
	s.Update()
	assert.Empty(t, s.Controllers())
	require.Len(t, events, 2)
	assert.Equal(t, EventDisconnected, events[1].Type)

	// An empty slot stays quiet on subsequent ticks.
	s.Update()
	assert.Len(t, events, 2)
}

func TestSessionNullPoseDisconnect(t *testing.T) {
	handle := testHandle("Oculus Touch (Left)", 2, 5)
	q := math3.QuatIdentity()
	p := math3.Vec3{Y: 1.2}
	handle.Pose = &RawPose{HasOrientation: true, HasPosition: true, Orientation: &q, Position: &p}
	host := &fakeHost{slots: []*DeviceHandle{handle}, ok: true}

	s := NewSession(host)
	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	s.Update()
	require.Len(t, s.Controllers(), 1)

	// The slot stays occupied but the pose goes fully null.
	handle.Pose.Orientation = nil
	handle.Pose.Position = nil
	s.Update()
	assert.Empty(t, s.Controllers())
	require.Len(t, events, 2)
	assert.Equal(t, EventDisconnected, events[1].Type)
}

func TestSessionReconnect(t *testing.T) {
	host := &fakeHost{
		slots: []*DeviceHandle{testHandle("Xbox 360 Controller", 4, 11)},
		ok:    true,
	}
	s := NewSession(host)

	s.Update()
	first, _ := s.Controller(0)

	host.slots[0] = nil
	s.Update()

	host.slots[0] = testHandle("Xbox 360 Controller", 4, 11)
	s.Update()
	second, ok := s.Controller(0)
	require.True(t, ok)
	assert.NotSame(t, first, second)
}

func TestSessionUpdatesExisting(t *testing.T) {
	handle := testHandle("Xbox 360 Controller", 4, 11)
	host := &fakeHost{slots: []*DeviceHandle{handle}, ok: true}
	s := NewSession(host)

	var buttonEvents []Event
	s.Update()
	c, _ := s.Controller(0)
	c.Subscribe(func(ev Event) {
		if ev.Type == EventPressBegan {
			buttonEvents = append(buttonEvents, ev)
		}
	})

	// Hosts hand out a fresh handle each poll; the session swaps it in.
	next := testHandle("Xbox 360 Controller", 4, 11)
	next.Buttons[0] = RawButton{Value: 1, Pressed: true}
	host.slots[0] = next
	s.Update()

	require.Len(t, buttonEvents, 2)
	assert.Equal(t, "a", buttonEvents[0].Button)
	assert.Equal(t, PrimaryButton, buttonEvents[1].Button)
	assert.Same(t, next, c.Handle())
}
