package vrinput

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/vrio/vrinput/math3"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type pulse struct {
	intensity float64
	duration  time.Duration
}

type fakeActuator struct {
	pulses []pulse
}

func (a *fakeActuator) Pulse(intensity float64, duration time.Duration) error {
	a.pulses = append(a.pulses, pulse{intensity: intensity, duration: duration})
	return nil
}

type fixedHead struct {
	pos math3.Vec3
	q   math3.Quat
}

func (h fixedHead) HeadPose() (math3.Vec3, math3.Quat) {
	return h.pos, h.q
}

func testHandle(id string, axes, buttons int) *DeviceHandle {
	return &DeviceHandle{
		ID:        id,
		Connected: true,
		Axes:      make([]float64, axes),
		Buttons:   make([]RawButton, buttons),
	}
}

func collect(c *Controller) *[]Event {
	var events []Event
	c.Subscribe(func(ev Event) {
		events = append(events, ev)
	})
	return &events
}

func ofType(events []Event, t EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestControllerSchema(t *testing.T) {
	c := NewController(testHandle("OpenVR Controller S/N 1234", 2, 4))

	assert.Equal(t, "OpenVR Controller S/N 1234", c.Name())
	assert.Equal(t, "vive", string(c.Style()))
	assert.Equal(t, 0, c.DOF())

	axes := c.Axes()
	require.Len(t, axes, 1)
	assert.Equal(t, "thumbpad", axes[0].Name)

	buttons := c.Buttons()
	require.Len(t, buttons, 4)
	assert.Equal(t, "thumbpad", buttons[0].Name)
	assert.Equal(t, "trigger", buttons[1].Name)
	assert.Equal(t, "grip", buttons[2].Name)
	assert.Equal(t, "menu", buttons[3].Name)
	assert.True(t, buttons[1].Primary)
}

func TestControllerGenericSchema(t *testing.T) {
	// Unrecognized devices synthesize one pair per two axes; the odd
	// leftover axis is not modeled.
	c := NewController(testHandle("Mystery Pad 3000", 5, 3))

	assert.Empty(t, string(c.Style()))
	axes := c.Axes()
	require.Len(t, axes, 2)
	assert.Equal(t, "axes_1", axes[0].Name)
	assert.Equal(t, "axes_2", axes[1].Name)

	buttons := c.Buttons()
	require.Len(t, buttons, 3)
	assert.Equal(t, "button_1", buttons[0].Name)
	assert.Equal(t, "button_3", buttons[2].Name)
	assert.True(t, buttons[1].Primary)
}

func TestExactlyOnePrimary(t *testing.T) {
	type testCase struct {
		name    string
		handle  *DeviceHandle
		primary string
	}
	testCases := []testCase{
		{name: "schema primary", handle: testHandle("OpenVR Controller", 2, 4), primary: "trigger"},
		{name: "xbox", handle: testHandle("Xbox 360 Controller", 4, 11), primary: "a"},
		{name: "generic multi", handle: testHandle("Mystery Pad", 2, 3), primary: "button_2"},
		{name: "generic single", handle: testHandle("Mystery Clicker", 0, 1), primary: "button_1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(tc.handle)
			var primaries []string
			for _, b := range c.Buttons() {
				if b.Primary {
					primaries = append(primaries, b.Name)
				}
			}
			require.Len(t, primaries, 1)
			assert.Equal(t, tc.primary, primaries[0])
		})
	}
}

func TestDeadZonePair(t *testing.T) {
	handle := testHandle("Mystery Pad", 2, 0)
	c := NewController(handle)
	events := collect(c)

	// Both axes inside the dead zone: the pair reads as centered.
	handle.Axes[0], handle.Axes[1] = 0.1, 0.15
	c.PollForChanges()
	assert.Empty(t, ofType(*events, EventAxesChanged))

	// One axis outside: both raw values pass through, including the
	// small one. Filtering per axis would snap diagonals onto the axes.
	handle.Axes[0], handle.Axes[1] = 0.1, 0.5
	c.PollForChanges()
	changed := ofType(*events, EventAxesChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "axes_1", changed[0].Axis)
	assert.Equal(t, 0.1, changed[0].X)
	assert.Equal(t, 0.5, changed[0].Y)
}

func TestExactChangeDetection(t *testing.T) {
	handle := testHandle("Mystery Pad", 2, 1)
	c := NewController(handle)
	events := collect(c)

	handle.Axes[0] = 0.5
	c.PollForChanges()
	require.Len(t, *events, 1)

	// Identical polls emit nothing.
	c.PollForChanges()
	c.PollForChanges()
	assert.Len(t, *events, 1)
}

func TestViveThumbpadInversion(t *testing.T) {
	vive := testHandle("OpenVR Controller", 2, 4)
	c := NewController(vive)
	events := collect(c)

	vive.Axes[0], vive.Axes[1] = 0.3, 0.7
	c.PollForChanges()
	changed := ofType(*events, EventAxesChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, 0.3, changed[0].X)
	assert.Equal(t, -0.7, changed[0].Y)

	// Every other style keeps the host's Y convention.
	oculus := testHandle("Oculus Touch (Right)", 2, 5)
	c2 := NewController(oculus)
	events2 := collect(c2)
	oculus.Axes[0], oculus.Axes[1] = 0.3, 0.7
	c2.PollForChanges()
	changed2 := ofType(*events2, EventAxesChanged)
	require.Len(t, changed2, 1)
	assert.Equal(t, 0.7, changed2[0].Y)
}

func TestDirectionalPresses(t *testing.T) {
	handle := testHandle("Mystery Pad", 2, 0)
	c := NewController(handle)
	events := collect(c)

	// Exactly at the threshold is not a press.
	handle.Axes[0] = 0.6
	c.PollForChanges()
	assert.Empty(t, ofType(*events, EventDirectionPressBegan))

	handle.Axes[0] = 0.61
	c.PollForChanges()
	began := ofType(*events, EventDirectionPressBegan)
	require.Len(t, began, 1)
	assert.Equal(t, DirectionRight, began[0].Direction)
	assert.Equal(t, "axes_1", began[0].Axis)

	// Negative Y is up.
	handle.Axes[1] = -0.7
	c.PollForChanges()
	began = ofType(*events, EventDirectionPressBegan)
	require.Len(t, began, 2)
	assert.Equal(t, DirectionUp, began[1].Direction)

	handle.Axes[0], handle.Axes[1] = 0, 0
	c.PollForChanges()
	ended := ofType(*events, EventDirectionPressEnded)
	assert.Len(t, ended, 2)
}

func TestPrimaryMirroring(t *testing.T) {
	handle := testHandle("OpenVR Controller", 2, 4)
	c := NewController(handle)
	events := collect(c)

	handle.Buttons[1] = RawButton{Value: 1, Touched: true, Pressed: true}
	c.PollForChanges()

	presses := ofType(*events, EventPressBegan)
	require.Len(t, presses, 2)
	assert.Equal(t, "trigger", presses[0].Button)
	assert.Equal(t, PrimaryButton, presses[1].Button)

	// Non-primary buttons are not mirrored.
	handle.Buttons[2] = RawButton{Value: 1, Touched: true, Pressed: true}
	c.PollForChanges()
	presses = ofType(*events, EventPressBegan)
	require.Len(t, presses, 3)
	assert.Equal(t, "grip", presses[2].Button)
}

func TestButtonIndependentChanges(t *testing.T) {
	handle := testHandle("Mystery Pad", 0, 2)
	c := NewController(handle)
	events := collect(c)

	// Touch without press emits only value and touch notifications.
	handle.Buttons[0] = RawButton{Value: 0.2, Touched: true}
	c.PollForChanges()
	assert.Len(t, ofType(*events, EventButtonValueChanged), 1)
	assert.Len(t, ofType(*events, EventTouchBegan), 1)
	assert.Empty(t, ofType(*events, EventPressBegan))

	handle.Buttons[0] = RawButton{}
	c.PollForChanges()
	assert.Len(t, ofType(*events, EventTouchEnded), 1)
}

func TestHandChange(t *testing.T) {
	handle := testHandle("Oculus Touch (Left)", 2, 5)
	c := NewController(handle)
	events := collect(c)
	assert.Equal(t, HandUnknown, c.Hand())

	handle.Hand = "left"
	c.PollForChanges()
	changed := ofType(*events, EventHandChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, HandLeft, changed[0].Hand)
	assert.Equal(t, HandLeft, c.Hand())
}

func TestPoseDOF(t *testing.T) {
	type testCase struct {
		name     string
		pose     *RawPose
		expected int
	}
	testCases := []testCase{
		{name: "no pose", pose: nil, expected: 0},
		{name: "orientation only", pose: &RawPose{HasOrientation: true}, expected: 3},
		{name: "full tracking", pose: &RawPose{HasOrientation: true, HasPosition: true}, expected: 6},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handle := testHandle("Mystery Pad", 0, 0)
			handle.Pose = tc.pose
			assert.Equal(t, tc.expected, NewController(handle).DOF())
		})
	}
}

func TestSixDofPose(t *testing.T) {
	handle := testHandle("Oculus Touch (Right)", 2, 5)
	q := math3.QuatIdentity()
	p := math3.Vec3{X: 0.2, Y: 1.1, Z: -0.4}
	handle.Pose = &RawPose{HasOrientation: true, HasPosition: true, Orientation: &q, Position: &p}

	c := NewController(handle)
	c.SetStandingTransform(math3.Compose(math3.Vec3{Y: 1.6}, math3.QuatIdentity(), 1))
	assert.False(t, c.Visible())

	c.Update()
	assert.True(t, c.Visible())
	assert.Equal(t, p, c.Position())
	assert.Equal(t, p, c.LocalTransform().Position())

	world := c.WorldTransform().Position()
	assert.InDelta(t, 0.2, world.X, 1e-9)
	assert.InDelta(t, 2.7, world.Y, 1e-9)
	assert.InDelta(t, -0.4, world.Z, 1e-9)

	assert.True(t, c.WorldDirty())
	c.ClearWorldDirty()
	assert.False(t, c.WorldDirty())
}

func TestNullPoseDisconnect(t *testing.T) {
	handle := testHandle("Oculus Touch (Right)", 2, 5)
	q := math3.QuatIdentity()
	p := math3.Vec3{Y: 1.1}
	handle.Pose = &RawPose{HasOrientation: true, HasPosition: true, Orientation: &q, Position: &p}

	c := NewController(handle)
	events := collect(c)
	c.Update()
	require.True(t, c.Visible())

	// Powered-off devices keep the slot occupied with a fully null pose.
	handle.Pose.Orientation = nil
	handle.Pose.Position = nil
	c.Update()
	assert.False(t, c.Visible())
	require.Len(t, ofType(*events, EventDisconnected), 1)

	// Further updates must not emit again.
	c.Update()
	assert.Len(t, ofType(*events, EventDisconnected), 1)
}

func TestNeverPosedNoDisconnect(t *testing.T) {
	handle := testHandle("Mystery Pad", 2, 1)
	c := NewController(handle)
	events := collect(c)

	c.Update()
	c.Update()
	assert.Empty(t, ofType(*events, EventDisconnected))
	assert.False(t, c.Visible())
}

func TestArmModelPose(t *testing.T) {
	clock := newFakeClock()
	build := func() *Controller {
		handle := testHandle("Daydream Controller", 2, 1)
		q := math3.QuatFromAxisAngle(math3.Vec3{X: 1}, -0.3)
		handle.Pose = &RawPose{HasOrientation: true, Orientation: &q}
		c := NewController(handle, WithClock(clock.Now))
		c.SetHeadPoseSource(fixedHead{pos: math3.Vec3{Y: 1.7}, q: math3.QuatIdentity()})
		return c
	}

	a := build()
	b := build()
	for i := 0; i < 5; i++ {
		a.Update()
		b.Update()
		clock.Advance(16 * time.Millisecond)
	}

	// The synthesized hand sits below the head and in front of the body.
	pos := a.Position()
	assert.Less(t, pos.Y, 1.7)
	assert.Greater(t, pos.Y, 0.5)
	assert.Less(t, pos.Z, 0.0)

	// Same inputs, same output: the model is deterministic.
	assert.Equal(t, a.Position(), b.Position())
	assert.Equal(t, a.Rotation(), b.Rotation())
	assert.True(t, a.Visible())
}

func TestVibeSchedule(t *testing.T) {
	clock := newFakeClock()
	c := NewController(testHandle("Mystery Pad", 0, 0), WithClock(clock.Now))

	c.SetVibe(DefaultVibeChannel).Set(0.5).Wait(100 * time.Millisecond).Set(0)
	assert.Equal(t, 0.5, c.RenderVibes())

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 0.5, c.RenderVibes())

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 0.0, c.RenderVibes())
}

func TestVibeAggregateClamp(t *testing.T) {
	c := NewController(testHandle("Mystery Pad", 0, 0))

	c.SetVibe("left").Set(0.6)
	c.SetVibe("right").Set(0.7)
	assert.Equal(t, 1.0, c.RenderVibes())
	assert.Equal(t, 1.0, c.VibeIntensity())

	c.SetVibe("right").Set(0.1)
	assert.InDelta(t, 0.7, c.RenderVibes(), 1e-9)
}

func TestVibeReselectClearsQueue(t *testing.T) {
	clock := newFakeClock()
	c := NewController(testHandle("Mystery Pad", 0, 0), WithClock(clock.Now))

	c.SetVibe("alert").Set(0.4).Wait(time.Second).Set(1)
	assert.Equal(t, 0.4, c.RenderVibes())

	// Reselecting drops the pending ramp but keeps the current intensity.
	c.SetVibe("alert")
	clock.Advance(2 * time.Second)
	assert.Equal(t, 0.4, c.RenderVibes())
}

func TestVibeConvenience(t *testing.T) {
	c := NewController(testHandle("Mystery Pad", 0, 0))
	c.Vibe(0.3)
	assert.InDelta(t, 0.3, c.RenderVibes(), 1e-9)
}

func TestApplyVibes(t *testing.T) {
	clock := newFakeClock()
	actuator := &fakeActuator{}
	handle := testHandle("Mystery Pad", 0, 0)
	handle.Haptics = []HapticActuator{actuator}
	c := NewController(handle, WithClock(clock.Now), WithPulseDuration(100*time.Millisecond))

	// Nothing scheduled, nothing pulsed.
	c.RenderVibes()
	c.ApplyVibes()
	assert.Empty(t, actuator.pulses)

	c.Vibe(0.5)
	c.RenderVibes()
	c.ApplyVibes()
	require.Len(t, actuator.pulses, 1)
	assert.Equal(t, pulse{intensity: 0.5, duration: 100 * time.Millisecond}, actuator.pulses[0])

	// Unchanged intensity within half the pulse duration: no re-command.
	c.RenderVibes()
	c.ApplyVibes()
	assert.Len(t, actuator.pulses, 1)

	// Past half the duration the actuator is about to decay, so the same
	// intensity is re-commanded.
	clock.Advance(51 * time.Millisecond)
	c.RenderVibes()
	c.ApplyVibes()
	require.Len(t, actuator.pulses, 2)
	assert.Equal(t, 0.5, actuator.pulses[1].intensity)

	c.SetVibe(DefaultVibeChannel).Set(0)
	c.RenderVibes()
	c.ApplyVibes()
	require.Len(t, actuator.pulses, 3)
	assert.Equal(t, 0.0, actuator.pulses[2].intensity)
}

func TestApplyVibesNoActuators(t *testing.T) {
	c := NewController(testHandle("Mystery Pad", 0, 0))
	c.Vibe(1)
	c.RenderVibes()
	c.ApplyVibes()
	assert.Equal(t, 1.0, c.VibeIntensity())
}
