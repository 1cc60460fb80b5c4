package vrinput

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/openmotion/vrio/vrinput/catalog"
	"github.com/openmotion/vrio/vrinput/math3"
)

// Default tunables. These are developer-set constants, not a configuration
// surface; options exist so tests can pin them.
const (
	DefaultDeadZone       = 0.2
	DefaultPressThreshold = 0.6
	DefaultPulseDuration  = 5000 * time.Millisecond
)

type controllerOptions struct {
	log            *zap.Logger
	catalog        *catalog.Catalog
	now            func() time.Time
	deadZone       float64
	pressThreshold float64
	pulseDuration  time.Duration
}

// ControllerOption adjusts adapter construction.
type ControllerOption func(*controllerOptions)

func WithLogger(log *zap.Logger) ControllerOption {
	return func(o *controllerOptions) { o.log = log }
}

func WithCatalog(c *catalog.Catalog) ControllerOption {
	return func(o *controllerOptions) { o.catalog = c }
}

func WithClock(now func() time.Time) ControllerOption {
	return func(o *controllerOptions) { o.now = now }
}

func WithDeadZone(threshold float64) ControllerOption {
	return func(o *controllerOptions) { o.deadZone = threshold }
}

func WithPressThreshold(threshold float64) ControllerOption {
	return func(o *controllerOptions) { o.pressThreshold = threshold }
}

func WithPulseDuration(d time.Duration) ControllerOption {
	return func(o *controllerOptions) { o.pulseDuration = d }
}

type axisPair struct {
	catalog.AxisPair
	// invertY normalizes Vive's thumbpad Y convention, which is opposite
	// to every other supported device.
	invertY      bool
	lastX, lastY float64
	pressed      [directionCount]bool
}

type namedButton struct {
	name    string
	index   int
	primary bool
	value   float64
	touched bool
	pressed bool
}

// ButtonState is a read-only snapshot of one named button.
type ButtonState struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Touched bool    `json:"touched"`
	Pressed bool    `json:"pressed"`
	Primary bool    `json:"primary"`
}

// AxisState is a read-only snapshot of one named axis pair.
type AxisState struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Controller adapts one raw device slot into named axes and buttons with
// change detection, haptic scheduling and spatial pose computation. It is
// owned by its registry slot and mutated only through its own methods; the
// whole model is single-threaded, driven by one external tick per frame.
type Controller struct {
	log     *zap.Logger
	opts    controllerOptions
	handle  *DeviceHandle
	now     func() time.Time
	name    string
	index   int
	style   catalog.Style
	schema  catalog.Schema
	hasDoc  bool
	dof     int
	hand    Hand
	axes    []*axisPair
	buttons []*namedButton

	channels     map[string]*vibeChannel
	channelOrder []string
	vibeTotal    float64
	lastPulse    float64
	lastPulseAt  time.Time
	pulsed       bool

	arm      *ArmModel
	hasPosed bool
	visible  bool

	position   math3.Vec3
	rotation   math3.Quat
	local      math3.Mat4
	world      math3.Mat4
	worldDirty bool
	standing   math3.Mat4
	head       HeadPoseSource

	events       dispatcher
	disconnected bool
	onDisconnect func(*Controller)
}

// NewController wraps a device handle. The schema is resolved through the
// capability catalog; handles with no match degrade to synthesized generic
// axis pairs and button names. Degrees of freedom are fixed here, from the
// handle's pose capability flags, for the adapter's entire lifetime.
func NewController(handle *DeviceHandle, opts ...ControllerOption) *Controller {
	options := controllerOptions{
		log:            zap.NewNop(),
		catalog:        catalog.Default(),
		now:            time.Now,
		deadZone:       DefaultDeadZone,
		pressThreshold: DefaultPressThreshold,
		pulseDuration:  DefaultPulseDuration,
	}
	for _, opt := range opts {
		opt(&options)
	}
	c := &Controller{
		log:      options.log,
		opts:     options,
		handle:   handle,
		now:      options.now,
		name:     handle.ID,
		index:    handle.Index,
		hand:     ParseHand(handle.Hand),
		channels: make(map[string]*vibeChannel),
		rotation: math3.QuatIdentity(),
		local:    math3.Mat4Identity(),
		world:    math3.Mat4Identity(),
		standing: math3.Mat4Identity(),
	}
	if schema, ok := options.catalog.Resolve(handle.ID); ok {
		c.schema = schema
		c.style = schema.Style
		c.hasDoc = true
	}
	c.dof = poseDOF(handle.Pose)
	c.buildAxes()
	c.buildButtons()
	c.selectChannel(DefaultVibeChannel)
	return c
}

func poseDOF(pose *RawPose) int {
	switch {
	case pose == nil:
		return 0
	case pose.HasPosition:
		return 6
	case pose.HasOrientation:
		return 3
	}
	return 0
}

func (c *Controller) buildAxes() {
	if c.hasDoc {
		for _, def := range c.schema.Axes {
			pair := &axisPair{
				AxisPair: def,
				invertY:  c.style == catalog.StyleVive && def.Name == "thumbpad",
			}
			pair.lastX, pair.lastY = c.readPair(pair)
			c.axes = append(c.axes, pair)
		}
		return
	}
	// No schema: synthesize one generic pair per two raw axis slots.
	// Odd leftover axes are not modeled.
	for i := 0; i+1 < len(c.handle.Axes); i += 2 {
		pair := &axisPair{
			AxisPair: catalog.AxisPair{
				Name:       fmt.Sprintf("axes_%d", i/2+1),
				X:          i,
				Y:          i + 1,
				Thumbstick: true,
			},
		}
		pair.lastX, pair.lastY = c.readPair(pair)
		c.axes = append(c.axes, pair)
	}
}

func (c *Controller) buildButtons() {
	for i, raw := range c.handle.Buttons {
		name := fmt.Sprintf("button_%d", i+1)
		if i < len(c.schema.Buttons) {
			name = c.schema.Buttons[i]
		}
		c.buttons = append(c.buttons, &namedButton{
			name:    name,
			index:   i,
			value:   raw.Value,
			touched: raw.Touched,
			pressed: raw.Pressed,
		})
	}
	c.resolvePrimary()
}

// resolvePrimary marks exactly one button as primary: the schema-declared
// name when present, otherwise the trigger position (index 1) on devices
// with more than one button, otherwise the first button.
func (c *Controller) resolvePrimary() {
	if len(c.buttons) == 0 {
		return
	}
	if c.schema.Primary != "" {
		for _, b := range c.buttons {
			if b.name == c.schema.Primary {
				b.primary = true
				return
			}
		}
	}
	if len(c.buttons) > 1 {
		c.buttons[1].primary = true
		return
	}
	c.buttons[0].primary = true
}

// Name returns the raw device identifier the adapter was built from.
func (c *Controller) Name() string { return c.name }

// Index returns the device's registry slot.
func (c *Controller) Index() int { return c.index }

// Style returns the catalog-resolved device family, or empty for
// unrecognized devices.
func (c *Controller) Style() catalog.Style { return c.style }

// DOF reports the tracking capability fixed at construction: 0, 3 or 6.
func (c *Controller) DOF() int { return c.dof }

// Hand returns the current hand classification.
func (c *Controller) Hand() Hand { return c.hand }

// Visible reports whether the device has delivered at least one valid pose.
func (c *Controller) Visible() bool { return c.visible }

// Handle returns the device handle currently backing the adapter.
func (c *Controller) Handle() *DeviceHandle { return c.handle }

// SetHandle swaps in the fresh per-tick view of the device. The session
// calls this before Update on every tick.
func (c *Controller) SetHandle(handle *DeviceHandle) {
	c.handle = handle
}

// SetStandingTransform injects the world-alignment correction applied on
// top of the local transform.
func (c *Controller) SetStandingTransform(m math3.Mat4) {
	c.standing = m
}

// SetHeadPoseSource injects the head pose provider the arm model needs.
// Required for 3-DOF devices.
func (c *Controller) SetHeadPoseSource(src HeadPoseSource) {
	c.head = src
}

// Subscribe attaches an observer for this adapter's notifications. Delivery
// is synchronous and ordered. The returned function detaches it.
func (c *Controller) Subscribe(fn Listener) func() {
	return c.events.subscribe(fn)
}

// LocalTransform returns the device-space transform derived on the last
// tick.
func (c *Controller) LocalTransform() math3.Mat4 { return c.local }

// WorldTransform returns the standing-transform-corrected transform.
func (c *Controller) WorldTransform() math3.Mat4 { return c.world }

// WorldDirty reports whether the world transform changed since the
// collaborator last cleared it.
func (c *Controller) WorldDirty() bool { return c.worldDirty }

// ClearWorldDirty acknowledges the current world transform.
func (c *Controller) ClearWorldDirty() { c.worldDirty = false }

// Position returns the last derived local position.
func (c *Controller) Position() math3.Vec3 { return c.position }

// Rotation returns the last adopted local rotation.
func (c *Controller) Rotation() math3.Quat { return c.rotation }

// Axes snapshots the named axis pairs in schema order.
func (c *Controller) Axes() []AxisState {
	out := make([]AxisState, len(c.axes))
	for i, p := range c.axes {
		out[i] = AxisState{Name: p.Name, X: p.lastX, Y: p.lastY}
	}
	return out
}

// Buttons snapshots the named buttons in raw index order.
func (c *Controller) Buttons() []ButtonState {
	out := make([]ButtonState, len(c.buttons))
	for i, b := range c.buttons {
		out[i] = ButtonState{
			Name:    b.name,
			Value:   b.value,
			Touched: b.touched,
			Pressed: b.pressed,
			Primary: b.primary,
		}
	}
	return out
}

// Update runs one tick: change detection, then pose computation, then
// haptic servicing. A disconnection detected in the pose step stops the
// tick immediately.
func (c *Controller) Update() {
	c.PollForChanges()
	if !c.updatePose() {
		return
	}
	c.RenderVibes()
	c.ApplyVibes()
}

// PollForChanges compares the handle's raw state against the last-seen
// named state and emits a notification for every difference. Comparisons
// are exact; identical polls emit nothing.
func (c *Controller) PollForChanges() {
	for _, pair := range c.axes {
		c.pollAxisPair(pair)
	}
	for _, b := range c.buttons {
		c.pollButton(b)
	}
	if hand := ParseHand(c.handle.Hand); hand != c.hand {
		c.hand = hand
		c.emit(Event{Type: EventHandChanged, Hand: hand})
	}
}

func (c *Controller) rawAxis(i int) float64 {
	if i < 0 || i >= len(c.handle.Axes) {
		return 0
	}
	return c.handle.Axes[i]
}

func (c *Controller) readPair(pair *axisPair) (float64, float64) {
	x, y := c.rawAxis(pair.X), c.rawAxis(pair.Y)
	if pair.Thumbstick {
		x, y = c.filterPair(x, y)
	}
	if pair.invertY {
		y = -y
	}
	return x, y
}

// filterPair applies the dead zone to a thumbstick pair as a unit: when
// both axes sit inside the threshold the pair is zeroed together, otherwise
// both raw values pass through. Filtering one axis independently of the
// other would snap diagonals onto the axes.
func (c *Controller) filterPair(x, y float64) (float64, float64) {
	if math.Abs(x) < c.opts.deadZone && math.Abs(y) < c.opts.deadZone {
		return 0, 0
	}
	return x, y
}

func (c *Controller) pollAxisPair(pair *axisPair) {
	x, y := c.readPair(pair)
	if x != pair.lastX || y != pair.lastY {
		pair.lastX, pair.lastY = x, y
		c.emit(Event{Type: EventAxesChanged, Axis: pair.Name, X: x, Y: y})
	}
	if pair.Thumbstick {
		c.pollDirections(pair)
	}
}

// pollDirections re-derives the four digital directional states from the
// raw unfiltered axis values. Down and right fire above +threshold, up and
// left below -threshold.
func (c *Controller) pollDirections(pair *axisPair) {
	rawX, rawY := c.rawAxis(pair.X), c.rawAxis(pair.Y)
	t := c.opts.pressThreshold
	c.pollDirection(pair, DirectionRight, rawX > t)
	c.pollDirection(pair, DirectionLeft, rawX < -t)
	c.pollDirection(pair, DirectionDown, rawY > t)
	c.pollDirection(pair, DirectionUp, rawY < -t)
}

func (c *Controller) pollDirection(pair *axisPair, dir Direction, pressed bool) {
	if pair.pressed[dir] == pressed {
		return
	}
	pair.pressed[dir] = pressed
	evType := EventDirectionPressEnded
	if pressed {
		evType = EventDirectionPressBegan
	}
	c.emit(Event{Type: evType, Axis: pair.Name, Direction: dir})
}

// pollButton compares value, touched and pressed independently; each
// difference emits its own notification, mirrored onto the primary alias
// for the primary button.
func (c *Controller) pollButton(b *namedButton) {
	var raw RawButton
	if b.index < len(c.handle.Buttons) {
		raw = c.handle.Buttons[b.index]
	}
	if raw.Value != b.value {
		b.value = raw.Value
		c.emitButton(b, Event{Type: EventButtonValueChanged, Value: raw.Value})
	}
	if raw.Touched != b.touched {
		b.touched = raw.Touched
		evType := EventTouchEnded
		if raw.Touched {
			evType = EventTouchBegan
		}
		c.emitButton(b, Event{Type: evType, Value: raw.Value})
	}
	if raw.Pressed != b.pressed {
		b.pressed = raw.Pressed
		evType := EventPressEnded
		if raw.Pressed {
			evType = EventPressBegan
		}
		c.emitButton(b, Event{Type: evType, Value: raw.Value})
	}
}

func (c *Controller) emitButton(b *namedButton, ev Event) {
	ev.Button = b.name
	c.emit(ev)
	if b.primary {
		ev.Button = PrimaryButton
		c.emit(ev)
	}
}

func (c *Controller) emit(ev Event) {
	ev.Controller = c
	c.events.emit(ev)
}

// updatePose derives the local and world transforms from the handle's raw
// pose. It reports false when the tick must stop because the device
// disconnected (pose entirely absent after having posed before).
func (c *Controller) updatePose() bool {
	pose := c.handle.Pose
	if pose == nil || (pose.Orientation == nil && pose.Position == nil) {
		if c.hasPosed {
			// Powered-off devices keep their slot occupied on some
			// hosts; a fully null pose is the only disconnect signal.
			c.Disconnect()
			return false
		}
		return true
	}
	if !c.hasPosed {
		c.hasPosed = true
		c.visible = true
	}
	if pose.Orientation != nil {
		c.rotation = *pose.Orientation
	}
	if pose.Position != nil {
		c.position = *pose.Position
		c.local = math3.Compose(c.position, c.rotation, 1)
	} else {
		c.updateArmPose()
	}
	c.world = c.standing.Mul(c.local)
	c.worldDirty = true
	return true
}

// updateArmPose runs the 3-DOF path: estimate the controller position from
// the head pose and the controller orientation. The arm model is built
// lazily, exactly once per adapter.
func (c *Controller) updateArmPose() {
	if c.arm == nil {
		c.arm = NewArmModel()
		c.log.Debug("arm model attached", zap.String("device", c.name))
	}
	if c.head != nil {
		headPos, headQ := c.head.HeadPose()
		c.arm.SetHeadPosition(headPos)
		c.arm.SetHeadOrientation(headQ)
	}
	c.arm.SetControllerOrientation(c.rotation)
	c.arm.Update(c.now())
	c.position = c.arm.Position()
	c.local = math3.Compose(c.position, c.arm.Orientation(), 1)
}

// Disconnect broadcasts the disconnected notification on the adapter and
// releases its registry slot. Safe to call from either disconnection path;
// only the first call has any effect.
func (c *Controller) Disconnect() {
	if c.disconnected {
		return
	}
	c.disconnected = true
	c.visible = false
	c.emit(Event{Type: EventDisconnected})
	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}
}
