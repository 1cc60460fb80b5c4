package vrinput

import "fmt"

// EventType enumerates the notifications an adapter or session emits.
type EventType uint8

const (
	EventAxesChanged EventType = iota
	EventDirectionPressBegan
	EventDirectionPressEnded
	EventButtonValueChanged
	EventTouchBegan
	EventTouchEnded
	EventPressBegan
	EventPressEnded
	EventHandChanged
	EventConnected
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventAxesChanged:
		return "axes changed"
	case EventDirectionPressBegan, EventPressBegan:
		return "press began"
	case EventDirectionPressEnded, EventPressEnded:
		return "press ended"
	case EventButtonValueChanged:
		return "value changed"
	case EventTouchBegan:
		return "touch began"
	case EventTouchEnded:
		return "touch ended"
	case EventHandChanged:
		return "hand changed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Direction is a digital press direction derived from thumbstick axes.
type Direction uint8

const (
	DirectionUp Direction = iota
	DirectionDown
	DirectionLeft
	DirectionRight
	directionCount
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	}
	return "unknown"
}

// PrimaryButton is the mirrored button name attached to every primary
// button notification.
const PrimaryButton = "primary"

// Event is one typed notification record. Fields beyond Type and Controller
// are populated per event kind: Axis/X/Y for axis changes, Axis/Direction
// for directional presses, Button/Value for button state, Hand for hand
// changes.
type Event struct {
	Type       EventType
	Controller *Controller
	Axis       string
	X, Y       float64
	Direction  Direction
	Button     string
	Value      float64
	Hand       Hand
}

func (e Event) String() string {
	switch e.Type {
	case EventAxesChanged:
		return fmt.Sprintf("%s axes changed", e.Axis)
	case EventDirectionPressBegan, EventDirectionPressEnded:
		return fmt.Sprintf("%s %s %s", e.Axis, e.Direction, e.Type)
	case EventButtonValueChanged, EventTouchBegan, EventTouchEnded, EventPressBegan, EventPressEnded:
		return fmt.Sprintf("%s %s", e.Button, e.Type)
	case EventHandChanged:
		return fmt.Sprintf("hand changed to %s", e.Hand)
	}
	return e.Type.String()
}

// Listener receives events synchronously, in emission order, on the
// goroutine that drives the tick.
type Listener func(Event)

type subscription struct {
	fn      Listener
	removed bool
}

// dispatcher is a synchronous ordered observer list. Unsubscribing during
// dispatch is allowed; the removed listener stops receiving after the
// current event.
type dispatcher struct {
	subs []*subscription
}

func (d *dispatcher) subscribe(fn Listener) func() {
	live := d.subs[:0]
	for _, sub := range d.subs {
		if !sub.removed {
			live = append(live, sub)
		}
	}
	sub := &subscription{fn: fn}
	d.subs = append(live, sub)
	return func() {
		sub.removed = true
	}
}

func (d *dispatcher) emit(ev Event) {
	// Listeners added during dispatch see the next event, not this one.
	n := len(d.subs)
	for i := 0; i < n; i++ {
		if sub := d.subs[i]; !sub.removed {
			sub.fn(ev)
		}
	}
}
