// Package vrinput turns the raw per-frame state of gamepads and VR motion
// controllers into a stable, named, event-driven abstraction. A Session
// tracks device slots exposed by a polling Host, wraps each device in a
// Controller adapter with named axes, buttons, haptic channels and a spatial
// pose, and synthesizes full position data for orientation-only devices
// through a biomechanical arm model.
package vrinput

import (
	"time"

	"github.com/openmotion/vrio/vrinput/math3"
)

// Hand is the handedness a device reports. Devices may resolve their
// handedness after connection, so classification is mutable.
type Hand int

const (
	HandUnknown Hand = iota
	HandLeft
	HandRight
)

func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	}
	return "unknown"
}

// ParseHand maps a host hand hint onto a Hand. Anything unrecognized is
// HandUnknown.
func ParseHand(s string) Hand {
	switch s {
	case "left":
		return HandLeft
	case "right":
		return HandRight
	}
	return HandUnknown
}

// RawButton is the per-frame state of one hardware button.
type RawButton struct {
	Value   float64
	Touched bool
	Pressed bool
}

// RawPose is the tracking data a device reports for one frame. Orientation
// and Position are independently nullable; the Has flags describe the
// device's tracking capability, which may be broader than what the current
// frame carries.
type RawPose struct {
	HasOrientation bool
	HasPosition    bool
	Orientation    *math3.Quat
	Position       *math3.Vec3
}

// HapticActuator issues vibration commands to device hardware. Actuators
// auto-decay after the pulse duration elapses.
type HapticActuator interface {
	Pulse(intensity float64, duration time.Duration) error
}

// DeviceHandle is the read-only per-frame view of one device slot as
// reported by the host polling API.
type DeviceHandle struct {
	// ID is the raw identifier string, usually a product name plus
	// vendor-appended suffixes.
	ID string
	// Index is the slot the host reports the device under. It is stable
	// for the lifetime of the connection.
	Index     int
	Connected bool
	// Hand is the host's handedness hint ("left", "right" or empty).
	Hand    string
	Axes    []float64
	Buttons []RawButton
	// Pose is nil for devices without any tracking capability.
	Pose    *RawPose
	Haptics []HapticActuator
}

// Host is the polling input API the session enumerates once per tick.
type Host interface {
	// Devices returns the current device slots. Entries are nil for empty
	// slots. ok is false when the host has no polling capability, in
	// which case the session no-ops.
	Devices() (slots []*DeviceHandle, ok bool)
}

// HeadPoseSource supplies the head pose required by the arm model. The
// rendering collaborator injects one onto every 3-DOF adapter.
type HeadPoseSource interface {
	HeadPose() (math3.Vec3, math3.Quat)
}
