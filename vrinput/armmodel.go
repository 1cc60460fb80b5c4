package vrinput

import (
	"math"
	"time"

	"github.com/openmotion/vrio/vrinput/math3"
)

// Arm geometry. These values model an average arm holding a controller at
// the hip and must not drift: the estimated hand position is only plausible
// because every supported runtime uses the same numbers.
var (
	headElbowOffset       = math3.Vec3{X: 0.155, Y: -0.465, Z: -0.15}
	elbowWristOffset      = math3.Vec3{X: 0, Y: 0, Z: -0.25}
	wristControllerOffset = math3.Vec3{X: 0, Y: 0, Z: 0.05}
	armExtensionOffset    = math3.Vec3{X: -0.08, Y: 0.14, Z: 0.08}
)

const (
	// elbowBendRatio splits rotation 40/60 between elbow and wrist.
	elbowBendRatio       = 0.4
	extensionRatioWeight = 0.4
	// minAngularSpeed gates torso-follow: above ~35 degrees/second the
	// user is assumed to be rotating their torso.
	minAngularSpeed = 0.61 // radians per second
	// Controller pitch range over which the arm extends as the user
	// raises the controller to look at it.
	minExtensionAngleDeg = 11.0
	maxExtensionAngleDeg = 50.0
)

// ArmModel estimates a full controller pose for devices that only track
// orientation. It is a deterministic function of the head pose, the
// controller orientation history and elapsed time; the only state carried
// between updates is the previous tick's values.
type ArmModel struct {
	headPos         math3.Vec3
	headQ           math3.Quat
	controllerQ     math3.Quat
	lastControllerQ math3.Quat

	rootQ    math3.Quat
	elbowPos math3.Vec3
	elbowQ   math3.Quat
	wristPos math3.Vec3
	wristQ   math3.Quat

	pos         math3.Vec3
	orientation math3.Quat

	lastUpdate time.Time
	hasUpdated bool
}

func NewArmModel() *ArmModel {
	return &ArmModel{
		headQ:           math3.QuatIdentity(),
		controllerQ:     math3.QuatIdentity(),
		lastControllerQ: math3.QuatIdentity(),
		rootQ:           math3.QuatIdentity(),
		elbowQ:          math3.QuatIdentity(),
		wristQ:          math3.QuatIdentity(),
		orientation:     math3.QuatIdentity(),
	}
}

func (a *ArmModel) SetHeadPosition(pos math3.Vec3) {
	a.headPos = pos
}

func (a *ArmModel) SetHeadOrientation(q math3.Quat) {
	a.headQ = q
}

func (a *ArmModel) SetControllerOrientation(q math3.Quat) {
	a.controllerQ = q
}

// Position returns the estimated controller position from the last update.
func (a *ArmModel) Position() math3.Vec3 { return a.pos }

// Orientation returns the output orientation, which is the raw controller
// orientation unmodified.
func (a *ArmModel) Orientation() math3.Quat { return a.orientation }

// Update recomputes the estimated pose from the current inputs.
func (a *ArmModel) Update(now time.Time) {
	dt := 0.0
	if a.hasUpdated {
		dt = now.Sub(a.lastUpdate).Seconds()
	}

	// The torso is assumed to follow head yaw only. While the controller
	// swings fast the user is probably rotating their whole torso, so the
	// root eases toward head yaw instead of snapping.
	headYawQ := a.headQ.Yaw()
	angleDelta := a.lastControllerQ.Forward().AngleTo(a.controllerQ.Forward())
	if dt > 0 && angleDelta/dt > minAngularSpeed {
		a.rootQ = a.rootQ.Slerp(headYawQ, angleDelta/10)
	} else {
		a.rootQ = headYawQ
	}

	// Raising the controller to look at it extends the arm.
	pitchDeg := math3.Deg(a.controllerQ.Pitch())
	extension := math3.Clamp(
		(pitchDeg-minExtensionAngleDeg)/(maxExtensionAngleDeg-minExtensionAngleDeg), 0, 1)

	controllerCameraQ := a.rootQ.Inverse().Mul(a.controllerQ)

	a.elbowPos = a.headPos.
		Add(headElbowOffset).
		Add(armExtensionOffset.Scale(extension))

	// Split the camera-space controller rotation between elbow and wrist.
	// Large total swings suppress the blend nonlinearity.
	totalAngleDeg := math3.Deg(controllerCameraQ.AngleTo(math3.QuatIdentity()))
	lerpSuppression := 1 - math.Pow(totalAngleDeg/180, 4)
	lerpValue := lerpSuppression *
		(elbowBendRatio + (1-elbowBendRatio)*extension*extensionRatioWeight)
	a.wristQ = math3.QuatIdentity().Slerp(controllerCameraQ, lerpValue)
	a.elbowQ = controllerCameraQ.Mul(a.wristQ.Inverse())

	// Compose the forearm and wrist offsets through the joint rotations
	// and the root rotation to land on the wrist in world space.
	arm := a.elbowQ.Rotate(elbowWristOffset.Add(a.wristQ.Rotate(wristControllerOffset)))
	a.wristPos = a.elbowPos.
		Add(a.rootQ.Rotate(arm)).
		Add(armExtensionOffset.Scale(extension))

	a.pos = a.wristPos
	a.orientation = a.controllerQ

	a.lastControllerQ = a.controllerQ
	a.lastUpdate = now
	a.hasUpdated = true
}
