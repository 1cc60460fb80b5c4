// Package math3 provides the small amount of 3D math the tracking core
// needs: vectors, unit quaternions and 4x4 column-major transforms.
package math3

import "math"

// Vec3 is a 3-component vector.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// AngleTo returns the unsigned angle between v and o in radians.
func (v Vec3) AngleTo(o Vec3) float64 {
	denom := v.Length() * o.Length()
	if denom == 0 {
		return 0
	}
	return math.Acos(clamp(v.Dot(o)/denom, -1, 1))
}

// Quat is a rotation quaternion. The zero value is not a valid rotation,
// use QuatIdentity.
type Quat struct {
	X, Y, Z, W float64
}

func QuatIdentity() Quat {
	return Quat{0, 0, 0, 1}
}

// QuatFromAxisAngle builds a quaternion rotating angle radians around axis.
// The axis must be normalized.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	half := angle / 2
	s := math.Sin(half)
	return Quat{axis.X * s, axis.Y * s, axis.Z * s, math.Cos(half)}
}

// Mul returns the composition q*o (o applied first).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Inverse returns the inverse rotation. q must be a unit quaternion.
func (q Quat) Inverse() Quat {
	return Quat{-q.X, -q.Y, -q.Z, q.W}
}

func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if l == 0 {
		return QuatIdentity()
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	// t = 2 * cross(q.xyz, v)
	tx := 2 * (q.Y*v.Z - q.Z*v.Y)
	ty := 2 * (q.Z*v.X - q.X*v.Z)
	tz := 2 * (q.X*v.Y - q.Y*v.X)
	// v' = v + w*t + cross(q.xyz, t)
	return Vec3{
		X: v.X + q.W*tx + q.Y*tz - q.Z*ty,
		Y: v.Y + q.W*ty + q.Z*tx - q.X*tz,
		Z: v.Z + q.W*tz + q.X*ty - q.Y*tx,
	}
}

// Forward returns the -Z basis vector rotated by q.
func (q Quat) Forward() Vec3 {
	return q.Rotate(Vec3{0, 0, -1})
}

// AngleTo returns the rotation angle between q and o in radians, in [0, pi].
func (q Quat) AngleTo(o Quat) float64 {
	dot := q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
	return 2 * math.Acos(clamp(math.Abs(dot), 0, 1))
}

// Slerp spherically interpolates from q to o by t in [0, 1].
func (q Quat) Slerp(o Quat, t float64) Quat {
	if t <= 0 {
		return q
	}
	if t >= 1 {
		return o
	}
	dot := q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
	if dot < 0 {
		o = Quat{-o.X, -o.Y, -o.Z, -o.W}
		dot = -dot
	}
	if dot > 0.9995 {
		// Nearly parallel, fall back to nlerp.
		return Quat{
			q.X + (o.X-q.X)*t,
			q.Y + (o.Y-q.Y)*t,
			q.Z + (o.Z-q.Z)*t,
			q.W + (o.W-q.W)*t,
		}.Normalize()
	}
	theta0 := math.Acos(dot)
	theta := theta0 * t
	sinTheta0 := math.Sin(theta0)
	s0 := math.Cos(theta) - dot*math.Sin(theta)/sinTheta0
	s1 := math.Sin(theta) / sinTheta0
	return Quat{
		q.X*s0 + o.X*s1,
		q.Y*s0 + o.Y*s1,
		q.Z*s0 + o.Z*s1,
		q.W*s0 + o.W*s1,
	}
}

// Yaw extracts the rotation of q around the world Y axis, discarding pitch
// and roll. Rotations that point the forward vector straight up or down have
// no meaningful yaw and collapse to identity.
func (q Quat) Yaw() Quat {
	fwd := q.Forward()
	fwd.Y = 0
	if fwd.Length() < 1e-9 {
		return QuatIdentity()
	}
	yaw := math.Atan2(-fwd.X, -fwd.Z)
	return QuatFromAxisAngle(Vec3{0, 1, 0}, yaw)
}

// Pitch returns the elevation of the forward vector in radians, positive
// when the rotation points above the horizon.
func (q Quat) Pitch() float64 {
	fwd := q.Forward()
	return math.Asin(clamp(fwd.Y, -1, 1))
}

// Mat4 is a 4x4 column-major transform matrix.
type Mat4 [16]float64

func Mat4Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Compose builds a transform from translation, rotation and uniform scale.
func Compose(pos Vec3, q Quat, scale float64) Mat4 {
	x2, y2, z2 := q.X+q.X, q.Y+q.Y, q.Z+q.Z
	xx, xy, xz := q.X*x2, q.X*y2, q.X*z2
	yy, yz, zz := q.Y*y2, q.Y*z2, q.Z*z2
	wx, wy, wz := q.W*x2, q.W*y2, q.W*z2
	return Mat4{
		(1 - (yy + zz)) * scale, (xy + wz) * scale, (xz - wy) * scale, 0,
		(xy - wz) * scale, (1 - (xx + zz)) * scale, (yz + wx) * scale, 0,
		(xz + wy) * scale, (yz - wx) * scale, (1 - (xx + yy)) * scale, 0,
		pos.X, pos.Y, pos.Z, 1,
	}
}

// Mul returns m*o, applying o first.
func (m Mat4) Mul(o Mat4) Mat4 {
	var r Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * o[col*4+k]
			}
			r[col*4+row] = sum
		}
	}
	return r
}

// TransformPoint applies the transform to a point (w=1).
func (m Mat4) TransformPoint(v Vec3) Vec3 {
	return Vec3{
		X: m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12],
		Y: m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13],
		Z: m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14],
	}
}

// Position returns the translation column of the transform.
func (m Mat4) Position() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Clamp limits v to [min, max].
func Clamp(v, min, max float64) float64 {
	return clamp(v, min, max)
}

// Deg converts radians to degrees.
func Deg(rad float64) float64 {
	return rad * 180 / math.Pi
}
