package math3

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestVec3(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -1, Y: 0.5, Z: 2}

	assert.Equal(t, Vec3{X: 0, Y: 2.5, Z: 5}, a.Add(b))
	assert.Equal(t, Vec3{X: 2, Y: 1.5, Z: 1}, a.Sub(b))
	assert.Equal(t, Vec3{X: 2, Y: 4, Z: 6}, a.Scale(2))
	assert.InDelta(t, 6, a.Dot(b), epsilon)
	assert.InDelta(t, math.Sqrt(14), a.Length(), epsilon)
}

func TestQuatRotate(t *testing.T) {
	type testCase struct {
		name     string
		q        Quat
		v        Vec3
		expected Vec3
	}
	testCases := []testCase{
		{
			name:     "identity",
			q:        QuatIdentity(),
			v:        Vec3{X: 1, Y: 2, Z: 3},
			expected: Vec3{X: 1, Y: 2, Z: 3},
		},
		{
			name:     "quarter turn around Y",
			q:        QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2),
			v:        Vec3{X: 1},
			expected: Vec3{Z: -1},
		},
		{
			name:     "half turn around Z",
			q:        QuatFromAxisAngle(Vec3{Z: 1}, math.Pi),
			v:        Vec3{X: 1, Y: 1},
			expected: Vec3{X: -1, Y: -1},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.q.Rotate(tc.v)
			assert.InDelta(t, tc.expected.X, got.X, epsilon)
			assert.InDelta(t, tc.expected.Y, got.Y, epsilon)
			assert.InDelta(t, tc.expected.Z, got.Z, epsilon)
		})
	}
}

func TestQuatInverseRoundTrip(t *testing.T) {
	axis := Vec3{X: 0.3, Y: 0.9, Z: -0.1}
	axis = axis.Scale(1 / axis.Length())
	q := QuatFromAxisAngle(axis, 1.2)
	v := Vec3{X: 0.5, Y: -2, Z: 1}
	got := q.Inverse().Rotate(q.Rotate(v))
	assert.InDelta(t, v.X, got.X, epsilon)
	assert.InDelta(t, v.Y, got.Y, epsilon)
	assert.InDelta(t, v.Z, got.Z, epsilon)
}

func TestQuatYawPitch(t *testing.T) {
	// A pure yaw rotation is its own yaw component and carries no pitch.
	yawed := QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/3)
	assert.InDelta(t, 0, yawed.Yaw().AngleTo(yawed), 1e-6)
	assert.InDelta(t, 0, yawed.Pitch(), 1e-6)

	pitched := QuatFromAxisAngle(Vec3{X: 1}, math.Pi/6)
	assert.InDelta(t, 0, pitched.Yaw().AngleTo(QuatIdentity()), 1e-6)
	assert.InDelta(t, math.Pi/6, pitched.Pitch(), 1e-6)
}

func TestQuatSlerp(t *testing.T) {
	a := QuatIdentity()
	b := QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2)

	start := a.Slerp(b, 0)
	assert.InDelta(t, 0, start.AngleTo(a), 1e-6)

	end := a.Slerp(b, 1)
	assert.InDelta(t, 0, end.AngleTo(b), 1e-6)

	mid := a.Slerp(b, 0.5)
	assert.InDelta(t, math.Pi/4, mid.AngleTo(a), 1e-6)
	assert.InDelta(t, math.Pi/4, mid.AngleTo(b), 1e-6)
}

func TestQuatForward(t *testing.T) {
	fwd := QuatIdentity().Forward()
	assert.InDelta(t, 0, fwd.X, epsilon)
	assert.InDelta(t, 0, fwd.Y, epsilon)
	assert.InDelta(t, -1, fwd.Z, epsilon)

	turned := QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2).Forward()
	assert.InDelta(t, -1, turned.X, epsilon)
	assert.InDelta(t, 0, turned.Z, epsilon)
}

func TestMat4Compose(t *testing.T) {
	pos := Vec3{X: 1, Y: 2, Z: 3}
	m := Compose(pos, QuatIdentity(), 1)
	assert.Equal(t, pos, m.Position())

	origin := m.TransformPoint(Vec3{})
	assert.InDelta(t, 1, origin.X, epsilon)
	assert.InDelta(t, 2, origin.Y, epsilon)
	assert.InDelta(t, 3, origin.Z, epsilon)
}

func TestMat4Mul(t *testing.T) {
	translate := Compose(Vec3{X: 2}, QuatIdentity(), 1)
	rotate := Compose(Vec3{}, QuatFromAxisAngle(Vec3{Y: 1}, math.Pi/2), 1)

	// Premultiplying the translation applies it after the rotation.
	combined := translate.Mul(rotate)
	got := combined.TransformPoint(Vec3{X: 1})
	assert.InDelta(t, 2, got.X, epsilon)
	assert.InDelta(t, 0, got.Y, epsilon)
	assert.InDelta(t, -1, got.Z, epsilon)
}

func TestMat4Identity(t *testing.T) {
	v := Vec3{X: 4, Y: -5, Z: 6}
	got := Mat4Identity().TransformPoint(v)
	require.Equal(t, v, got)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
	assert.Equal(t, 0.0, Clamp(-2, 0, 1))
	assert.Equal(t, 1.0, Clamp(7, 0, 1))
}
