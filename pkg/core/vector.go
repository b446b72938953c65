// pkg/core/vector.go
package core

import "math"

// Vec3 is a point or direction in the local frame.
// +X east, +Y up, -Z north (forward/away at session start).
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

func (v Vec3) LenSq() float64 {
	return v.Dot(v)
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.LenSq())
}

// Normalize returns the unit vector, or the zero vector for zero length input.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	inv := 1.0 / l
	return Vec3{v.X * inv, v.Y * inv, v.Z * inv}
}

// Flat drops the vertical component.
func (v Vec3) Flat() Vec3 {
	return Vec3{X: v.X, Z: v.Z}
}

// Distance is the euclidean distance between two points.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Len()
}

// PlanarDistance is the distance between two points ignoring height.
func PlanarDistance(a, b Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// AngleBetween returns the angle in radians between two directions.
// Zero-length input yields Pi so it never passes a cone test.
func AngleBetween(a, b Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return math.Pi
	}
	c := a.Dot(b) / (la * lb)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// Heading returns the compass heading of a direction in the horizontal plane,
// clockwise from north (-Z), normalized to [0, 2π).
func Heading(v Vec3) float64 {
	return NormalizeAngle(math.Atan2(v.X, -v.Z))
}

// NormalizeAngle wraps radians into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

// Quat is a unit rotation quaternion
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// QuatYaw rotates around +Y.
func QuatYaw(angle float64) Quat {
	s, c := math.Sincos(angle / 2)
	return Quat{Y: s, W: c}
}

// Mul composes rotations: the result applies o first, then q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	p := Quat{X: v.X, Y: v.Y, Z: v.Z}
	inv := Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
	r := q.Mul(p).Mul(inv)
	return Vec3{r.X, r.Y, r.Z}
}
