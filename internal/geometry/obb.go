// Package geometry provides the small amount of 3D math the picker needs:
// points, rotations and oriented bounding boxes used as gathering areas.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBox is returned by Obb.Validate for degenerate boxes.
var ErrInvalidBox = errors.New("geometry: invalid oriented bounding box")

// Vec3 is a point or direction in world space (meters).
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

// Quat is a rotation quaternion. The zero value is treated as identity.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat returns the no-op rotation.
func IdentityQuat() Quat { return Quat{W: 1} }

// QuatFromAxisAngle builds a rotation of angle radians about axis.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	n := math.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if n == 0 {
		return IdentityQuat()
	}
	s := math.Sin(angle/2) / n
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math.Cos(angle / 2)}
}

func (q Quat) normalized() Quat {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return IdentityQuat()
	}
	return Quat{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quat) Conjugate() Quat { return Quat{-q.X, -q.Y, -q.Z, q.W} }

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	q = q.normalized()
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Obb is an oriented bounding box: a box of HalfExtents centred on Center
// and rotated by Rotation.
type Obb struct {
	Center      Vec3
	HalfExtents Vec3
	Rotation    Quat
}

// NewAxisAlignedObb returns an Obb with identity rotation.
func NewAxisAlignedObb(center, halfExtents Vec3) Obb {
	return Obb{Center: center, HalfExtents: halfExtents, Rotation: IdentityQuat()}
}

// IsZero reports whether the box was never set.
func (b Obb) IsZero() bool {
	return b.HalfExtents == (Vec3{}) && b.Center == (Vec3{})
}

// Validate checks that every half extent is strictly positive and finite.
func (b Obb) Validate() error {
	for _, e := range []float64{b.HalfExtents.X, b.HalfExtents.Y, b.HalfExtents.Z} {
		if !(e > 0) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: half extents %s must be positive", ErrInvalidBox, b.HalfExtents)
		}
	}
	return nil
}

// Contains reports whether p lies inside or on the surface of the box.
func (b Obb) Contains(p Vec3) bool {
	local := b.Rotation.Conjugate().Rotate(p.Sub(b.Center))
	return math.Abs(local.X) <= b.HalfExtents.X+epsilon &&
		math.Abs(local.Y) <= b.HalfExtents.Y+epsilon &&
		math.Abs(local.Z) <= b.HalfExtents.Z+epsilon
}

func (b Obb) String() string {
	return fmt.Sprintf("obb{center=%s half=%s}", b.Center, b.HalfExtents)
}

const epsilon = 1e-9
