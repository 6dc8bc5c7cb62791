// Package geom holds the small amount of 3D math the scene and snapping code share.
// Vectors are mgl64.Vec3 throughout; this package adds bounding boxes and a few helpers
// mgl64 does not provide.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// BoxAround returns the box centered at center with the given half extents.
// Negative extents are treated as their absolute value.
func BoxAround(center, extents mgl64.Vec3) AABB {
	e := Abs(extents)
	return AABB{Min: center.Sub(e), Max: center.Add(e)}
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half size of the box along each axis.
func (b AABB) Extents() mgl64.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// ClosestPoint clamps p into the box independently per axis.
func (b AABB) ClosestPoint(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		clamp(p[0], b.Min[0], b.Max[0]),
		clamp(p[1], b.Min[1], b.Max[1]),
		clamp(p[2], b.Min[2], b.Max[2]),
	}
}

// DistanceSquared is the squared distance from p to the closest point of the box.
// Points inside the box are at distance 0.
func (b AABB) DistanceSquared(p mgl64.Vec3) float64 {
	d := p.Sub(b.ClosestPoint(p))
	return d.Dot(d)
}

// Contains reports whether p lies inside or on the box.
func (b AABB) Contains(p mgl64.Vec3) bool {
	return b.DistanceSquared(p) == 0
}

// Translate returns the box moved by delta.
func (b AABB) Translate(delta mgl64.Vec3) AABB {
	return AABB{Min: b.Min.Add(delta), Max: b.Max.Add(delta)}
}

// Normalize returns v scaled to unit length, or the zero vector when v has no length.
// mgl64's Normalize divides by zero for the zero vector.
func Normalize(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l == 0 {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / l)
}

// Abs returns v with every component made non-negative.
func Abs(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2])}
}

// Near reports whether a and b are within tol of each other on every axis.
func Near(a, b mgl64.Vec3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
