package keystone

import "math"

// Point is a 2D point in normalized [0,1] coordinates with the origin
// at the top-left. Corner points may leave [0,1] while the user drags
// them; mesh points are clamped to [-1,2] on mutation.
type Point struct {
	X, Y float64
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy float64) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Sub returns the vector p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Cross returns the z component of the 2D cross product p × q.
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Clamp returns p with both coordinates clamped to [lo, hi].
func (p Point) Clamp(lo, hi float64) Point {
	return Point{X: clamp(p.X, lo, hi), Y: clamp(p.Y, lo, hi)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Corner indices into the fixed-order corner array.
const (
	CornerTopLeft = iota
	CornerTopRight
	CornerBottomLeft
	CornerBottomRight
	NumCorners
)

// IdentityCorners returns the four corners of the unit rectangle in
// fixed order TL, TR, BL, BR. This is the reset/default geometry that
// yields the identity homography.
func IdentityCorners() [4]Point {
	return [4]Point{
		{0, 0}, // top-left
		{1, 0}, // top-right
		{0, 1}, // bottom-left
		{1, 1}, // bottom-right
	}
}

// InsideQuad reports whether p lies inside the quadrilateral described
// by the four corners, using four cross-product edge tests: p is inside
// when it sits on the same side of all four edges (all cross products
// positive or all negative). Points on an edge count as inside.
//
// The test assumes a convex, non-self-intersecting quad. For a crossed
// quad the edge signs can never agree, so no point classifies as
// inside; backends therefore produce a fully transparent frame rather
// than undefined output while the user drags corners through a
// self-intersecting configuration.
func InsideQuad(corners [4]Point, p Point) bool {
	// Walk the perimeter TL → TR → BR → BL.
	tl, tr := corners[CornerTopLeft], corners[CornerTopRight]
	bl, br := corners[CornerBottomLeft], corners[CornerBottomRight]

	d0 := tr.Sub(tl).Cross(p.Sub(tl))
	d1 := br.Sub(tr).Cross(p.Sub(tr))
	d2 := bl.Sub(br).Cross(p.Sub(br))
	d3 := tl.Sub(bl).Cross(p.Sub(bl))

	neg := d0 < 0 || d1 < 0 || d2 < 0 || d3 < 0
	pos := d0 > 0 || d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}

// QuadIsConvex reports whether the four corners describe a convex,
// non-self-intersecting quadrilateral. The correction stays
// mathematically defined either way; this is a hint for UI layers that
// want to warn the user mid-adjustment.
func QuadIsConvex(corners [4]Point) bool {
	tl, tr := corners[CornerTopLeft], corners[CornerTopRight]
	bl, br := corners[CornerBottomLeft], corners[CornerBottomRight]

	d0 := tr.Sub(tl).Cross(br.Sub(tr))
	d1 := br.Sub(tr).Cross(bl.Sub(br))
	d2 := bl.Sub(br).Cross(tl.Sub(bl))
	d3 := tl.Sub(bl).Cross(tr.Sub(tl))

	neg := d0 < 0 || d1 < 0 || d2 < 0 || d3 < 0
	pos := d0 > 0 || d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}
