package keystone

import "math"

// Matrix3 is a row-major 3×3 projective transform. Throughout this
// package it holds the inverse (destination → source) mapping: applying
// it to a destination point in normalized coordinates yields the source
// point to sample. See SolveHomography.
type Matrix3 [9]float64

// Identity3 returns the 3×3 identity matrix.
func Identity3() Matrix3 {
	return Matrix3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// IsFinite reports whether every entry is a finite number. A non-finite
// matrix means the corner geometry is degenerate (three or more corners
// collinear); callers must treat it as "correction unavailable for this
// frame" rather than an error.
func (m Matrix3) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsIdentity reports whether m is exactly the identity matrix.
func (m Matrix3) IsIdentity() bool {
	return m == Identity3()
}

// Apply transforms the point (x, y) through the projective map,
// performing the homogeneous divide. A vanishing denominator yields
// non-finite output, which downstream sampling rejects.
func (m Matrix3) Apply(x, y float64) (float64, float64) {
	w := m[6]*x + m[7]*y + m[8]
	sx := (m[0]*x + m[1]*y + m[2]) / w
	sy := (m[3]*x + m[4]*y + m[5]) / w
	return sx, sy
}

// singularDetEpsilon is the determinant magnitude below which a matrix
// counts as singular. Elimination residue can leave a degenerate
// system with a tiny but non-zero determinant; inverting through it
// would produce a huge, finite, meaningless matrix instead of the
// detectable non-finite one the contract promises.
const singularDetEpsilon = 1e-12

// Invert returns the inverse via the closed-form adjugate/determinant
// formula. A singular or near-singular input produces non-finite
// entries instead of an error, preserving the solver's "detect, don't
// raise" contract.
func (m Matrix3) Invert() Matrix3 {
	a00, a01, a02 := m[0], m[1], m[2]
	a10, a11, a12 := m[3], m[4], m[5]
	a20, a21, a22 := m[6], m[7], m[8]

	c00 := a11*a22 - a12*a21
	c01 := a12*a20 - a10*a22
	c02 := a10*a21 - a11*a20

	det := a00*c00 + a01*c01 + a02*c02
	if math.Abs(det) < singularDetEpsilon {
		det = 0 // force ±Inf/NaN entries below
	}

	return Matrix3{
		c00 / det, (a02*a21 - a01*a22) / det, (a01*a12 - a02*a11) / det,
		c01 / det, (a00*a22 - a02*a20) / det, (a02*a10 - a00*a12) / det,
		c02 / det, (a01*a20 - a00*a21) / det, (a00*a11 - a01*a10) / det,
	}
}

// SolveHomography computes the projective transform for the given
// destination corners and returns the destination → source mapping.
//
// The corners are the images of the unit-square source corners (0,0),
// (1,0), (0,1), (1,1) in fixed order TL, TR, BL, BR. The forward
// homography is found by building the standard 8-equation DLT system
// (the ninth homogeneous parameter fixed to 1), solving it by Gaussian
// elimination with partial pivoting, and assembling the 3×3 matrix.
// Backends consume the inverse mapping, so the forward matrix is then
// inverted with the closed-form 3×3 formula before being returned.
//
// Degenerate input (three or more corners collinear) yields non-finite
// entries. The solver itself never fails; check Matrix3.IsFinite on the
// result.
func SolveHomography(corners [4]Point) Matrix3 {
	src := IdentityCorners()

	// Rows 2i, 2i+1 constrain the image of source corner i:
	//   x' = (h0 X + h1 Y + h2) / (h6 X + h7 Y + 1)
	//   y' = (h3 X + h4 Y + h5) / (h6 X + h7 Y + 1)
	var a [8][8]float64
	var b [8]float64
	for i := 0; i < 4; i++ {
		sx, sy := src[i].X, src[i].Y
		dx, dy := corners[i].X, corners[i].Y
		r := 2 * i
		a[r] = [8]float64{sx, sy, 1, 0, 0, 0, -sx * dx, -sy * dx}
		b[r] = dx
		a[r+1] = [8]float64{0, 0, 0, sx, sy, 1, -sx * dy, -sy * dy}
		b[r+1] = dy
	}

	h, ok := solveLinear8(a, b)
	if !ok {
		// Singular system: report "no correction available" through the
		// same non-finite channel as a degenerate inversion.
		nan := math.NaN()
		return Matrix3{nan, nan, nan, nan, nan, nan, nan, nan, nan}
	}

	forward := Matrix3{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}
	return forward.Invert()
}

// solveLinear8 solves the 8×8 system a·x = b by Gaussian elimination
// with partial pivoting and back-substitution. Returns ok=false when a
// pivot column is entirely zero.
func solveLinear8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	for col := 0; col < 8; col++ {
		// Partial pivoting: bring the largest-magnitude entry up.
		pivot := col
		maxAbs := math.Abs(a[col][col])
		for r := col + 1; r < 8; r++ {
			if abs := math.Abs(a[r][col]); abs > maxAbs {
				maxAbs = abs
				pivot = r
			}
		}
		if maxAbs == 0 {
			return [8]float64{}, false
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}

		for r := col + 1; r < 8; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			a[r][col] = 0
			for c := col + 1; c < 8; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	var x [8]float64
	for r := 7; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < 8; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, true
}
