package keystone

import (
	"math"
	"testing"
)

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// verifyRoundTrip checks that the destination → source matrix maps each
// destination corner back to the corresponding unit-square source
// corner within tolerance.
func verifyRoundTrip(t *testing.T, corners [4]Point, epsilon float64) {
	t.Helper()

	m := SolveHomography(corners)
	if !m.IsFinite() {
		t.Fatalf("SolveHomography(%v) produced non-finite matrix %v", corners, m)
	}

	src := IdentityCorners()
	for i := range corners {
		sx, sy := m.Apply(corners[i].X, corners[i].Y)
		if !almostEqual(sx, src[i].X, epsilon) || !almostEqual(sy, src[i].Y, epsilon) {
			t.Errorf("corner %d: inverse maps (%v,%v) to (%v,%v), want (%v,%v)",
				i, corners[i].X, corners[i].Y, sx, sy, src[i].X, src[i].Y)
		}
	}
}

func TestSolveHomographyIdentity(t *testing.T) {
	m := SolveHomography(IdentityCorners())
	if !m.IsIdentity() {
		t.Errorf("identity corners: got %v, want identity matrix", m)
	}
}

func TestSolveHomographyRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		corners [4]Point
	}{
		{
			name:    "identity",
			corners: IdentityCorners(),
		},
		{
			name: "mild keystone",
			corners: [4]Point{
				{0.05, 0.02}, {0.97, 0.0},
				{0.0, 1.0}, {1.0, 0.95},
			},
		},
		{
			name: "strong trapezoid",
			corners: [4]Point{
				{0.2, 0.0}, {0.8, 0.0},
				{0.0, 1.0}, {1.0, 1.0},
			},
		},
		{
			name: "all corners pulled inward",
			corners: [4]Point{
				{0.1, 0.1}, {0.9, 0.12},
				{0.08, 0.92}, {0.88, 0.9},
			},
		},
		{
			name: "corners outside unit square",
			corners: [4]Point{
				{-0.2, -0.1}, {1.3, 0.0},
				{-0.1, 1.1}, {1.2, 1.3},
			},
		},
		{
			name: "asymmetric single-corner drag",
			corners: [4]Point{
				{0.1, 0.05}, {1, 0},
				{0, 1}, {1, 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifyRoundTrip(t, tt.corners, 1e-3)
		})
	}
}

func TestSolveHomographyDegenerate(t *testing.T) {
	tests := []struct {
		name    string
		corners [4]Point
	}{
		{
			name: "three collinear corners",
			corners: [4]Point{
				{0, 0}, {0.5, 0},
				{1, 0}, {0, 1},
			},
		},
		{
			name: "all corners coincident",
			corners: [4]Point{
				{0.5, 0.5}, {0.5, 0.5},
				{0.5, 0.5}, {0.5, 0.5},
			},
		},
		{
			name: "all corners on one line",
			corners: [4]Point{
				{0, 0}, {0.25, 0.25},
				{0.5, 0.5}, {1, 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must not panic; must be detectable via IsFinite.
			m := SolveHomography(tt.corners)
			if m.IsFinite() {
				t.Errorf("degenerate corners %v: expected non-finite matrix, got %v",
					tt.corners, m)
			}
		})
	}
}

func TestMatrix3Invert(t *testing.T) {
	m := Matrix3{
		2, 0, 1,
		0, 3, 0,
		0, 0, 1,
	}
	inv := m.Invert()
	if !inv.IsFinite() {
		t.Fatalf("invert of non-singular matrix is non-finite: %v", inv)
	}
	// m · inv must be identity.
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[r*3+k] * inv[k*3+c]
			}
			want := 0.0
			if r == c {
				want = 1.0
			}
			if !almostEqual(sum, want, 1e-12) {
				t.Errorf("(m·inv)[%d][%d] = %v, want %v", r, c, sum, want)
			}
		}
	}

	singular := Matrix3{
		1, 2, 3,
		2, 4, 6,
		0, 0, 1,
	}
	if singular.Invert().IsFinite() {
		t.Error("invert of singular matrix should be non-finite")
	}
}

func TestInsideQuad(t *testing.T) {
	id := IdentityCorners()
	tests := []struct {
		name    string
		corners [4]Point
		p       Point
		want    bool
	}{
		{"center of identity quad", id, Point{0.5, 0.5}, true},
		{"outside identity quad", id, Point{1.5, 0.5}, false},
		{"corner counts as inside", id, Point{0, 0}, true},
		{
			"inside trapezoid",
			[4]Point{{0.2, 0}, {0.8, 0}, {0, 1}, {1, 1}},
			Point{0.5, 0.5},
			true,
		},
		{
			"outside trapezoid top corner cut",
			[4]Point{{0.2, 0}, {0.8, 0}, {0, 1}, {1, 1}},
			Point{0.02, 0.02},
			false,
		},
		{
			// Crossed quad: TL and TR swapped. Edge signs can never
			// agree, so nothing classifies as inside.
			"self-intersecting quad has empty interior",
			[4]Point{{1, 0}, {0, 0}, {0, 1}, {1, 1}},
			Point{0.5, 0.5},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InsideQuad(tt.corners, tt.p); got != tt.want {
				t.Errorf("InsideQuad(%v, %v) = %v, want %v", tt.corners, tt.p, got, tt.want)
			}
		})
	}
}

func TestQuadIsConvex(t *testing.T) {
	if !QuadIsConvex(IdentityCorners()) {
		t.Error("identity quad should be convex")
	}
	crossed := [4]Point{{1, 0}, {0, 0}, {0, 1}, {1, 1}}
	if QuadIsConvex(crossed) {
		t.Error("crossed quad should not be convex")
	}
	concave := [4]Point{{0, 0}, {1, 0}, {0.45, 0.4}, {1, 1}}
	if QuadIsConvex(concave) {
		t.Error("concave quad should not be convex")
	}
}
