package keystone

import (
	"testing"
)

func TestNewStateDefaults(t *testing.T) {
	s := NewState()
	if s.Enabled() {
		t.Error("new state should start disabled")
	}
	if got := s.Corners(); got != IdentityCorners() {
		t.Errorf("corners = %v, want identity rectangle", got)
	}
	if !s.Matrix().IsIdentity() {
		t.Errorf("matrix = %v, want identity", s.Matrix())
	}
	if s.Step() != DefaultStep {
		t.Errorf("step = %d, want %d", s.Step(), DefaultStep)
	}
	if s.MeshSize() != 0 {
		t.Errorf("mesh size = %d, want 0 (no mesh)", s.MeshSize())
	}
}

func TestAdjustCornerZeroDeltaIsNoop(t *testing.T) {
	s := NewState()
	fired := 0
	s.SetOnChange(func() { fired++ })

	s.AdjustCorner(CornerTopLeft, 0, 0)

	if fired != 0 {
		t.Errorf("change hook fired %d times for zero delta, want 0", fired)
	}
	if s.Corners() != IdentityCorners() {
		t.Error("zero delta moved a corner")
	}
}

func TestAdjustCornerMonotonic(t *testing.T) {
	s := NewState()
	prev := s.Corners()[CornerTopLeft].X
	for i := 0; i < 20; i++ {
		s.AdjustCorner(CornerTopLeft, 1, 0)
		cur := s.Corners()[CornerTopLeft].X
		if cur <= prev {
			t.Fatalf("step %d: X went from %v to %v, want strictly increasing", i, prev, cur)
		}
		prev = cur
	}
}

func TestAdjustCornerStepScaling(t *testing.T) {
	s := NewState()
	s.SetStep(25)
	s.AdjustCorner(CornerBottomRight, 2, -1)

	got := s.Corners()[CornerBottomRight]
	want := Point{X: 1 + 2*0.025, Y: 1 - 0.025}
	if !almostEqual(got.X, want.X, 1e-12) || !almostEqual(got.Y, want.Y, 1e-12) {
		t.Errorf("corner = %v, want %v", got, want)
	}
}

func TestAdjustCornerRecomputesMatrix(t *testing.T) {
	s := NewState()
	s.AdjustCorner(CornerTopLeft, 10, 5)

	m := s.Matrix()
	if m.IsIdentity() {
		t.Fatal("matrix still identity after corner move")
	}
	if !m.IsFinite() {
		t.Fatalf("matrix non-finite for a mild adjustment: %v", m)
	}
	// The inverse mapping must send the moved corner back to (0,0).
	c := s.Corners()[CornerTopLeft]
	sx, sy := m.Apply(c.X, c.Y)
	if !almostEqual(sx, 0, 1e-9) || !almostEqual(sy, 0, 1e-9) {
		t.Errorf("inverse of moved TL = (%v,%v), want (0,0)", sx, sy)
	}
}

func TestChangeHookFiresOncePerMutation(t *testing.T) {
	s := NewState()
	fired := 0
	s.SetOnChange(func() { fired++ })

	s.AdjustCorner(CornerTopRight, 1, 0)
	if fired != 1 {
		t.Errorf("after AdjustCorner: hook fired %d times, want 1", fired)
	}

	s.Reset()
	if fired != 2 {
		t.Errorf("after Reset: hook fired %d times, want 2", fired)
	}

	// Display-only toggles do not affect geometry.
	s.ToggleBorder()
	s.ToggleCornerMarks()
	s.SetBorderWidth(10)
	if fired != 2 {
		t.Errorf("display toggles fired the change hook (%d times total)", fired)
	}
}

func TestPinnedCornerIgnoresAdjust(t *testing.T) {
	s := NewState()
	s.TogglePin(CornerTopLeft)
	if !s.Pinned(CornerTopLeft) {
		t.Fatal("TogglePin did not pin the corner")
	}

	s.AdjustCorner(CornerTopLeft, 5, 5)
	if got := s.Corners()[CornerTopLeft]; got != (Point{0, 0}) {
		t.Errorf("pinned corner moved to %v", got)
	}

	s.TogglePin(CornerTopLeft)
	s.AdjustCorner(CornerTopLeft, 5, 5)
	if got := s.Corners()[CornerTopLeft]; got == (Point{0, 0}) {
		t.Error("unpinned corner did not move")
	}
}

func TestSelectCorner(t *testing.T) {
	s := NewState()
	s.SelectCorner(CornerBottomLeft)
	if s.SelectedCorner() != CornerBottomLeft {
		t.Errorf("selected = %d, want %d", s.SelectedCorner(), CornerBottomLeft)
	}
	s.SelectCorner(99) // ignored
	if s.SelectedCorner() != CornerBottomLeft {
		t.Error("out-of-range SelectCorner changed the cursor")
	}
	for i := 0; i < NumCorners; i++ {
		s.NextCorner()
	}
	if s.SelectedCorner() != CornerBottomLeft {
		t.Error("NextCorner over a full cycle did not wrap around")
	}
}

func TestMeshAdjustAndClamp(t *testing.T) {
	s := NewState()
	s.SetMeshSize(3)
	if s.MeshSize() != 3 {
		t.Fatalf("mesh size = %d, want 3", s.MeshSize())
	}
	if got := s.MeshPoint(1, 1); got != (Point{0.5, 0.5}) {
		t.Errorf("center mesh point = %v, want (0.5,0.5)", got)
	}

	// Push a point far past the clamp range.
	s.SetStep(MaxStep)
	for i := 0; i < 100; i++ {
		s.AdjustMeshPoint(0, 0, -1, -1)
	}
	if got := s.MeshPoint(0, 0); got != (Point{-1, -1}) {
		t.Errorf("mesh point clamped to %v, want (-1,-1)", got)
	}

	s.AdjustMeshPoint(5, 5, 1, 1) // out of range: no-op, no panic
}

func TestReset(t *testing.T) {
	s := NewState()
	s.SetMeshSize(2)
	s.AdjustCorner(CornerTopLeft, 10, 10)
	s.AdjustMeshPoint(0, 0, 3, 3)
	s.TogglePin(CornerBottomRight)
	s.SetEnabled(true)

	s.Reset()

	if s.Corners() != IdentityCorners() {
		t.Error("Reset did not restore identity corners")
	}
	if got := s.MeshPoint(0, 0); got != (Point{0, 0}) {
		t.Errorf("Reset left mesh point at %v", got)
	}
	if s.Pinned(CornerBottomRight) {
		t.Error("Reset did not clear pins")
	}
	if !s.Enabled() {
		t.Error("Reset should leave the enable flag alone")
	}
	if !s.Matrix().IsIdentity() {
		t.Error("Reset did not restore the identity matrix")
	}
}

func TestDegenerateGeometryLeavesStateIntact(t *testing.T) {
	s := NewState()
	// Drag BL up onto the top edge: TL, TR, BL become collinear.
	s.SetStep(MaxStep)
	for i := 0; i < 10; i++ {
		s.AdjustCorner(CornerBottomLeft, 0, -1)
	}
	if s.Matrix().IsFinite() {
		t.Fatalf("expected non-finite matrix, got %v", s.Matrix())
	}
	// The corner state is untouched: the user may still be
	// mid-adjustment, so dragging back down must recover.
	for i := 0; i < 5; i++ {
		s.AdjustCorner(CornerBottomLeft, 0, 1)
	}
	if !s.Matrix().IsFinite() {
		t.Error("geometry did not recover after dragging back")
	}
}

func TestIsConvex(t *testing.T) {
	s := NewState()
	if !s.IsConvex() {
		t.Error("identity quad should be convex")
	}
	// Drag TL past TR.
	s.SetStep(MaxStep)
	for i := 0; i < 15; i++ {
		s.AdjustCorner(CornerTopLeft, 1, 0)
	}
	if s.IsConvex() {
		t.Errorf("corners %v should not be convex", s.Corners())
	}
}

func TestSetStepClamps(t *testing.T) {
	s := NewState()
	s.SetStep(0)
	if s.Step() != MinStep {
		t.Errorf("step = %d, want %d", s.Step(), MinStep)
	}
	s.SetStep(1000)
	if s.Step() != MaxStep {
		t.Errorf("step = %d, want %d", s.Step(), MaxStep)
	}
}

func TestAdjustCornerInvalidIndex(t *testing.T) {
	s := NewState()
	s.AdjustCorner(-1, 1, 1)
	s.AdjustCorner(NumCorners, 1, 1)
	if s.Corners() != IdentityCorners() {
		t.Error("invalid index moved a corner")
	}
}
