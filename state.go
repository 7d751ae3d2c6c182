package keystone

// Step bounds for corner adjustment. The step is interpreted in
// thousandths of the normalized coordinate space per keypress.
const (
	MinStep     = 1
	MaxStep     = 100
	DefaultStep = 10
)

// Mesh size bounds for the optional fine-warp mesh.
const (
	MinMeshSize = 2
	MaxMeshSize = 10
)

// Border width bounds in pixels.
const (
	MinBorderWidth     = 1
	MaxBorderWidth     = 50
	DefaultBorderWidth = 4
)

// Snapshot is the value-copy of the correction state read once per
// frame by the render path. Backends receive snapshots by value and
// never mutate them.
type Snapshot struct {
	Corners       [4]Point
	Matrix        Matrix3 // destination → source mapping
	Enabled       bool
	BorderVisible bool
	BorderWidth   int
	CornerMarks   bool
}

// State owns the keystone correction geometry: the four corner points,
// the selection cursor, the enable flag, border and corner-marker
// display settings, the optional N×N fine-warp mesh, and per-corner pin
// flags. Every geometry-affecting mutation recomputes the homography
// matrix and fires the change hook exactly once.
//
// State is not safe for concurrent use; see the package documentation
// for the single-writer discipline.
type State struct {
	corners  [4]Point
	enabled  bool
	selected int
	step     int

	borderVisible bool
	borderWidth   int
	cornerMarks   bool

	meshSize int       // 0 when no mesh is configured
	mesh     [][]Point // meshSize×meshSize auxiliary warp points
	pinned   [4]bool

	matrix   Matrix3
	onChange func()
}

// NewState returns correction state at the identity rectangle with
// correction disabled and no mesh configured.
func NewState() *State {
	return &State{
		corners:     IdentityCorners(),
		step:        DefaultStep,
		borderWidth: DefaultBorderWidth,
		matrix:      Identity3(),
	}
}

// SetOnChange installs the hook fired after every geometry-affecting
// mutation. The orchestrator uses it to schedule a parameter refresh on
// the active backend. Pass nil to remove the hook.
func (s *State) SetOnChange(fn func()) { s.onChange = fn }

// geometryChanged recomputes the matrix and fires the change hook.
// Called exactly once per geometry-affecting mutation.
func (s *State) geometryChanged() {
	s.matrix = SolveHomography(s.corners)
	if s.onChange != nil {
		s.onChange()
	}
}

// Matrix returns the current destination → source homography. It is
// non-finite while the corner geometry is degenerate.
func (s *State) Matrix() Matrix3 { return s.matrix }

// Corners returns the current corner points in fixed TL/TR/BL/BR order.
func (s *State) Corners() [4]Point { return s.corners }

// Snapshot returns the value-copy consumed by the render path.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Corners:       s.corners,
		Matrix:        s.matrix,
		Enabled:       s.enabled,
		BorderVisible: s.borderVisible,
		BorderWidth:   s.borderWidth,
		CornerMarks:   s.cornerMarks,
	}
}

// Enabled reports whether correction is enabled.
func (s *State) Enabled() bool { return s.enabled }

// ToggleEnabled flips the enable flag. The flag does not affect
// geometry, but backends still want the refresh, so the hook fires.
func (s *State) ToggleEnabled() {
	s.enabled = !s.enabled
	if s.onChange != nil {
		s.onChange()
	}
}

// SetEnabled sets the enable flag directly.
func (s *State) SetEnabled(enabled bool) {
	if s.enabled == enabled {
		return
	}
	s.ToggleEnabled()
}

// Step returns the adjustment step in thousandths.
func (s *State) Step() int { return s.step }

// SetStep sets the adjustment step, clamped to [MinStep, MaxStep].
func (s *State) SetStep(step int) {
	if step < MinStep {
		step = MinStep
	}
	if step > MaxStep {
		step = MaxStep
	}
	s.step = step
}

// SelectedCorner returns the index of the corner under the selection
// cursor.
func (s *State) SelectedCorner() int { return s.selected }

// SelectCorner moves the selection cursor. Out-of-range indices are
// ignored.
func (s *State) SelectCorner(idx int) {
	if idx >= 0 && idx < NumCorners {
		s.selected = idx
	}
}

// NextCorner advances the selection cursor in TL/TR/BL/BR order,
// wrapping around.
func (s *State) NextCorner() {
	s.selected = (s.selected + 1) % NumCorners
}

// AdjustCorner moves corner idx by (dx, dy) steps, each step being
// Step() thousandths of the normalized space. Zero deltas, out-of-range
// indices and pinned corners are no-ops and do not fire the change
// hook.
func (s *State) AdjustCorner(idx, dx, dy int) {
	if idx < 0 || idx >= NumCorners {
		return
	}
	if s.pinned[idx] || (dx == 0 && dy == 0) {
		return
	}
	d := float64(s.step) / 1000.0
	s.corners[idx] = s.corners[idx].Add(float64(dx)*d, float64(dy)*d)
	s.geometryChanged()
}

// AdjustSelected moves the corner under the selection cursor.
func (s *State) AdjustSelected(dx, dy int) {
	s.AdjustCorner(s.selected, dx, dy)
}

// TogglePin flips the pin flag for a corner. Pinned corners ignore
// AdjustCorner. Out-of-range indices are ignored.
func (s *State) TogglePin(idx int) {
	if idx >= 0 && idx < NumCorners {
		s.pinned[idx] = !s.pinned[idx]
	}
}

// Pinned reports whether corner idx is pinned.
func (s *State) Pinned(idx int) bool {
	return idx >= 0 && idx < NumCorners && s.pinned[idx]
}

// BorderVisible reports whether the border outline is shown.
func (s *State) BorderVisible() bool { return s.borderVisible }

// ToggleBorder flips border visibility. Display-only: the change hook
// does not fire.
func (s *State) ToggleBorder() { s.borderVisible = !s.borderVisible }

// BorderWidth returns the border width in pixels.
func (s *State) BorderWidth() int { return s.borderWidth }

// SetBorderWidth sets the border width, clamped to
// [MinBorderWidth, MaxBorderWidth].
func (s *State) SetBorderWidth(w int) {
	if w < MinBorderWidth {
		w = MinBorderWidth
	}
	if w > MaxBorderWidth {
		w = MaxBorderWidth
	}
	s.borderWidth = w
}

// CornerMarks reports whether corner markers are shown.
func (s *State) CornerMarks() bool { return s.cornerMarks }

// ToggleCornerMarks flips corner-marker visibility. Display-only.
func (s *State) ToggleCornerMarks() { s.cornerMarks = !s.cornerMarks }

// MeshSize returns the fine-warp mesh dimension, or 0 when no mesh is
// configured.
func (s *State) MeshSize() int { return s.meshSize }

// SetMeshSize configures an n×n fine-warp mesh at the identity grid,
// replacing any existing mesh. n is clamped to [MinMeshSize,
// MaxMeshSize]; n <= 0 removes the mesh.
func (s *State) SetMeshSize(n int) {
	if n <= 0 {
		s.meshSize = 0
		s.mesh = nil
		return
	}
	if n < MinMeshSize {
		n = MinMeshSize
	}
	if n > MaxMeshSize {
		n = MaxMeshSize
	}
	s.meshSize = n
	s.mesh = identityMesh(n)
}

// identityMesh returns an n×n grid of evenly spaced points spanning the
// unit square.
func identityMesh(n int) [][]Point {
	mesh := make([][]Point, n)
	for r := 0; r < n; r++ {
		mesh[r] = make([]Point, n)
		for c := 0; c < n; c++ {
			mesh[r][c] = Point{
				X: float64(c) / float64(n-1),
				Y: float64(r) / float64(n-1),
			}
		}
	}
	return mesh
}

// MeshPoint returns the mesh point at (row, col). The zero Point is
// returned for out-of-range indices or when no mesh is configured.
func (s *State) MeshPoint(row, col int) Point {
	if row < 0 || row >= s.meshSize || col < 0 || col >= s.meshSize {
		return Point{}
	}
	return s.mesh[row][col]
}

// AdjustMeshPoint moves the mesh point at (row, col) by (dx, dy) steps
// of Step() thousandths, clamped to [-1, 2] on both axes. Out-of-range
// indices and zero deltas are no-ops.
func (s *State) AdjustMeshPoint(row, col, dx, dy int) {
	if row < 0 || row >= s.meshSize || col < 0 || col >= s.meshSize {
		return
	}
	if dx == 0 && dy == 0 {
		return
	}
	d := float64(s.step) / 1000.0
	p := s.mesh[row][col].Add(float64(dx)*d, float64(dy)*d)
	s.mesh[row][col] = p.Clamp(-1, 2)
	s.geometryChanged()
}

// Reset restores the identity geometry: corners back to the unit
// rectangle, mesh (if configured) back to the identity grid, pins
// cleared. The enable flag and display settings are left alone so a
// reset mid-session does not blank the operator's setup.
func (s *State) Reset() {
	s.corners = IdentityCorners()
	s.pinned = [4]bool{}
	if s.meshSize > 0 {
		s.mesh = identityMesh(s.meshSize)
	}
	s.geometryChanged()
}

// IsConvex reports whether the current corners describe a convex,
// non-self-intersecting quadrilateral.
func (s *State) IsConvex() bool { return QuadIsConvex(s.corners) }
