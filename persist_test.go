package keystone

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystone.conf")

	src := NewState()
	src.SetEnabled(true)
	src.ToggleBorder()
	src.SetBorderWidth(12)
	src.ToggleCornerMarks()
	src.SetMeshSize(3)
	src.SetStep(7)
	src.AdjustCorner(CornerTopLeft, 13, 5)
	src.AdjustCorner(CornerBottomRight, -4, 9)
	src.AdjustMeshPoint(1, 2, 3, -2)

	if err := src.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := NewState()
	if err := dst.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if dst.Enabled() != src.Enabled() {
		t.Error("enabled flag did not round-trip")
	}
	if dst.BorderVisible() != src.BorderVisible() {
		t.Error("border flag did not round-trip")
	}
	if dst.BorderWidth() != src.BorderWidth() {
		t.Errorf("border width = %d, want %d", dst.BorderWidth(), src.BorderWidth())
	}
	if dst.CornerMarks() != src.CornerMarks() {
		t.Error("cornermarks flag did not round-trip")
	}
	if dst.MeshSize() != src.MeshSize() {
		t.Fatalf("mesh size = %d, want %d", dst.MeshSize(), src.MeshSize())
	}
	// Round trip must be bit-identical, not merely close.
	if dst.Corners() != src.Corners() {
		t.Errorf("corners = %v, want %v", dst.Corners(), src.Corners())
	}
	for r := 0; r < src.MeshSize(); r++ {
		for c := 0; c < src.MeshSize(); c++ {
			if dst.MeshPoint(r, c) != src.MeshPoint(r, c) {
				t.Errorf("mesh[%d][%d] = %v, want %v",
					r, c, dst.MeshPoint(r, c), src.MeshPoint(r, c))
			}
		}
	}
	if dst.Matrix() != src.Matrix() {
		t.Errorf("matrix = %v, want %v", dst.Matrix(), src.Matrix())
	}
}

func TestLoadSkipsMalformedAndUnknownLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystone.conf")
	content := strings.Join([]string{
		"# a comment",
		"",
		"enabled=1",
		"enabled=notabool",     // malformed: keeps previous value (1)
		"corner1=0.25,0.125",
		"corner1=garbage",      // malformed: keeps 0.25,0.125
		"corner9=0.5,0.5",      // out of range: skipped
		"border_width=9999",    // out of range: keeps default
		"some_future_key=abc",  // unknown: skipped
		"mesh_0_0=0.1,0.1",     // no mesh configured: skipped
		"not a key value line", // skipped
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewState()
	if err := s.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !s.Enabled() {
		t.Error("malformed enabled line overwrote the previous good value")
	}
	if got := s.Corners()[CornerTopLeft]; got != (Point{0.25, 0.125}) {
		t.Errorf("corner1 = %v, want (0.25,0.125)", got)
	}
	if s.BorderWidth() != DefaultBorderWidth {
		t.Errorf("border width = %d, want default %d", s.BorderWidth(), DefaultBorderWidth)
	}
	if s.MeshSize() != 0 {
		t.Error("stray mesh point line configured a mesh")
	}
	if !s.Matrix().IsFinite() {
		t.Errorf("matrix non-finite after load: %v", s.Matrix())
	}
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	s := NewState()
	if err := s.Load(filepath.Join(t.TempDir(), "nope.conf")); err == nil {
		t.Error("Load of a missing file should return an error")
	}
	// State keeps defaults.
	if s.Corners() != IdentityCorners() {
		t.Error("failed Load mutated state")
	}
}

func TestLoadFiresChangeHookOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystone.conf")
	src := NewState()
	src.AdjustCorner(CornerTopRight, -3, 2)
	if err := src.Save(path); err != nil {
		t.Fatal(err)
	}

	dst := NewState()
	fired := 0
	dst.SetOnChange(func() { fired++ })
	if err := dst.Load(path); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Errorf("change hook fired %d times during Load, want 1", fired)
	}
}

func TestSaveWithoutMeshOmitsMeshKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystone.conf")
	s := NewState()
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "mesh") {
		t.Errorf("state file mentions mesh without a configured mesh:\n%s", data)
	}
}
