package gles

import (
	"errors"
	"strings"
	"testing"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"
)

func TestColumnMajorRoundTrip(t *testing.T) {
	m := keystone.Matrix3{1, 2, 3, 4, 5, 6, 7, 8, 9}
	cm := columnMajor(m)
	// Column k of the GL matrix must be row-major column k.
	want := [9]float32{1, 4, 7, 2, 5, 8, 3, 6, 9}
	if cm != want {
		t.Errorf("columnMajor = %v, want %v", cm, want)
	}
}

func TestCornerPairsOrder(t *testing.T) {
	st := keystone.NewState()
	st.AdjustCorner(keystone.CornerTopRight, -2, 1) // TR = (1-0.02, 0.01)
	snap := st.Snapshot()

	pairs := cornerPairs(&snap)
	if len(pairs) != 8 {
		t.Fatalf("len = %d, want 8", len(pairs))
	}
	if pairs[0] != 0 || pairs[1] != 0 {
		t.Errorf("TL = (%g,%g), want (0,0)", pairs[0], pairs[1])
	}
	if pairs[2] != float32(0.98) || pairs[3] != float32(0.01) {
		t.Errorf("TR = (%g,%g), want (0.98,0.01)", pairs[2], pairs[3])
	}
}

func TestShaderVersionDirectives(t *testing.T) {
	if !strings.HasPrefix(computeShaderSource, "#version 310 es") {
		t.Error("compute shader must declare ES 3.1")
	}
	for _, src := range []string{vertexShaderSource, fragmentShaderSource} {
		if !strings.HasPrefix(src, "#version 100") {
			t.Error("fragment path shaders must stay at #version 100")
		}
	}
	// Implicit-LOD sampling is illegal in compute shaders.
	if strings.Contains(computeShaderSource, "texture(") {
		t.Error("compute shader must sample via textureLod")
	}
}

func TestLifecycleGuards(t *testing.T) {
	for _, b := range []backend.Backend{NewCompute(), NewFragment()} {
		t.Run(b.Name(), func(t *testing.T) {
			if b.Status() != backend.StatusUninitialized {
				t.Errorf("fresh status = %v", b.Status())
			}
			if _, err := b.Apply(nil, keystone.NewFrame(4, 4)); !errors.Is(err, backend.ErrNotInitialized) {
				t.Errorf("Apply before Init: %v", err)
			}
			if err := b.Update(nil); !errors.Is(err, backend.ErrNotInitialized) {
				t.Errorf("Update before Init: %v", err)
			}
			b.Cleanup()
			b.Cleanup()
			if b.Status() != backend.StatusCleanedUp {
				t.Errorf("status after Cleanup = %v", b.Status())
			}
		})
	}
}

func TestTightPixels(t *testing.T) {
	padded := &keystone.Frame{
		Width: 2, Height: 2, Stride: 12,
		Data: []uint8{
			1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0,
			9, 10, 11, 12, 13, 14, 15, 16, 0, 0, 0, 0,
		},
	}
	scratch := make([]byte, 16)
	got := tightPixels(padded, scratch)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tightPixels[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	// Already-tight frames come back without copying.
	tight := keystone.NewFrame(2, 2)
	if out := tightPixels(tight, scratch); &out[0] != &tight.Data[0] {
		t.Error("tight frame should be passed through")
	}
}

// TestFragmentWarpOnDevice runs the fragment path against a real EGL
// context, checking against the CPU reference. Skips headless.
func TestFragmentWarpOnDevice(t *testing.T) {
	f := NewFragment()
	if !f.Supported() {
		t.Skip("libEGL/libGLESv2 not present")
	}
	const size = 128
	if err := f.Init(size, size); err != nil {
		t.Skipf("no usable GLES context: %v", err)
	}
	defer f.Cleanup()

	st := keystone.NewState()
	st.SetEnabled(true)
	st.AdjustCorner(keystone.CornerBottomRight, -6, -4)
	snap := st.Snapshot()

	src := keystone.NewFrame(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			src.Set(x, y, uint8(x*2), uint8(y*2), 64, 255)
		}
	}
	got, err := f.Apply(&snap, src)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := keystone.NewFrame(size, size)
	if err := keystone.WarpImage(snap, src, want); err != nil {
		t.Fatal(err)
	}
	mismatches := 0
	for y := 1; y < size-1; y++ {
		for x := 1; x < size-1; x++ {
			_, _, _, wa := want.At(x, y)
			_, _, _, ga := got.At(x, y)
			if wa == 0 || ga == 0 {
				continue
			}
			wr, _, _, _ := want.At(x, y)
			gr, _, _, _ := got.At(x, y)
			d := int(wr) - int(gr)
			if d < -3 || d > 3 {
				mismatches++
			}
		}
	}
	if limit := size * size / 100; mismatches > limit {
		t.Errorf("%d pixels deviate from the CPU reference (limit %d)", mismatches, limit)
	}
}
