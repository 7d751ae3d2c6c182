package gles

import "testing"

func TestVersionOf(t *testing.T) {
	cases := []struct {
		s            string
		major, minor int
	}{
		{"OpenGL ES 3.2 Mesa 23.1.9", 3, 2},
		{"OpenGL ES 3.1", 3, 1},
		{"OpenGL ES 2.0 (ANGLE 2.1.0)", 2, 0},
		{"not a version string", 0, 0},
	}
	for _, tc := range cases {
		major, minor := VersionOf(tc.s)
		if major != tc.major || minor != tc.minor {
			t.Errorf("VersionOf(%q) = %d.%d, want %d.%d",
				tc.s, major, minor, tc.major, tc.minor)
		}
	}
}

// The compute path reads its output with glReadPixels from an FBO the
// storage image is attached to; without GL_FRAMEBUFFER_BARRIER_BIT the
// image stores are not guaranteed visible to that read on ES 3.1.
func TestDispatchBarriersCoverFramebufferReads(t *testing.T) {
	if dispatchBarriers&FramebufferBarrierBit == 0 {
		t.Error("dispatch barrier mask lost the framebuffer bit")
	}
	if FramebufferBarrierBit != 0x0400 {
		t.Errorf("FramebufferBarrierBit = %#x, want GL_FRAMEBUFFER_BARRIER_BIT 0x0400",
			FramebufferBarrierBit)
	}
}
