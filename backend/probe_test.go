package backend

import (
	"testing"

	"github.com/openbeam/keystone"
)

func stubProbes(t *testing.T, caps Capabilities) {
	t.Helper()
	savedVulkan, savedGLES, savedAtomic := probeVulkan, probeGLES, probeAtomic
	probeVulkan = func() bool { return caps.Vulkan }
	probeGLES = func() (bool, bool, bool) {
		return caps.GLESCompute, caps.GLESFragment, caps.DMABufImport
	}
	probeAtomic = func() bool { return caps.AtomicModeset }
	t.Cleanup(func() {
		probeVulkan, probeGLES, probeAtomic = savedVulkan, savedGLES, savedAtomic
	})
}

func boolPtr(b bool) *bool { return &b }

func TestProbeOverridesWin(t *testing.T) {
	stubProbes(t, Capabilities{Vulkan: true, AtomicModeset: false, GLESFragment: true})

	caps := Probe(keystone.Overrides{
		Vulkan: boolPtr(false),
		Atomic: boolPtr(true),
	})
	if caps.Vulkan {
		t.Error("forced-off Vulkan survived a probed-true result")
	}
	if !caps.AtomicModeset {
		t.Error("forced-on atomic modeset lost to a probed-false result")
	}
	if !caps.GLESFragment {
		t.Error("un-overridden capability changed")
	}
}

func TestProbeWithoutOverridesReportsProbes(t *testing.T) {
	want := Capabilities{GLESCompute: true, GLESFragment: true, DMABufImport: true}
	stubProbes(t, want)

	if got := Probe(keystone.Overrides{}); got != want {
		t.Errorf("Probe() = %+v, want %+v", got, want)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusUninitialized: "uninitialized",
		StatusInitializing:  "initializing",
		StatusReady:         "ready",
		StatusApplying:      "applying",
		StatusFailed:        "failed",
		StatusCleanedUp:     "cleaned-up",
		Status(99):          "unknown",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", st, got, want)
		}
	}
}
