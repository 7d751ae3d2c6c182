package keystone

import "testing"

func TestOverridesFromEnv(t *testing.T) {
	t.Setenv(EnvStep, "25")
	t.Setenv(EnvBackend, "gles-fragment")
	t.Setenv(EnvVulkan, "0")
	t.Setenv(EnvAtomic, "1")

	ov := OverridesFromEnv()
	if ov.Step != 25 {
		t.Errorf("Step = %d, want 25", ov.Step)
	}
	if ov.Backend != "gles-fragment" {
		t.Errorf("Backend = %q, want gles-fragment", ov.Backend)
	}
	if ov.Vulkan == nil || *ov.Vulkan {
		t.Error("Vulkan override should be false")
	}
	if ov.Atomic == nil || !*ov.Atomic {
		t.Error("Atomic override should be true")
	}
}

func TestOverridesFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv(EnvStep, "not-a-number")
	t.Setenv(EnvVulkan, "maybe")
	t.Setenv(EnvAtomic, "")

	ov := OverridesFromEnv()
	if ov.Step != 0 {
		t.Errorf("Step = %d, want 0 (unset)", ov.Step)
	}
	if ov.Vulkan != nil {
		t.Error("unparseable Vulkan override should stay nil")
	}
	if ov.Atomic != nil {
		t.Error("empty Atomic override should stay nil")
	}
}

func TestOverridesFromEnvStepOutOfRange(t *testing.T) {
	t.Setenv(EnvStep, "5000")
	if ov := OverridesFromEnv(); ov.Step != 0 {
		t.Errorf("out-of-range step accepted: %d", ov.Step)
	}
}
