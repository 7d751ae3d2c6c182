package keystone

import (
	"os"
	"strconv"
)

// Environment variables consumed at the orchestration boundary.
// Operators use these to blacklist a backend found to be unstable on a
// specific hardware/driver combination, or to tune adjustment speed,
// without touching persisted state.
const (
	// EnvStep overrides the corner adjustment step (1–100 thousandths).
	EnvStep = "KEYSTONE_STEP"

	// EnvBackend forces a specific correction backend by name,
	// bypassing priority selection. The probe result is still honored:
	// forcing an unsupported backend leaves correction disabled.
	EnvBackend = "KEYSTONE_BACKEND"

	// EnvVulkan force-enables ("1") or force-disables ("0") the Vulkan
	// compute backend, overriding the probe.
	EnvVulkan = "KEYSTONE_VULKAN"

	// EnvAtomic force-enables ("1") or force-disables ("0") DRM atomic
	// modesetting for the hardware-plane backend, overriding the probe.
	EnvAtomic = "KEYSTONE_ATOMIC"
)

// Overrides carries operator configuration that takes precedence over
// probed capabilities. The zero value overrides nothing.
type Overrides struct {
	// Step overrides the adjustment step when in [MinStep, MaxStep];
	// 0 keeps the state default.
	Step int

	// Backend forces a backend by registry name; empty keeps priority
	// selection.
	Backend string

	// Vulkan and Atomic are tri-state: nil leaves the probed value.
	Vulkan *bool
	Atomic *bool
}

// OverridesFromEnv reads the KEYSTONE_* environment variables.
// Unparseable values are ignored, keeping probed behavior.
func OverridesFromEnv() Overrides {
	var ov Overrides
	if v := os.Getenv(EnvStep); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= MinStep && n <= MaxStep {
			ov.Step = n
		}
	}
	ov.Backend = os.Getenv(EnvBackend)
	ov.Vulkan = parseEnvBool(EnvVulkan)
	ov.Atomic = parseEnvBool(EnvAtomic)
	return ov
}

func parseEnvBool(name string) *bool {
	switch os.Getenv(name) {
	case "0", "false", "no":
		v := false
		return &v
	case "1", "true", "yes":
		v := true
		return &v
	}
	return nil
}
