package backend

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/internal/drm"
	"github.com/openbeam/keystone/internal/egl"
	"github.com/openbeam/keystone/internal/gles"

	// Import the Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Capabilities is the result of probing the system's hardware paths.
// Each field answers one independent question; probing never raises.
type Capabilities struct {
	Vulkan        bool // a Vulkan compute-capable device can be opened
	GLESCompute   bool // GLES >= 3.1 with a non-zero compute work-group limit
	GLESFragment  bool // any GLES context can be created
	AtomicModeset bool // the DRM device accepts the atomic client cap
	DMABufImport  bool // EGL advertises EGL_EXT_image_dma_buf_import
}

// Probe hooks, swappable in tests.
var (
	probeVulkan = probeVulkanDevice
	probeGLES   = probeGLESContext
	probeAtomic = func() bool { return drm.SupportsAtomic(drm.DefaultCard) }
)

// Probe runs every hardware probe and applies the configured overrides.
// Overrides always win: a forced-off capability is off even when the
// probe succeeds, and a forced-on capability is trusted even when the
// probe fails (the backend's own Init is the final arbiter then).
func Probe(ov keystone.Overrides) Capabilities {
	caps := Capabilities{
		Vulkan:        probeVulkan(),
		AtomicModeset: probeAtomic(),
	}
	caps.GLESCompute, caps.GLESFragment, caps.DMABufImport = probeGLES()

	if ov.Vulkan != nil {
		caps.Vulkan = *ov.Vulkan
	}
	if ov.Atomic != nil {
		caps.AtomicModeset = *ov.Atomic
	}

	keystone.Logger().Debug("capability probe",
		"vulkan", caps.Vulkan,
		"gles_compute", caps.GLESCompute,
		"gles_fragment", caps.GLESFragment,
		"atomic_modeset", caps.AtomicModeset,
		"dmabuf_import", caps.DMABufImport)
	return caps
}

// probeVulkanDevice attempts to open a Vulkan device through wgpu/hal.
// Any failure along the way reads as "no Vulkan".
func probeVulkanDevice() bool {
	vk, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return false
	}
	instance, err := vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return false
	}
	defer instance.Destroy()

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return false
	}
	openDev, err := adapters[0].Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return false
	}
	openDev.Device.Destroy()
	return true
}

// probeGLESContext creates a throwaway pbuffer context and inspects it.
// Compute requires ES >= 3.1 and a non-zero max work-group count; a
// zero limit means the driver stubbed compute out.
func probeGLESContext() (compute, fragment, dmabuf bool) {
	ctx, err := egl.NewPbufferContext(3)
	if err != nil {
		ctx, err = egl.NewPbufferContext(2)
		if err != nil {
			return false, false, false
		}
	}
	defer ctx.Destroy()

	fragment = true
	dmabuf = ctx.HasExtension("EGL_EXT_image_dma_buf_import")

	major, minor := gles.Version()
	if major > 3 || (major == 3 && minor >= 1) {
		compute = gles.MaxComputeWorkGroupCount(0) > 0
	}
	return compute, fragment, dmabuf
}
