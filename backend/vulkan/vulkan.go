// Package vulkan implements the highest-priority correction backend: a
// Vulkan compute pipeline driven through wgpu/hal. The warp runs as a
// 16×16 work-group kernel over packed RGBA u32 storage buffers with an
// explicit fence wait before readback.
package vulkan

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"

	// Import the Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	backend.Register(backend.BackendVulkanCompute, func() backend.Backend {
		return New()
	})
}

// paramsSize is the uniform block size: three vec4 matrix rows, four
// vec2 corners, vec2<u32> size, vec2<u32> padding.
const paramsSize = 96

const gpuTimeout = 5 * time.Second

// Warper is the Vulkan compute correction backend.
type Warper struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	uniformBuf hal.Buffer
	srcBuf     hal.Buffer
	dstBuf     hal.Buffer
	stagingBuf hal.Buffer
	bindGroup  hal.BindGroup

	width, height int
	packed        []byte // upload/readback scratch
	out           *keystone.Frame

	status         backend.Status
	externalDevice bool
}

var _ backend.Backend = (*Warper)(nil)

// New returns an uninitialized Vulkan warper.
func New() *Warper {
	return &Warper{status: backend.StatusUninitialized}
}

func (w *Warper) Name() string           { return backend.BackendVulkanCompute }
func (w *Warper) Status() backend.Status { return w.status }

// Supported reports whether a Vulkan hal backend is linked in. Whether
// a device actually opens is Init's job.
func (w *Warper) Supported() bool {
	_, ok := hal.GetBackend(gputypes.BackendVulkan)
	return ok
}

// UseSharedDevice wires the warper to the presentation layer's GPU
// context so playback and correction share one Vulkan device. The
// provider must additionally expose HAL handles via HalDevice() and
// HalQueue(); wgpu-backed gpucontext providers do.
func (w *Warper) UseSharedDevice(provider gpucontext.DeviceProvider) error {
	if provider == nil {
		return fmt.Errorf("vulkan: nil device provider")
	}
	return w.SetDeviceProvider(provider)
}

// SetDeviceProvider switches the warper to a shared GPU device before
// Init. The provider must expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func (w *Warper) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("vulkan: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("vulkan: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("vulkan: provider HalQueue is not hal.Queue")
	}
	if w.status != backend.StatusUninitialized && w.status != backend.StatusCleanedUp {
		return fmt.Errorf("vulkan: device provider must be set before Init")
	}
	w.device = device
	w.queue = queue
	w.externalDevice = true
	return nil
}

// Init opens a device (unless one was shared), builds the compute
// pipeline, and allocates buffers for the given output size.
func (w *Warper) Init(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("vulkan: invalid size %dx%d", width, height)
	}
	w.status = backend.StatusInitializing

	if !w.externalDevice {
		if err := w.openDevice(); err != nil {
			w.status = backend.StatusFailed
			return err
		}
	}
	if err := w.createPipeline(); err != nil {
		w.status = backend.StatusFailed
		return err
	}
	if err := w.createResources(width, height); err != nil {
		w.status = backend.StatusFailed
		return err
	}
	w.width, w.height = width, height
	w.out = keystone.NewFrame(width, height)
	w.status = backend.StatusReady
	keystone.Logger().Info("vulkan warper ready", "width", width, "height", height)
	return nil
}

func (w *Warper) openDevice() error {
	vk, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return backend.ErrUnsupported
	}
	instance, err := vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("vulkan: create instance: %w", err)
	}
	w.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("vulkan: %w: no adapters", backend.ErrUnsupported)
	}
	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("vulkan: open device: %w", err)
	}
	w.device = openDev.Device
	w.queue = openDev.Queue
	keystone.Logger().Debug("vulkan device opened", "adapter", selected.Info.Name)
	return nil
}

func (w *Warper) createPipeline() error {
	shader, err := w.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "keystone_warp",
		Source: hal.ShaderSource{WGSL: warpShaderSource},
	})
	if err != nil {
		return fmt.Errorf("vulkan: compile warp shader: %w", err)
	}
	w.shader = shader

	bindLayout, err := w.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "keystone_warp_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("vulkan: create bind group layout: %w", err)
	}
	w.bindLayout = bindLayout

	pipeLayout, err := w.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "keystone_warp_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{w.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("vulkan: create pipeline layout: %w", err)
	}
	w.pipeLayout = pipeLayout

	pipeline, err := w.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "keystone_warp_pipeline",
		Layout:  w.pipeLayout,
		Compute: hal.ComputeState{Module: w.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("vulkan: create compute pipeline: %w", err)
	}
	w.pipeline = pipeline
	return nil
}

func (w *Warper) createResources(width, height int) error {
	pixelBufSize := uint64(width * height * 4)

	uniformBuf, err := w.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "keystone_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("vulkan: create uniform buffer: %w", err)
	}
	w.uniformBuf = uniformBuf

	srcBuf, err := w.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "keystone_src", Size: pixelBufSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("vulkan: create source buffer: %w", err)
	}
	w.srcBuf = srcBuf

	dstBuf, err := w.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "keystone_dst", Size: pixelBufSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("vulkan: create destination buffer: %w", err)
	}
	w.dstBuf = dstBuf

	stagingBuf, err := w.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "keystone_staging", Size: pixelBufSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("vulkan: create staging buffer: %w", err)
	}
	w.stagingBuf = stagingBuf

	bindGroup, err := w.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "keystone_warp_bind",
		Layout: w.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: w.uniformBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: w.srcBuf.NativeHandle(), Offset: 0, Size: pixelBufSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: w.dstBuf.NativeHandle(), Offset: 0, Size: pixelBufSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("vulkan: create bind group: %w", err)
	}
	w.bindGroup = bindGroup
	w.packed = make([]byte, pixelBufSize)
	return nil
}

// Update uploads new correction parameters.
func (w *Warper) Update(snap *keystone.Snapshot) error {
	if w.status != backend.StatusReady && w.status != backend.StatusApplying {
		return backend.ErrNotInitialized
	}
	if snap == nil {
		return backend.ErrDegenerateGeometry
	}
	w.queue.WriteBuffer(w.uniformBuf, 0, packParams(snap, w.width, w.height))
	return nil
}

// Apply warps one frame. The returned frame is owned by the warper and
// valid until the next Apply or Cleanup.
func (w *Warper) Apply(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error) {
	if w.status != backend.StatusReady {
		return nil, backend.ErrNotInitialized
	}
	if snap == nil || !snap.Matrix.IsFinite() {
		return nil, backend.ErrDegenerateGeometry
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("vulkan: %w", err)
	}
	if src.Width != w.width || src.Height != w.height {
		return nil, fmt.Errorf("vulkan: frame size %dx%d does not match %dx%d",
			src.Width, src.Height, w.width, w.height)
	}
	w.status = backend.StatusApplying

	packFrame(src, w.packed)
	w.queue.WriteBuffer(w.srcBuf, 0, w.packed)
	w.queue.WriteBuffer(w.uniformBuf, 0, packParams(snap, w.width, w.height))

	if err := w.dispatch(); err != nil {
		w.status = backend.StatusFailed
		return nil, err
	}
	unpackFrame(w.packed, w.out)
	w.status = backend.StatusReady
	return w.out, nil
}

func (w *Warper) dispatch() error {
	pixelBufSize := uint64(w.width * w.height * 4)

	encoder, err := w.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "keystone_warp_encoder"})
	if err != nil {
		return fmt.Errorf("vulkan: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("keystone_warp"); err != nil {
		return fmt.Errorf("vulkan: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "keystone_warp_pass"})
	pass.SetPipeline(w.pipeline)
	pass.SetBindGroup(0, w.bindGroup, nil)
	pass.Dispatch(uint32(w.width+15)/16, uint32(w.height+15)/16, 1)
	pass.End()

	encoder.CopyBufferToBuffer(w.dstBuf, w.stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: pixelBufSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("vulkan: end encoding: %w", err)
	}
	defer w.device.FreeCommandBuffer(cmdBuf)

	fence, err := w.device.CreateFence()
	if err != nil {
		return fmt.Errorf("vulkan: create fence: %w", err)
	}
	defer w.device.DestroyFence(fence)
	if err := w.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("vulkan: submit: %w", err)
	}
	fenceOK, err := w.device.Wait(fence, 1, gpuTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("vulkan: %w: fence wait ok=%v err=%v", backend.ErrDeviceLost, fenceOK, err)
	}
	if err := w.queue.ReadBuffer(w.stagingBuf, 0, w.packed); err != nil {
		return fmt.Errorf("vulkan: readback: %w", err)
	}
	return nil
}

// Cleanup releases everything. Idempotent; safe after a failed Init.
func (w *Warper) Cleanup() {
	if w.device != nil {
		if w.bindGroup != nil {
			w.device.DestroyBindGroup(w.bindGroup)
			w.bindGroup = nil
		}
		for _, buf := range []*hal.Buffer{&w.uniformBuf, &w.srcBuf, &w.dstBuf, &w.stagingBuf} {
			if *buf != nil {
				w.device.DestroyBuffer(*buf)
				*buf = nil
			}
		}
		if w.pipeline != nil {
			w.device.DestroyComputePipeline(w.pipeline)
			w.pipeline = nil
		}
		if w.pipeLayout != nil {
			w.device.DestroyPipelineLayout(w.pipeLayout)
			w.pipeLayout = nil
		}
		if w.bindLayout != nil {
			w.device.DestroyBindGroupLayout(w.bindLayout)
			w.bindLayout = nil
		}
		if w.shader != nil {
			w.device.DestroyShaderModule(w.shader)
			w.shader = nil
		}
		if !w.externalDevice {
			w.device.Destroy()
		}
		w.device = nil
		w.queue = nil
	}
	if w.instance != nil {
		w.instance.Destroy()
		w.instance = nil
	}
	w.out = nil
	w.packed = nil
	w.externalDevice = false
	w.status = backend.StatusCleanedUp
}

// packParams serializes a snapshot into the shader's uniform layout.
// A non-finite matrix is encoded as-is: the shader's denominator guard
// and range checks turn it into a fully transparent output, matching
// the CPU reference.
func packParams(snap *keystone.Snapshot, width, height int) []byte {
	buf := make([]byte, paramsSize)
	putRow := func(off int, a, b, c float64) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(a)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(b)))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(float32(c)))
	}
	m := snap.Matrix
	putRow(0, m[0], m[1], m[2])
	putRow(16, m[3], m[4], m[5])
	putRow(32, m[6], m[7], m[8])
	for i, c := range snap.Corners {
		off := 48 + i*8
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(c.X)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(c.Y)))
	}
	binary.LittleEndian.PutUint32(buf[80:], uint32(width))
	binary.LittleEndian.PutUint32(buf[84:], uint32(height))
	return buf
}

// packFrame flattens a frame into tightly packed RGBA words, dropping
// any row padding.
func packFrame(f *keystone.Frame, dst []byte) {
	rowBytes := f.Width * 4
	for y := 0; y < f.Height; y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], f.Data[y*f.Stride:y*f.Stride+rowBytes])
	}
}

// unpackFrame copies packed words back into the output frame.
func unpackFrame(src []byte, f *keystone.Frame) {
	rowBytes := f.Width * 4
	for y := 0; y < f.Height; y++ {
		copy(f.Data[y*f.Stride:y*f.Stride+rowBytes], src[y*rowBytes:(y+1)*rowBytes])
	}
}
