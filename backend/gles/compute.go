package gles

import (
	"fmt"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"
	"github.com/openbeam/keystone/internal/egl"
	"github.com/openbeam/keystone/internal/gles"
)

// computeShaderSource is the ES 3.1 warp kernel. Sampling goes through
// textureLod (no derivatives in compute); the output is an rgba8 image.
const computeShaderSource = `#version 310 es
precision highp float;
precision highp image2D;
layout(local_size_x = 16, local_size_y = 16) in;
layout(rgba8, binding = 0) writeonly uniform image2D dst_image;
uniform sampler2D src_tex;
uniform mat3 inv_matrix;
uniform vec2 corners[4];
uniform vec2 out_size;

float edge_fn(vec2 a, vec2 b, vec2 p) {
    return (b.x - a.x) * (p.y - a.y) - (b.y - a.y) * (p.x - a.x);
}

bool inside_quad(vec2 p) {
    float e0 = edge_fn(corners[0], corners[1], p);
    float e1 = edge_fn(corners[1], corners[3], p);
    float e2 = edge_fn(corners[3], corners[2], p);
    float e3 = edge_fn(corners[2], corners[0], p);
    bool pos = e0 >= 0.0 && e1 >= 0.0 && e2 >= 0.0 && e3 >= 0.0;
    bool neg = e0 <= 0.0 && e1 <= 0.0 && e2 <= 0.0 && e3 <= 0.0;
    return pos || neg;
}

void main() {
    ivec2 gid = ivec2(gl_GlobalInvocationID.xy);
    if (gid.x >= int(out_size.x) || gid.y >= int(out_size.y)) {
        return;
    }
    vec2 p = (vec2(gid) + 0.5) / out_size;
    vec4 color = vec4(0.0);
    if (inside_quad(p)) {
        vec3 s = inv_matrix * vec3(p, 1.0);
        if (abs(s.z) > 1e-12) {
            vec2 sp = s.xy / s.z;
            if (sp.x >= 0.0 && sp.x <= 1.0 && sp.y >= 0.0 && sp.y <= 1.0) {
                color = textureLod(src_tex, sp, 0.0);
            }
        }
    }
    imageStore(dst_image, gid, color);
}
`

// ComputeWarper is the ES 3.1 compute-shader correction backend.
type ComputeWarper struct {
	ctx     *egl.Context
	program uint32
	srcTex  uint32
	dstTex  uint32
	fbo     uint32

	params  paramLocations
	sizeLoc int32

	width, height int
	tight         []byte // stride-free upload scratch
	out           *keystone.Frame
	status        backend.Status
}

var _ backend.Backend = (*ComputeWarper)(nil)

// NewCompute returns an uninitialized compute warper.
func NewCompute() *ComputeWarper {
	return &ComputeWarper{status: backend.StatusUninitialized}
}

func (c *ComputeWarper) Name() string           { return backend.BackendGLESCompute }
func (c *ComputeWarper) Status() backend.Status { return c.status }
func (c *ComputeWarper) Supported() bool        { return libsPresent() }

// Init creates an ES 3 pbuffer context and verifies the driver carries
// real compute support (>= 3.1 with a non-zero work-group limit).
func (c *ComputeWarper) Init(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("gles: invalid size %dx%d", width, height)
	}
	c.status = backend.StatusInitializing

	ctx, err := egl.NewPbufferContext(3)
	if err != nil {
		c.status = backend.StatusFailed
		return fmt.Errorf("gles: %w: %v", backend.ErrUnsupported, err)
	}
	c.ctx = ctx

	major, minor := gles.Version()
	if major < 3 || (major == 3 && minor < 1) {
		c.status = backend.StatusFailed
		return fmt.Errorf("gles: %w: ES %d.%d has no compute", backend.ErrUnsupported, major, minor)
	}
	if gles.MaxComputeWorkGroupCount(0) == 0 {
		c.status = backend.StatusFailed
		return fmt.Errorf("gles: %w: zero compute work-group limit", backend.ErrUnsupported)
	}

	shader, err := gles.CompileShader(gles.ComputeShader, computeShaderSource)
	if err != nil {
		c.status = backend.StatusFailed
		return err
	}
	program, err := gles.LinkProgram(shader)
	if err != nil {
		c.status = backend.StatusFailed
		return err
	}
	c.program = program
	c.params = resolveParams(program)
	c.sizeLoc = gles.UniformLocation(program, "out_size")

	c.srcTex = gles.NewTexture2D(width, height, nil)
	c.dstTex = gles.NewStorageTexture2D(width, height)
	fbo, err := gles.NewFramebuffer(c.dstTex)
	if err != nil {
		c.status = backend.StatusFailed
		return err
	}
	c.fbo = fbo

	c.width, c.height = width, height
	c.tight = make([]byte, width*height*4)
	c.out = keystone.NewFrame(width, height)
	c.status = backend.StatusReady
	keystone.Logger().Info("gles compute warper ready",
		"width", width, "height", height, "es", fmt.Sprintf("%d.%d", major, minor))
	return nil
}

// Update installs new correction parameters.
func (c *ComputeWarper) Update(snap *keystone.Snapshot) error {
	if c.status != backend.StatusReady && c.status != backend.StatusApplying {
		return backend.ErrNotInitialized
	}
	if snap == nil {
		return backend.ErrDegenerateGeometry
	}
	gles.UseProgram(c.program)
	c.params.upload(snap)
	return nil
}

// Apply warps one frame through the compute kernel.
func (c *ComputeWarper) Apply(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error) {
	if c.status != backend.StatusReady {
		return nil, backend.ErrNotInitialized
	}
	if snap == nil || !snap.Matrix.IsFinite() {
		return nil, backend.ErrDegenerateGeometry
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("gles: %w", err)
	}
	if src.Width != c.width || src.Height != c.height {
		return nil, fmt.Errorf("gles: frame size %dx%d does not match %dx%d",
			src.Width, src.Height, c.width, c.height)
	}
	c.status = backend.StatusApplying

	gles.UploadTexture2D(c.srcTex, c.width, c.height, tightPixels(src, c.tight))

	gles.UseProgram(c.program)
	c.params.upload(snap)
	gles.Uniform2f(c.sizeLoc, float32(c.width), float32(c.height))
	gles.Uniform1i(gles.UniformLocation(c.program, "src_tex"), 0)
	gles.BindTextureUnit(0, c.srcTex)
	gles.BindImage(0, c.dstTex, gles.WriteOnly)

	gles.DispatchCompute(uint32(c.width+15)/16, uint32(c.height+15)/16)

	gles.BindFramebuffer(c.fbo)
	gles.ReadPixelsRGBA(c.width, c.height, c.out.Data)
	gles.BindFramebuffer(0)

	if err := gles.CheckError("compute warp"); err != nil {
		c.status = backend.StatusFailed
		return nil, fmt.Errorf("%w: %v", backend.ErrDeviceLost, err)
	}
	c.status = backend.StatusReady
	return c.out, nil
}

// Cleanup releases the GL objects and the context. Idempotent.
func (c *ComputeWarper) Cleanup() {
	if c.ctx != nil {
		gles.DeleteFramebuffer(c.fbo)
		gles.DeleteTexture(c.srcTex)
		gles.DeleteTexture(c.dstTex)
		gles.DeleteProgram(c.program)
		c.ctx.Destroy()
		c.ctx = nil
	}
	c.fbo, c.srcTex, c.dstTex, c.program = 0, 0, 0, 0
	c.out = nil
	c.tight = nil
	c.status = backend.StatusCleanedUp
}

// tightPixels returns the frame's pixels with row padding removed,
// reusing scratch when repacking is needed.
func tightPixels(f *keystone.Frame, scratch []byte) []byte {
	rowBytes := f.Width * 4
	if f.Stride == rowBytes {
		return f.Data[:f.Height*rowBytes]
	}
	for y := 0; y < f.Height; y++ {
		copy(scratch[y*rowBytes:(y+1)*rowBytes], f.Data[y*f.Stride:y*f.Stride+rowBytes])
	}
	return scratch
}
