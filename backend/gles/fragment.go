package gles

import (
	"fmt"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"
	"github.com/openbeam/keystone/internal/egl"
	"github.com/openbeam/keystone/internal/gles"
)

// The fragment path targets #version 100 so it runs on every ES 2.0
// driver; ES 3.x contexts accept it unchanged.
const (
	vertexShaderSource = `#version 100
attribute vec2 a_pos;
varying vec2 v_uv;
void main() {
    v_uv = a_pos * 0.5 + 0.5;
    gl_Position = vec4(a_pos, 0.0, 1.0);
}
`

	fragmentShaderSource = `#version 100
precision highp float;
varying vec2 v_uv;
uniform sampler2D src_tex;
uniform mat3 inv_matrix;
uniform vec2 corners[4];

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
    vec4 color = vec4(0.0);
    if (inside_quad(v_uv)) {
        vec3 s = inv_matrix * vec3(v_uv, 1.0);
        if (abs(s.z) > 1e-12) {
            vec2 sp = s.xy / s.z;
            if (sp.x >= 0.0 && sp.x <= 1.0 && sp.y >= 0.0 && sp.y <= 1.0) {
                color = texture2D(src_tex, sp);
            }
        }
    }
    gl_FragColor = color;
}
`
)

// fullscreenQuad is a clip-space triangle strip covering the viewport.
var fullscreenQuad = []float32{-1, -1, 1, -1, -1, 1, 1, 1}

// FragmentWarper is the ES 2.0 fragment-shader correction backend, the
// lowest-priority GPU path.
type FragmentWarper struct {
	ctx     *egl.Context
	program uint32
	srcTex  uint32
	dstTex  uint32
	fbo     uint32
	vbo     uint32

	params   paramLocations
	posAttr  uint32
	texLoc   int32

	width, height int
	tight         []byte
	out           *keystone.Frame
	status        backend.Status
}

var _ backend.Backend = (*FragmentWarper)(nil)

// NewFragment returns an uninitialized fragment warper.
func NewFragment() *FragmentWarper {
	return &FragmentWarper{status: backend.StatusUninitialized}
}

func (f *FragmentWarper) Name() string           { return backend.BackendGLESFragment }
func (f *FragmentWarper) Status() backend.Status { return f.status }
func (f *FragmentWarper) Supported() bool        { return libsPresent() }

// Init creates an ES 2 pbuffer context and builds the warp program.
func (f *FragmentWarper) Init(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("gles: invalid size %dx%d", width, height)
	}
	f.status = backend.StatusInitializing

	ctx, err := egl.NewPbufferContext(2)
	if err != nil {
		f.status = backend.StatusFailed
		return fmt.Errorf("gles: %w: %v", backend.ErrUnsupported, err)
	}
	f.ctx = ctx

	vs, err := gles.CompileShader(gles.VertexShader, vertexShaderSource)
	if err != nil {
		f.status = backend.StatusFailed
		return err
	}
	fs, err := gles.CompileShader(gles.FragmentShader, fragmentShaderSource)
	if err != nil {
		f.status = backend.StatusFailed
		return err
	}
	program, err := gles.LinkProgram(vs, fs)
	if err != nil {
		f.status = backend.StatusFailed
		return err
	}
	f.program = program
	f.params = resolveParams(program)
	f.texLoc = gles.UniformLocation(program, "src_tex")
	attr := gles.AttribLocation(program, "a_pos")
	if attr < 0 {
		f.status = backend.StatusFailed
		return fmt.Errorf("gles: vertex attribute a_pos not found")
	}
	f.posAttr = uint32(attr)

	f.srcTex = gles.NewTexture2D(width, height, nil)
	f.dstTex = gles.NewTexture2D(width, height, nil)
	fbo, err := gles.NewFramebuffer(f.dstTex)
	if err != nil {
		f.status = backend.StatusFailed
		return err
	}
	f.fbo = fbo
	f.vbo = gles.NewArrayBuffer(fullscreenQuad)

	f.width, f.height = width, height
	f.tight = make([]byte, width*height*4)
	f.out = keystone.NewFrame(width, height)
	f.status = backend.StatusReady
	keystone.Logger().Info("gles fragment warper ready", "width", width, "height", height)
	return nil
}

// Update installs new correction parameters.
func (f *FragmentWarper) Update(snap *keystone.Snapshot) error {
	if f.status != backend.StatusReady && f.status != backend.StatusApplying {
		return backend.ErrNotInitialized
	}
	if snap == nil {
		return backend.ErrDegenerateGeometry
	}
	gles.UseProgram(f.program)
	f.params.upload(snap)
	return nil
}

// Apply draws one corrected frame into the offscreen target and reads
// it back.
func (f *FragmentWarper) Apply(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error) {
	if f.status != backend.StatusReady {
		return nil, backend.ErrNotInitialized
	}
	if snap == nil || !snap.Matrix.IsFinite() {
		return nil, backend.ErrDegenerateGeometry
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("gles: %w", err)
	}
	if src.Width != f.width || src.Height != f.height {
		return nil, fmt.Errorf("gles: frame size %dx%d does not match %dx%d",
			src.Width, src.Height, f.width, f.height)
	}
	f.status = backend.StatusApplying

	gles.UploadTexture2D(f.srcTex, f.width, f.height, tightPixels(src, f.tight))

	gles.BindFramebuffer(f.fbo)
	gles.SetViewport(f.width, f.height)
	gles.ClearTransparent()

	gles.UseProgram(f.program)
	f.params.upload(snap)
	gles.Uniform1i(f.texLoc, 0)
	gles.BindTextureUnit(0, f.srcTex)

	gles.BindArrayBuffer(f.vbo)
	gles.VertexAttrib(f.posAttr, 2, 0, 0)
	gles.DrawTriangleStrip(4)

	gles.ReadPixelsRGBA(f.width, f.height, f.out.Data)
	gles.BindFramebuffer(0)

	if err := gles.CheckError("fragment warp"); err != nil {
		f.status = backend.StatusFailed
		return nil, fmt.Errorf("%w: %v", backend.ErrDeviceLost, err)
	}
	f.status = backend.StatusReady
	return f.out, nil
}

// Cleanup releases the GL objects and the context. Idempotent.
func (f *FragmentWarper) Cleanup() {
	if f.ctx != nil {
		gles.DeleteBuffer(f.vbo)
		gles.DeleteFramebuffer(f.fbo)
		gles.DeleteTexture(f.srcTex)
		gles.DeleteTexture(f.dstTex)
		gles.DeleteProgram(f.program)
		f.ctx.Destroy()
		f.ctx = nil
	}
	f.vbo, f.fbo, f.srcTex, f.dstTex, f.program = 0, 0, 0, 0, 0
	f.out = nil
	f.tight = nil
	f.status = backend.StatusCleanedUp
}
