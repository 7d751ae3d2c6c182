// Package gles is a cgo-free libGLESv2 binding loaded at runtime
// through purego. Only the subset used by the correction shaders is
// bound: texture upload, FBO readback, shader compilation for the
// fragment path, and compute dispatch for the ES 3.1 path.
//
// All calls require a current EGL context on the calling thread.
package gles

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// GL constants (from GLES3/gl31.h).
const (
	NoError = 0

	VersionEnum        = 0x1F02
	Texture2D          = 0x0DE1
	Texture0           = 0x84C0
	RGBA               = 0x1908
	RGBA8              = 0x8058
	UnsignedByte       = 0x1401
	Float              = 0x1406
	TextureMinFilter   = 0x2801
	TextureMagFilter   = 0x2800
	TextureWrapS       = 0x2802
	TextureWrapT       = 0x2803
	Linear             = 0x2601
	ClampToEdge        = 0x812F
	Framebuffer        = 0x8D40
	ColorAttachment0   = 0x8CE0
	FramebufferComplete = 0x8CD5
	ColorBufferBit     = 0x4000

	VertexShader   = 0x8B31
	FragmentShader = 0x8B30
	ComputeShader  = 0x91B9
	CompileStatus  = 0x8B81
	LinkStatus     = 0x8B82

	ArrayBuffer   = 0x8892
	StaticDraw    = 0x88E4
	TriangleStrip = 0x0005

	WriteOnly = 0x88B9
	ReadOnly  = 0x88B8

	ShaderImageAccessBarrierBit = 0x00000020
	TextureFetchBarrierBit      = 0x00000008
	FramebufferBarrierBit       = 0x00000400

	MaxComputeWorkGroupCountEnum = 0x91BE
)

var (
	loadOnce sync.Once
	loadErr  error

	getString     func(uint32) string
	getError      func() uint32
	getIntegeriV  func(uint32, uint32, *int32)
	viewport      func(int32, int32, int32, int32)
	clearColor    func(float32, float32, float32, float32)
	clear         func(uint32)
	finish        func()

	createShader     func(uint32) uint32
	shaderSource     func(uint32, int32, **byte, *int32)
	compileShader    func(uint32)
	getShaderiv      func(uint32, uint32, *int32)
	getShaderInfoLog func(uint32, int32, *int32, *byte)
	deleteShader     func(uint32)

	createProgram     func() uint32
	attachShader      func(uint32, uint32)
	linkProgram       func(uint32)
	getProgramiv      func(uint32, uint32, *int32)
	getProgramInfoLog func(uint32, int32, *int32, *byte)
	useProgram        func(uint32)
	deleteProgram     func(uint32)

	getUniformLocation func(uint32, *byte) int32
	getAttribLocation  func(uint32, *byte) int32
	uniform1i          func(int32, int32)
	uniform2f          func(int32, float32, float32)
	uniform2ui         func(int32, uint32, uint32)
	uniformMatrix3fv   func(int32, int32, bool, *float32)
	uniform2fv         func(int32, int32, *float32)

	genTextures    func(int32, *uint32)
	bindTexture    func(uint32, uint32)
	activeTexture  func(uint32)
	texImage2D     func(uint32, int32, int32, int32, int32, int32, uint32, uint32, *byte)
	texStorage2D   func(uint32, int32, uint32, int32, int32)
	texSubImage2D  func(uint32, int32, int32, int32, int32, int32, uint32, uint32, *byte)
	texParameteri  func(uint32, uint32, int32)
	deleteTextures func(int32, *uint32)

	genFramebuffers        func(int32, *uint32)
	bindFramebuffer        func(uint32, uint32)
	framebufferTexture2D   func(uint32, uint32, uint32, uint32, int32)
	checkFramebufferStatus func(uint32) uint32
	deleteFramebuffers     func(int32, *uint32)
	readPixels             func(int32, int32, int32, int32, uint32, uint32, *byte)

	genBuffers              func(int32, *uint32)
	bindBuffer              func(uint32, uint32)
	bufferData              func(uint32, int, *byte, uint32)
	deleteBuffers           func(int32, *uint32)
	vertexAttribPointer     func(uint32, int32, uint32, bool, int32, uintptr)
	enableVertexAttribArray func(uint32)
	drawArrays              func(uint32, int32, int32)

	bindImageTexture func(uint32, uint32, int32, bool, int32, uint32, uint32)
	dispatchCompute  func(uint32, uint32, uint32)
	memoryBarrier    func(uint32)
)

// Load opens libGLESv2 and resolves the entry points. Idempotent.
func Load() error {
	loadOnce.Do(func() {
		lib, err := dlopen("libGLESv2.so.2", "libGLESv2.so")
		if err != nil {
			loadErr = fmt.Errorf("gles: %w", err)
			return
		}
		purego.RegisterLibFunc(&getString, lib, "glGetString")
		purego.RegisterLibFunc(&getError, lib, "glGetError")
		purego.RegisterLibFunc(&getIntegeriV, lib, "glGetIntegeri_v")
		purego.RegisterLibFunc(&viewport, lib, "glViewport")
		purego.RegisterLibFunc(&clearColor, lib, "glClearColor")
		purego.RegisterLibFunc(&clear, lib, "glClear")
		purego.RegisterLibFunc(&finish, lib, "glFinish")

		purego.RegisterLibFunc(&createShader, lib, "glCreateShader")
		purego.RegisterLibFunc(&shaderSource, lib, "glShaderSource")
		purego.RegisterLibFunc(&compileShader, lib, "glCompileShader")
		purego.RegisterLibFunc(&getShaderiv, lib, "glGetShaderiv")
		purego.RegisterLibFunc(&getShaderInfoLog, lib, "glGetShaderInfoLog")
		purego.RegisterLibFunc(&deleteShader, lib, "glDeleteShader")

		purego.RegisterLibFunc(&createProgram, lib, "glCreateProgram")
		purego.RegisterLibFunc(&attachShader, lib, "glAttachShader")
		purego.RegisterLibFunc(&linkProgram, lib, "glLinkProgram")
		purego.RegisterLibFunc(&getProgramiv, lib, "glGetProgramiv")
		purego.RegisterLibFunc(&getProgramInfoLog, lib, "glGetProgramInfoLog")
		purego.RegisterLibFunc(&useProgram, lib, "glUseProgram")
		purego.RegisterLibFunc(&deleteProgram, lib, "glDeleteProgram")

		purego.RegisterLibFunc(&getUniformLocation, lib, "glGetUniformLocation")
		purego.RegisterLibFunc(&getAttribLocation, lib, "glGetAttribLocation")
		purego.RegisterLibFunc(&uniform1i, lib, "glUniform1i")
		purego.RegisterLibFunc(&uniform2f, lib, "glUniform2f")
		purego.RegisterLibFunc(&uniform2ui, lib, "glUniform2ui")
		purego.RegisterLibFunc(&uniformMatrix3fv, lib, "glUniformMatrix3fv")
		purego.RegisterLibFunc(&uniform2fv, lib, "glUniform2fv")

		purego.RegisterLibFunc(&genTextures, lib, "glGenTextures")
		purego.RegisterLibFunc(&bindTexture, lib, "glBindTexture")
		purego.RegisterLibFunc(&activeTexture, lib, "glActiveTexture")
		purego.RegisterLibFunc(&texImage2D, lib, "glTexImage2D")
		purego.RegisterLibFunc(&texStorage2D, lib, "glTexStorage2D")
		purego.RegisterLibFunc(&texSubImage2D, lib, "glTexSubImage2D")
		purego.RegisterLibFunc(&texParameteri, lib, "glTexParameteri")
		purego.RegisterLibFunc(&deleteTextures, lib, "glDeleteTextures")

		purego.RegisterLibFunc(&genFramebuffers, lib, "glGenFramebuffers")
		purego.RegisterLibFunc(&bindFramebuffer, lib, "glBindFramebuffer")
		purego.RegisterLibFunc(&framebufferTexture2D, lib, "glFramebufferTexture2D")
		purego.RegisterLibFunc(&checkFramebufferStatus, lib, "glCheckFramebufferStatus")
		purego.RegisterLibFunc(&deleteFramebuffers, lib, "glDeleteFramebuffers")
		purego.RegisterLibFunc(&readPixels, lib, "glReadPixels")

		purego.RegisterLibFunc(&genBuffers, lib, "glGenBuffers")
		purego.RegisterLibFunc(&bindBuffer, lib, "glBindBuffer")
		purego.RegisterLibFunc(&bufferData, lib, "glBufferData")
		purego.RegisterLibFunc(&deleteBuffers, lib, "glDeleteBuffers")
		purego.RegisterLibFunc(&vertexAttribPointer, lib, "glVertexAttribPointer")
		purego.RegisterLibFunc(&enableVertexAttribArray, lib, "glEnableVertexAttribArray")
		purego.RegisterLibFunc(&drawArrays, lib, "glDrawArrays")

		purego.RegisterLibFunc(&bindImageTexture, lib, "glBindImageTexture")
		purego.RegisterLibFunc(&dispatchCompute, lib, "glDispatchCompute")
		purego.RegisterLibFunc(&memoryBarrier, lib, "glMemoryBarrier")
	})
	return loadErr
}

func dlopen(names ...string) (uintptr, error) {
	var firstErr error
	for _, name := range names {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return lib, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return 0, firstErr
}

func cstr(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

// GetVersionString returns the GL_VERSION string of the current context.
func GetVersionString() string { return getString(VersionEnum) }

// VersionOf parses a GLES version string ("OpenGL ES 3.2 Mesa ...").
func VersionOf(s string) (major, minor int) {
	var rest string
	if _, err := fmt.Sscanf(s, "OpenGL ES %d.%d%s", &major, &minor, &rest); err != nil {
		fmt.Sscanf(s, "OpenGL ES %d.%d", &major, &minor)
	}
	return major, minor
}

// Version returns the current context's ES version.
func Version() (major, minor int) { return VersionOf(GetVersionString()) }

// MaxComputeWorkGroupCount returns the compute work-group limit along
// one axis (0=x, 1=y, 2=z). Zero on drivers that stub compute out.
func MaxComputeWorkGroupCount(axis uint32) int {
	var v int32
	getIntegeriV(MaxComputeWorkGroupCountEnum, axis, &v)
	return int(v)
}

// CheckError drains the GL error flag and wraps a non-zero code.
func CheckError(op string) error {
	if code := getError(); code != NoError {
		return fmt.Errorf("gles: %s failed (0x%04x)", op, code)
	}
	return nil
}

// CompileShader compiles one shader stage and returns its name.
func CompileShader(kind uint32, source string) (uint32, error) {
	shader := createShader(kind)
	if shader == 0 {
		return 0, CheckError("glCreateShader")
	}
	src := cstr(source)
	length := int32(len(source))
	shaderSource(shader, 1, &src, &length)
	compileShader(shader)

	var status int32
	getShaderiv(shader, CompileStatus, &status)
	if status == 0 {
		log := make([]byte, 1024)
		var n int32
		getShaderInfoLog(shader, int32(len(log)), &n, &log[0])
		deleteShader(shader)
		return 0, fmt.Errorf("gles: shader compile: %s", strings.TrimSpace(string(log[:n])))
	}
	return shader, nil
}

// LinkProgram links the given stages into a program, deleting the
// stages afterwards regardless of outcome.
func LinkProgram(shaders ...uint32) (uint32, error) {
	program := createProgram()
	if program == 0 {
		return 0, CheckError("glCreateProgram")
	}
	for _, sh := range shaders {
		attachShader(program, sh)
	}
	linkProgram(program)
	for _, sh := range shaders {
		deleteShader(sh)
	}

	var status int32
	getProgramiv(program, LinkStatus, &status)
	if status == 0 {
		log := make([]byte, 1024)
		var n int32
		getProgramInfoLog(program, int32(len(log)), &n, &log[0])
		deleteProgram(program)
		return 0, fmt.Errorf("gles: program link: %s", strings.TrimSpace(string(log[:n])))
	}
	return program, nil
}

// UseProgram makes a program current (0 unbinds).
func UseProgram(p uint32) { useProgram(p) }

// DeleteProgram releases a program (0 is a no-op).
func DeleteProgram(p uint32) {
	if p != 0 {
		deleteProgram(p)
	}
}

// UniformLocation resolves a uniform by name (-1 when absent).
func UniformLocation(program uint32, name string) int32 {
	return getUniformLocation(program, cstr(name))
}

// AttribLocation resolves a vertex attribute by name (-1 when absent).
func AttribLocation(program uint32, name string) int32 {
	return getAttribLocation(program, cstr(name))
}

func Uniform1i(loc, v int32)                  { uniform1i(loc, v) }
func Uniform2f(loc int32, x, y float32)       { uniform2f(loc, x, y) }
func Uniform2ui(loc int32, x, y uint32)       { uniform2ui(loc, x, y) }
func Uniform2fv(loc int32, pairs []float32)   { uniform2fv(loc, int32(len(pairs)/2), &pairs[0]) }
func UniformMatrix3(loc int32, m *[9]float32) { uniformMatrix3fv(loc, 1, false, &m[0]) }

// NewTexture2D allocates an RGBA8 texture with linear filtering and
// edge clamping, the sampling mode the correction math assumes.
func NewTexture2D(width, height int, pixels []byte) uint32 {
	var tex uint32
	genTextures(1, &tex)
	bindTexture(Texture2D, tex)
	texParameteri(Texture2D, TextureMinFilter, Linear)
	texParameteri(Texture2D, TextureMagFilter, Linear)
	texParameteri(Texture2D, TextureWrapS, ClampToEdge)
	texParameteri(Texture2D, TextureWrapT, ClampToEdge)
	var ptr *byte
	if len(pixels) > 0 {
		ptr = &pixels[0]
	}
	texImage2D(Texture2D, 0, RGBA, int32(width), int32(height), 0, RGBA, UnsignedByte, ptr)
	return tex
}

// NewStorageTexture2D allocates an immutable RGBA8 texture usable as a
// compute image binding.
func NewStorageTexture2D(width, height int) uint32 {
	var tex uint32
	genTextures(1, &tex)
	bindTexture(Texture2D, tex)
	texStorage2D(Texture2D, 1, RGBA8, int32(width), int32(height))
	texParameteri(Texture2D, TextureMinFilter, Linear)
	texParameteri(Texture2D, TextureMagFilter, Linear)
	texParameteri(Texture2D, TextureWrapS, ClampToEdge)
	texParameteri(Texture2D, TextureWrapT, ClampToEdge)
	return tex
}

// UploadTexture2D replaces the full contents of a texture.
func UploadTexture2D(tex uint32, width, height int, pixels []byte) {
	bindTexture(Texture2D, tex)
	texSubImage2D(Texture2D, 0, 0, 0, int32(width), int32(height), RGBA, UnsignedByte, &pixels[0])
}

// DeleteTexture releases a texture (0 is a no-op).
func DeleteTexture(tex uint32) {
	if tex != 0 {
		deleteTextures(1, &tex)
	}
}

// BindTextureUnit binds a texture to a unit for sampling.
func BindTextureUnit(unit uint32, tex uint32) {
	activeTexture(Texture0 + unit)
	bindTexture(Texture2D, tex)
}

// NewFramebuffer builds an FBO with the texture as color attachment 0.
func NewFramebuffer(tex uint32) (uint32, error) {
	var fbo uint32
	genFramebuffers(1, &fbo)
	bindFramebuffer(Framebuffer, fbo)
	framebufferTexture2D(Framebuffer, ColorAttachment0, Texture2D, tex, 0)
	if status := checkFramebufferStatus(Framebuffer); status != FramebufferComplete {
		deleteFramebuffers(1, &fbo)
		return 0, fmt.Errorf("gles: framebuffer incomplete (0x%04x)", status)
	}
	return fbo, nil
}

// BindFramebuffer binds an FBO (0 restores the default).
func BindFramebuffer(fbo uint32) { bindFramebuffer(Framebuffer, fbo) }

// DeleteFramebuffer releases an FBO (0 is a no-op).
func DeleteFramebuffer(fbo uint32) {
	if fbo != 0 {
		deleteFramebuffers(1, &fbo)
	}
}

// ReadPixelsRGBA reads the bound framebuffer into dst (len >= w*h*4).
func ReadPixelsRGBA(width, height int, dst []byte) {
	readPixels(0, 0, int32(width), int32(height), RGBA, UnsignedByte, &dst[0])
}

// NewArrayBuffer uploads static vertex data.
func NewArrayBuffer(data []float32) uint32 {
	var buf uint32
	genBuffers(1, &buf)
	bindBuffer(ArrayBuffer, buf)
	bufferData(ArrayBuffer, len(data)*4, (*byte)(unsafe.Pointer(&data[0])), StaticDraw)
	return buf
}

// BindArrayBuffer binds a VBO.
func BindArrayBuffer(buf uint32) { bindBuffer(ArrayBuffer, buf) }

// DeleteBuffer releases a VBO (0 is a no-op).
func DeleteBuffer(buf uint32) {
	if buf != 0 {
		deleteBuffers(1, &buf)
	}
}

// VertexAttrib configures one float attribute on the bound VBO.
func VertexAttrib(index uint32, size int, stride, offset int) {
	vertexAttribPointer(index, int32(size), Float, false, int32(stride), uintptr(offset))
	enableVertexAttribArray(index)
}

// DrawTriangleStrip draws count vertices from the bound attributes.
func DrawTriangleStrip(count int) { drawArrays(TriangleStrip, 0, int32(count)) }

// BindImage binds a texture level as a compute image.
func BindImage(unit uint32, tex uint32, access uint32) {
	bindImageTexture(unit, tex, 0, false, 0, access, RGBA8)
}

// dispatchBarriers covers every way the kernel's image stores get read
// back: further image loads, texture fetches, and glReadPixels from a
// framebuffer the image is attached to. ES 3.1 requires the
// framebuffer bit for the last one.
const dispatchBarriers = ShaderImageAccessBarrierBit |
	TextureFetchBarrierBit | FramebufferBarrierBit

// DispatchCompute launches work groups and inserts the barrier the
// following readback needs.
func DispatchCompute(groupsX, groupsY uint32) {
	dispatchCompute(groupsX, groupsY, 1)
	memoryBarrier(dispatchBarriers)
}

// SetViewport sets a full-size viewport.
func SetViewport(width, height int) { viewport(0, 0, int32(width), int32(height)) }

// ClearTransparent clears the bound framebuffer to transparent black.
func ClearTransparent() {
	clearColor(0, 0, 0, 0)
	clear(ColorBufferBit)
}

// Finish blocks until all submitted GL work completes.
func Finish() { finish() }
