// Package egl is a minimal cgo-free libEGL binding loaded at runtime
// through purego. It covers exactly what headless GLES correction
// needs: a pbuffer context on the default display plus extension and
// version queries.
package egl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

// EGL constants (from EGL/egl.h).
const (
	DefaultDisplay uintptr = 0
	NoDisplay      uintptr = 0
	NoSurface      uintptr = 0
	NoContext      uintptr = 0
	NoConfig       uintptr = 0

	Success        = 0x3000
	None           = 0x3038
	OpenGLESAPI    = 0x30A0
	OpenGLES2Bit   = 0x0004
	OpenGLES3Bit   = 0x0040
	SurfaceType    = 0x3033
	PbufferBit     = 0x0001
	RenderableType = 0x3040
	RedSize        = 0x3024
	GreenSize      = 0x3023
	BlueSize       = 0x3022
	AlphaSize      = 0x3021
	Width          = 0x3057
	Height         = 0x3056
	Extensions     = 0x3055

	ContextClientVersion = 0x3098
)

var (
	loadOnce sync.Once
	loadErr  error

	getDisplay           func(uintptr) uintptr
	initialize           func(uintptr, *int32, *int32) bool
	terminate            func(uintptr) bool
	bindAPI              func(uint32) bool
	chooseConfig         func(uintptr, *int32, *uintptr, int32, *int32) bool
	createPbufferSurface func(uintptr, uintptr, *int32) uintptr
	createContext        func(uintptr, uintptr, uintptr, *int32) uintptr
	makeCurrent          func(uintptr, uintptr, uintptr, uintptr) bool
	destroySurface       func(uintptr, uintptr) bool
	destroyContext       func(uintptr, uintptr) bool
	queryString          func(uintptr, int32) string
	getError             func() int32
)

// Load opens libEGL and resolves the entry points. Idempotent; safe to
// call from every code path that might be first.
func Load() error {
	loadOnce.Do(func() {
		lib, err := dlopen("libEGL.so.1", "libEGL.so")
		if err != nil {
			loadErr = fmt.Errorf("egl: %w", err)
			return
		}
		purego.RegisterLibFunc(&getDisplay, lib, "eglGetDisplay")
		purego.RegisterLibFunc(&initialize, lib, "eglInitialize")
		purego.RegisterLibFunc(&terminate, lib, "eglTerminate")
		purego.RegisterLibFunc(&bindAPI, lib, "eglBindAPI")
		purego.RegisterLibFunc(&chooseConfig, lib, "eglChooseConfig")
		purego.RegisterLibFunc(&createPbufferSurface, lib, "eglCreatePbufferSurface")
		purego.RegisterLibFunc(&createContext, lib, "eglCreateContext")
		purego.RegisterLibFunc(&makeCurrent, lib, "eglMakeCurrent")
		purego.RegisterLibFunc(&destroySurface, lib, "eglDestroySurface")
		purego.RegisterLibFunc(&destroyContext, lib, "eglDestroyContext")
		purego.RegisterLibFunc(&queryString, lib, "eglQueryString")
		purego.RegisterLibFunc(&getError, lib, "eglGetError")
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

func eglErr(op string) error {
	return fmt.Errorf("egl: %s failed (0x%04x)", op, getError())
}

// Context is an initialized EGL display with a current pbuffer context.
type Context struct {
	Display uintptr
	Surface uintptr
	Handle  uintptr

	ESVersion  int
	extensions string
}

// NewPbufferContext initializes the default display and creates a
// 16×16 pbuffer context for the requested ES major version, leaving it
// current on the calling goroutine's thread. Callers that keep the
// context across calls must stay on a locked OS thread.
func NewPbufferContext(esVersion int) (*Context, error) {
	if err := Load(); err != nil {
		return nil, err
	}

	display := getDisplay(DefaultDisplay)
	if display == NoDisplay {
		return nil, eglErr("eglGetDisplay")
	}
	var major, minor int32
	if !initialize(display, &major, &minor) {
		return nil, eglErr("eglInitialize")
	}
	if !bindAPI(OpenGLESAPI) {
		terminate(display)
		return nil, eglErr("eglBindAPI")
	}

	renderable := int32(OpenGLES2Bit)
	if esVersion >= 3 {
		renderable = OpenGLES3Bit
	}
	configAttribs := []int32{
		SurfaceType, PbufferBit,
		RenderableType, renderable,
		RedSize, 8, GreenSize, 8, BlueSize, 8, AlphaSize, 8,
		None,
	}
	var config uintptr
	var numConfigs int32
	if !chooseConfig(display, &configAttribs[0], &config, 1, &numConfigs) || numConfigs == 0 {
		terminate(display)
		return nil, eglErr("eglChooseConfig")
	}

	surfaceAttribs := []int32{Width, 16, Height, 16, None}
	surface := createPbufferSurface(display, config, &surfaceAttribs[0])
	if surface == NoSurface {
		terminate(display)
		return nil, eglErr("eglCreatePbufferSurface")
	}

	contextAttribs := []int32{ContextClientVersion, int32(esVersion), None}
	handle := createContext(display, config, NoContext, &contextAttribs[0])
	if handle == NoContext {
		destroySurface(display, surface)
		terminate(display)
		return nil, eglErr("eglCreateContext")
	}
	if !makeCurrent(display, surface, surface, handle) {
		destroyContext(display, handle)
		destroySurface(display, surface)
		terminate(display)
		return nil, eglErr("eglMakeCurrent")
	}

	return &Context{
		Display:    display,
		Surface:    surface,
		Handle:     handle,
		ESVersion:  esVersion,
		extensions: queryString(display, Extensions),
	}, nil
}

// MakeCurrent rebinds the context on the calling thread.
func (c *Context) MakeCurrent() error {
	if !makeCurrent(c.Display, c.Surface, c.Surface, c.Handle) {
		return eglErr("eglMakeCurrent")
	}
	return nil
}

// HasExtension reports whether the display advertises an EGL extension.
func (c *Context) HasExtension(name string) bool {
	for _, ext := range strings.Fields(c.extensions) {
		if ext == name {
			return true
		}
	}
	return false
}

// Destroy unbinds and releases the context and surface. Idempotent.
func (c *Context) Destroy() {
	if c.Display == NoDisplay {
		return
	}
	makeCurrent(c.Display, NoSurface, NoSurface, NoContext)
	if c.Handle != NoContext {
		destroyContext(c.Display, c.Handle)
		c.Handle = NoContext
	}
	if c.Surface != NoSurface {
		destroySurface(c.Display, c.Surface)
		c.Surface = NoSurface
	}
	terminate(c.Display)
	c.Display = NoDisplay
}
