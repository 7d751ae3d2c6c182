// Package backend defines the correction-backend contract, the backend
// registry, the hardware capability probe, and the selector that picks
// and supervises the active backend at runtime.
package backend

import (
	"errors"

	"github.com/openbeam/keystone"
)

// Common backend errors.
var (
	// ErrUnsupported is returned by Init when the backend's hardware
	// path is absent on this system.
	ErrUnsupported = errors.New("backend: not supported on this system")

	// ErrNotInitialized is returned when Apply or Update is called
	// before a successful Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDegenerateGeometry is returned when the current corner set has
	// no usable inverse mapping. Shared with the root package so
	// errors.Is works across both.
	ErrDegenerateGeometry = keystone.ErrDegenerateGeometry

	// ErrDeviceLost is returned when the GPU device or display
	// connection died underneath the backend.
	ErrDeviceLost = errors.New("backend: device lost")
)

// Backend name constants.
const (
	BackendVulkanCompute = "vulkan-compute"
	BackendGLESCompute   = "gles-compute"
	BackendGLESFragment  = "gles-fragment"
	BackendPlane         = "plane"
	BackendLegacyScaler  = "legacy-scaler"
)

// Status is a backend's lifecycle state.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusApplying
	StatusFailed
	StatusCleanedUp
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusApplying:
		return "applying"
	case StatusFailed:
		return "failed"
	case StatusCleanedUp:
		return "cleaned-up"
	default:
		return "unknown"
	}
}

// Backend is the contract every correction backend implements.
//
// All methods are called from the render thread; implementations need
// no internal locking. The lifecycle is
// UNINITIALIZED → INITIALIZING → READY ⇄ APPLYING, with FAILED reachable
// from any active state and CLEANED_UP terminal. A backend that reports
// Supported()==false must still answer every method without panicking:
// Init returns ErrUnsupported and nothing else changes.
type Backend interface {
	// Name returns the backend identifier (e.g. "vulkan-compute").
	Name() string

	// Supported reports whether this backend's hardware path exists on
	// the current system. Cheap; callable before Init.
	Supported() bool

	// Init acquires device resources for the given output size.
	// On failure the backend is in StatusFailed and Cleanup is still
	// safe to call.
	Init(width, height int) error

	// Apply warps one source frame through the current correction and
	// returns the corrected frame. The returned frame is owned by the
	// backend and valid until the next Apply or Cleanup.
	Apply(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error)

	// Update installs new correction parameters without touching frame
	// data. Called when the state's change hook fired since the last
	// frame.
	Update(snap *keystone.Snapshot) error

	// Cleanup releases all resources. Idempotent; callable from any
	// state, including after a failed Init.
	Cleanup()

	// Status returns the current lifecycle state.
	Status() Status
}
