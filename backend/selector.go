package backend

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/openbeam/keystone"
)

// Option configures a Selector.
type Option func(*Selector)

// WithState attaches the correction state whose snapshots drive the
// backends. The selector registers the state's change hook; snapshots
// are taken once per frame on the render thread.
func WithState(st *keystone.State) Option {
	return func(s *Selector) { s.state = st }
}

// WithOverrides supplies configuration overrides (typically from
// keystone.OverridesFromEnv). A named backend is tried first; forced
// capability flags win over the probe.
func WithOverrides(ov keystone.Overrides) Option {
	return func(s *Selector) { s.overrides = ov }
}

// Selector picks the correction backend at startup and supervises it
// per frame: init failures fall through the priority list, a dispatch
// failure demotes the backend mid-playback, and no failure path ever
// interrupts the frame flow.
//
// All methods except the state change hook run on the render thread.
type Selector struct {
	state     *keystone.State
	overrides keystone.Overrides

	caps       Capabilities
	active     Backend
	candidates []string        // names not yet tried
	demoted    map[string]bool // failed once; never retried
	plane      Backend

	width, height int
	dirty         atomic.Bool // state changed since last frame
	pendingInit   bool        // activate the next candidate before the next frame
	started       bool
}

// NewSelector builds an unstarted selector.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{demoted: make(map[string]bool)}
	for _, opt := range opts {
		opt(s)
	}
	if s.state != nil {
		s.state.SetOnChange(func() { s.dirty.Store(true) })
	}
	return s
}

// Start probes the hardware, builds the candidate list, and activates
// the first backend that initializes for the given output size.
// Running with no usable backend is not an error: correction is simply
// off and frames pass through uncorrected.
func (s *Selector) Start(width, height int) error {
	if s.started {
		return fmt.Errorf("selector: already started")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("selector: invalid output size %dx%d", width, height)
	}
	s.width, s.height = width, height
	s.caps = Probe(s.overrides)
	s.candidates = s.buildCandidates()
	s.started = true

	s.activateNext()
	if s.active == nil {
		keystone.Logger().Info("no correction backend available, running uncorrected")
	}
	return nil
}

// buildCandidates filters the priority list by probed capability. A
// backend named in the overrides jumps the queue but still has to pass
// its own Init.
func (s *Selector) buildCandidates() []string {
	var names []string
	if s.overrides.Backend != "" {
		names = append(names, s.overrides.Backend)
	}
	for _, name := range Priority() {
		if name == s.overrides.Backend {
			continue
		}
		switch name {
		case BackendVulkanCompute:
			if !s.caps.Vulkan {
				continue
			}
		case BackendGLESCompute:
			if !s.caps.GLESCompute {
				continue
			}
		case BackendGLESFragment:
			if !s.caps.GLESFragment {
				continue
			}
		}
		names = append(names, name)
	}
	return names
}

// activateNext walks the remaining candidates until one initializes.
func (s *Selector) activateNext() {
	s.pendingInit = false
	for len(s.candidates) > 0 {
		name := s.candidates[0]
		s.candidates = s.candidates[1:]
		if s.demoted[name] {
			continue
		}
		b := Get(name)
		if b == nil {
			keystone.Logger().Debug("backend not registered", "name", name)
			continue
		}
		if !b.Supported() {
			keystone.Logger().Debug("backend not supported", "name", name)
			continue
		}
		if err := b.Init(s.width, s.height); err != nil {
			keystone.Logger().Warn("backend init failed, falling back",
				"name", name, "error", err)
			b.Cleanup()
			s.demoted[name] = true
			continue
		}
		keystone.Logger().Info("correction backend active",
			"name", name, "width", s.width, "height", s.height)
		s.active = b
		s.dirty.Store(true) // push current parameters on the first frame
		return
	}
	s.active = nil
}

// Active returns the name of the running backend, or "" when correction
// is off.
func (s *Selector) Active() string {
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// Capabilities returns the probe result from Start.
func (s *Selector) Capabilities() Capabilities { return s.caps }

// ProcessFrame runs one frame through the active correction path and
// returns the frame to present. The returned frame is only valid until
// the next call.
//
// Failure policy: a backend that fails mid-playback is demoted, the
// failing frame comes back uncorrected, and the next candidate is
// activated before the following frame. ProcessFrame itself never
// returns an error for backend trouble; only unusable input does.
func (s *Selector) ProcessFrame(src *keystone.Frame) (*keystone.Frame, error) {
	if !s.started {
		return nil, fmt.Errorf("selector: not started")
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("selector: %w", err)
	}

	if s.pendingInit {
		s.activateNext()
	}

	var snap keystone.Snapshot
	if s.state != nil {
		snap = s.state.Snapshot()
	} else {
		snap = keystone.Snapshot{
			Corners: keystone.IdentityCorners(),
			Matrix:  keystone.Identity3(),
		}
	}

	if s.plane != nil {
		return s.processPlane(&snap, src)
	}
	if s.active == nil || !snap.Enabled {
		return src, nil
	}

	// A corner set with no usable inverse mapping affects only this
	// frame: present it uncorrected, keep the backend, and leave the
	// dirty flag set so the next valid geometry still reaches Update.
	if !snap.Matrix.IsFinite() {
		keystone.Logger().Debug("degenerate corner geometry, presenting frame uncorrected")
		return src, nil
	}

	if s.dirty.Swap(false) {
		if err := s.active.Update(&snap); err != nil {
			s.demote("update", err)
			return src, nil
		}
	}
	out, err := s.active.Apply(&snap, src)
	if err != nil {
		if errors.Is(err, ErrDegenerateGeometry) {
			return src, nil
		}
		s.demote("apply", err)
		return src, nil
	}
	return out, nil
}

// processPlane routes the frame through the hardware overlay plane.
// The frame content is untouched; the plane commit repositions the
// overlay around it.
func (s *Selector) processPlane(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error) {
	if s.dirty.Swap(false) {
		if err := s.plane.Update(snap); err != nil {
			s.demotePlane(err)
			return src, nil
		}
	}
	if _, err := s.plane.Apply(snap, src); err != nil &&
		!errors.Is(err, ErrDegenerateGeometry) {
		s.demotePlane(err)
	}
	return src, nil
}

func (s *Selector) demote(op string, err error) {
	name := s.active.Name()
	keystone.Logger().Warn("backend demoted",
		"name", name, "op", op, "error", err)
	s.active.Cleanup()
	s.active = nil
	s.demoted[name] = true
	s.pendingInit = true
}

func (s *Selector) demotePlane(err error) {
	keystone.Logger().Warn("plane backend demoted", "error", err)
	s.plane.Cleanup()
	s.plane = nil
	s.dirty.Store(true) // hand current parameters to the GPU path
}

// Resize recreates the active backend's resources for a new output
// size. Synchronous: when it returns, the backend is either ready at
// the new size or demoted with the next candidate pending.
func (s *Selector) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("selector: invalid output size %dx%d", width, height)
	}
	s.width, s.height = width, height
	if s.active == nil {
		return nil
	}
	name := s.active.Name()
	s.active.Cleanup()
	if err := s.active.Init(width, height); err != nil {
		keystone.Logger().Warn("backend resize failed, falling back",
			"name", name, "error", err)
		s.active.Cleanup()
		s.active = nil
		s.demoted[name] = true
		s.pendingInit = true
		return nil
	}
	s.dirty.Store(true)
	return nil
}

// AttachPlane installs a hardware-plane backend. While attached it
// replaces the GPU warp path: frames pass through untouched and the
// correction lives in plane property commits. The plane must not be
// initialized yet; the selector initializes it at the current size.
func (s *Selector) AttachPlane(plane Backend) error {
	if !s.started {
		return fmt.Errorf("selector: not started")
	}
	if plane == nil || !plane.Supported() {
		return ErrUnsupported
	}
	if err := plane.Init(s.width, s.height); err != nil {
		plane.Cleanup()
		return fmt.Errorf("selector: plane init: %w", err)
	}
	s.plane = plane
	s.dirty.Store(true)
	return nil
}

// DetachPlane removes and cleans up the plane backend, returning frames
// to the GPU warp path.
func (s *Selector) DetachPlane() {
	if s.plane == nil {
		return
	}
	s.plane.Cleanup()
	s.plane = nil
	s.dirty.Store(true)
}

// Close shuts down whatever is active. The selector cannot be restarted.
func (s *Selector) Close() {
	if s.active != nil {
		s.active.Cleanup()
		s.active = nil
	}
	if s.plane != nil {
		s.plane.Cleanup()
		s.plane = nil
	}
	s.candidates = nil
	s.started = false
}
