// Package plane implements the hardware overlay-plane backend. Instead
// of warping pixels it repositions the video overlay through DRM atomic
// commits: the quad's bounding box becomes the plane's CRTC rectangle
// while the full frame stays the source. This is the cheapest path on
// SoCs whose display controller scales overlays for free.
package plane

import (
	"fmt"

	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"
	"github.com/openbeam/keystone/internal/drm"
)

func init() {
	backend.Register(backend.BackendPlane, func() backend.Backend {
		return New()
	})
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithCard selects the DRM device node (default /dev/dri/card0).
func WithCard(path string) Option {
	return func(o *Overlay) { o.card = path }
}

// WithPlane pins a specific plane ID instead of auto-selecting the
// first free overlay plane.
func WithPlane(id uint32) Option {
	return func(o *Overlay) { o.planeID = id }
}

// WithCRTC pins a specific CRTC ID instead of using the first one.
func WithCRTC(id uint32) Option {
	return func(o *Overlay) { o.crtcID = id }
}

// Overlay is the hardware-plane correction backend.
type Overlay struct {
	card    string
	dev     *drm.Device
	planeID uint32
	crtcID  uint32
	props   map[string]drm.Property

	width, height int
	status        backend.Status
}

var _ backend.Backend = (*Overlay)(nil)

// New returns an uninitialized overlay backend.
func New(opts ...Option) *Overlay {
	o := &Overlay{card: drm.DefaultCard, status: backend.StatusUninitialized}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Overlay) Name() string           { return backend.BackendPlane }
func (o *Overlay) Status() backend.Status { return o.status }

// Supported reports whether the card accepts atomic modesetting.
func (o *Overlay) Supported() bool {
	return drm.SupportsAtomic(o.card)
}

// Init opens the card, enables universal planes and atomic commits,
// and resolves the target plane and its property IDs.
func (o *Overlay) Init(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("plane: invalid size %dx%d", width, height)
	}
	o.status = backend.StatusInitializing

	dev, err := drm.Open(o.card)
	if err != nil {
		o.status = backend.StatusFailed
		return fmt.Errorf("plane: %w", err)
	}
	o.dev = dev

	if err := dev.SetClientCap(drm.ClientCapUniversalPlanes, 1); err != nil {
		o.status = backend.StatusFailed
		return fmt.Errorf("plane: %w: %v", backend.ErrUnsupported, err)
	}
	if err := dev.SetClientCap(drm.ClientCapAtomic, 1); err != nil {
		o.status = backend.StatusFailed
		return fmt.Errorf("plane: %w: %v", backend.ErrUnsupported, err)
	}

	if err := o.resolvePlane(); err != nil {
		o.status = backend.StatusFailed
		return err
	}

	o.width, o.height = width, height
	o.status = backend.StatusReady
	keystone.Logger().Info("overlay plane backend ready",
		"card", o.card, "plane", o.planeID, "crtc", o.crtcID)
	return nil
}

func (o *Overlay) resolvePlane() error {
	if o.crtcID == 0 {
		crtcs, err := o.dev.CRTCs()
		if err != nil {
			return fmt.Errorf("plane: %w", err)
		}
		if len(crtcs) == 0 {
			return fmt.Errorf("plane: %w: no CRTCs", backend.ErrUnsupported)
		}
		o.crtcID = crtcs[0]
	}

	if o.planeID == 0 {
		id, err := o.findOverlayPlane()
		if err != nil {
			return err
		}
		o.planeID = id
	}

	props, err := o.dev.ObjectProperties(o.planeID, drm.ObjectPlane)
	if err != nil {
		return fmt.Errorf("plane: %w", err)
	}
	for _, name := range []string{"FB_ID", "CRTC_ID",
		"SRC_X", "SRC_Y", "SRC_W", "SRC_H",
		"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H"} {
		if _, ok := props[name]; !ok {
			return fmt.Errorf("plane: %w: plane %d lacks property %s",
				backend.ErrUnsupported, o.planeID, name)
		}
	}
	o.props = props
	return nil
}

// findOverlayPlane picks the first unbound overlay-type plane that can
// drive the selected CRTC.
func (o *Overlay) findOverlayPlane() (uint32, error) {
	crtcs, err := o.dev.CRTCs()
	if err != nil {
		return 0, fmt.Errorf("plane: %w", err)
	}
	crtcIndex := -1
	for i, id := range crtcs {
		if id == o.crtcID {
			crtcIndex = i
			break
		}
	}
	if crtcIndex < 0 {
		return 0, fmt.Errorf("plane: CRTC %d not found", o.crtcID)
	}

	planes, err := o.dev.Planes()
	if err != nil {
		return 0, fmt.Errorf("plane: %w", err)
	}
	for _, id := range planes {
		info, err := o.dev.Plane(id)
		if err != nil {
			continue
		}
		if info.PossibleCRTCs&(1<<uint(crtcIndex)) == 0 {
			continue
		}
		if info.CRTCID != 0 && info.CRTCID != o.crtcID {
			continue
		}
		props, err := o.dev.ObjectProperties(id, drm.ObjectPlane)
		if err != nil {
			continue
		}
		if typ, ok := props["type"]; ok && typ.Value == drm.PlaneTypeOverlay {
			return id, nil
		}
	}
	return 0, fmt.Errorf("plane: %w: no free overlay plane for CRTC %d",
		backend.ErrUnsupported, o.crtcID)
}

// Update has nothing to push ahead of time: the plane position is
// committed together with the framebuffer in Apply.
func (o *Overlay) Update(snap *keystone.Snapshot) error {
	if o.status != backend.StatusReady && o.status != backend.StatusApplying {
		return backend.ErrNotInitialized
	}
	if snap == nil {
		return backend.ErrDegenerateGeometry
	}
	return nil
}

// Apply commits the frame's framebuffer to the overlay plane with the
// quad's bounding box as the output rectangle. Frame pixels are never
// touched; the caller keeps presenting the source frame.
func (o *Overlay) Apply(snap *keystone.Snapshot, src *keystone.Frame) (*keystone.Frame, error) {
	if o.status != backend.StatusReady {
		return nil, backend.ErrNotInitialized
	}
	if snap == nil {
		return nil, backend.ErrDegenerateGeometry
	}
	if src.FramebufferID == 0 {
		return nil, fmt.Errorf("plane: frame carries no framebuffer ID")
	}
	x, y, w, h := boundingBox(snap.Corners, o.width, o.height)
	if w <= 0 || h <= 0 {
		return nil, backend.ErrDegenerateGeometry
	}
	o.status = backend.StatusApplying

	props := []drm.AtomicProp{
		{ObjectID: o.planeID, PropID: o.props["FB_ID"].ID, Value: uint64(src.FramebufferID)},
		{ObjectID: o.planeID, PropID: o.props["CRTC_ID"].ID, Value: uint64(o.crtcID)},
		{ObjectID: o.planeID, PropID: o.props["SRC_X"].ID, Value: 0},
		{ObjectID: o.planeID, PropID: o.props["SRC_Y"].ID, Value: 0},
		{ObjectID: o.planeID, PropID: o.props["SRC_W"].ID, Value: fixed1616(src.Width)},
		{ObjectID: o.planeID, PropID: o.props["SRC_H"].ID, Value: fixed1616(src.Height)},
		{ObjectID: o.planeID, PropID: o.props["CRTC_X"].ID, Value: signed32(x)},
		{ObjectID: o.planeID, PropID: o.props["CRTC_Y"].ID, Value: signed32(y)},
		{ObjectID: o.planeID, PropID: o.props["CRTC_W"].ID, Value: uint64(w)},
		{ObjectID: o.planeID, PropID: o.props["CRTC_H"].ID, Value: uint64(h)},
	}
	if err := o.dev.AtomicCommit(props, drm.AtomicNonblock); err != nil {
		o.status = backend.StatusFailed
		return nil, fmt.Errorf("plane: %w: %v", backend.ErrDeviceLost, err)
	}
	o.status = backend.StatusReady
	return src, nil
}

// Cleanup closes the device node. Idempotent.
func (o *Overlay) Cleanup() {
	if o.dev != nil {
		o.dev.Close()
		o.dev = nil
	}
	o.props = nil
	o.status = backend.StatusCleanedUp
}

// boundingBox converts the normalized quad to the pixel-space rectangle
// enclosing it. Coordinates may exceed the screen; the kernel clips.
func boundingBox(corners [4]keystone.Point, width, height int) (x, y, w, h int) {
	minX, minY := corners[0].X, corners[0].Y
	maxX, maxY := minX, minY
	for _, c := range corners[1:] {
		if c.X < minX {
			minX = c.X
		}
		if c.X > maxX {
			maxX = c.X
		}
		if c.Y < minY {
			minY = c.Y
		}
		if c.Y > maxY {
			maxY = c.Y
		}
	}
	x = int(minX * float64(width))
	y = int(minY * float64(height))
	w = int((maxX - minX) * float64(width))
	h = int((maxY - minY) * float64(height))
	return x, y, w, h
}

// fixed1616 converts whole pixels to the 16.16 fixed point the SRC_*
// plane properties use.
func fixed1616(v int) uint64 {
	return uint64(uint32(v)) << 16
}

// signed32 encodes a possibly negative CRTC coordinate the way the
// kernel reads it back out of the 64-bit property value.
func signed32(v int) uint64 {
	return uint64(uint32(int32(v)))
}
