// Package drm is a minimal pure-Go DRM/KMS layer covering what the
// hardware-plane backend and the capability probe need: capability
// queries, universal-plane enumeration, object properties, and atomic
// commits. It speaks the kernel ioctl interface directly through
// golang.org/x/sys/unix, so it cross-compiles for embedded targets
// without libdrm headers.
package drm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultCard is the DRM device node used when no card path is
// configured.
const DefaultCard = "/dev/dri/card0"

// Driver capability IDs (DRM_CAP_*).
const (
	CapDumbBuffer    = 0x1
	CapPrimeImport   = 0x1 // bit in CapPrime value
	CapPrimeExport   = 0x2 // bit in CapPrime value
	CapPrime         = 0x5
	CapAsyncPageFlip = 0x7
)

// Client capability IDs (DRM_CLIENT_CAP_*).
const (
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

// Mode object types (DRM_MODE_OBJECT_*).
const (
	ObjectCRTC  = 0xcccccccc
	ObjectPlane = 0xeeeeeeee
)

// Plane "type" property values.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

// Atomic commit flags (DRM_MODE_ATOMIC_*).
const (
	AtomicTestOnly     = 0x0100
	AtomicNonblock     = 0x0200
	AtomicAllowModeset = 0x0400
)

// ioctl request numbers. DRM uses the 'd' ioctl type; requests are
// encoded with the standard _IOWR macro over the argument struct size.
const (
	iocWrite     = 1
	iocRead      = 2
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func iowr(nr, size uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift | size<<iocSizeShift |
		'd'<<iocTypeShift | nr
}

func iow(nr, size uintptr) uintptr {
	return iocWrite<<iocDirShift | size<<iocSizeShift |
		'd'<<iocTypeShift | nr
}

var (
	ioctlGetCap            = iowr(0x0c, unsafe.Sizeof(getCapArg{}))
	ioctlSetClientCap      = iow(0x0d, unsafe.Sizeof(setClientCapArg{}))
	ioctlModeGetResources  = iowr(0xa0, unsafe.Sizeof(cardResArg{}))
	ioctlModeGetProperty   = iowr(0xaa, unsafe.Sizeof(getPropertyArg{}))
	ioctlModeGetPlaneRes   = iowr(0xb5, unsafe.Sizeof(getPlaneResArg{}))
	ioctlModeGetPlane      = iowr(0xb6, unsafe.Sizeof(getPlaneArg{}))
	ioctlModeObjGetProps   = iowr(0xb9, unsafe.Sizeof(objGetPropsArg{}))
	ioctlModeAtomic        = iowr(0xbc, unsafe.Sizeof(atomicArg{}))
)

// Argument structs mirror the kernel UAPI layouts exactly.

type getCapArg struct {
	capability uint64
	value      uint64
}

type setClientCapArg struct {
	capability uint64
	value      uint64
}

type cardResArg struct {
	fbIDPtr         uint64
	crtcIDPtr       uint64
	connectorIDPtr  uint64
	encoderIDPtr    uint64
	countFBs        uint32
	countCRTCs      uint32
	countConnectors uint32
	countEncoders   uint32
	minWidth        uint32
	maxWidth        uint32
	minHeight       uint32
	maxHeight       uint32
}

type getPlaneResArg struct {
	planeIDPtr  uint64
	countPlanes uint32
	_           uint32
}

type getPlaneArg struct {
	planeID          uint32
	crtcID           uint32
	fbID             uint32
	possibleCRTCs    uint32
	gammaSize        uint32
	countFormatTypes uint32
	formatTypePtr    uint64
}

type objGetPropsArg struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
	_             uint32
}

type getPropertyArg struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [32]byte
	countValues    uint32
	countEnumBlobs uint32
}

type atomicArg struct {
	flags         uint32
	countObjs     uint32
	objsPtr       uint64
	countPropsPtr uint64
	propsPtr      uint64
	propValuesPtr uint64
	reserved      uint64
	userData      uint64
}

// Device is an open DRM device node.
type Device struct {
	f *os.File
}

// Open opens the DRM device at path (use DefaultCard for the usual
// first card).
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("drm: open %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Close releases the device node. Safe to call more than once.
func (d *Device) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	if d.f == nil {
		return fmt.Errorf("drm: device closed")
	}
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
		if errno == 0 {
			return nil
		}
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		return errno
	}
}

// GetCap queries a driver capability value.
func (d *Device) GetCap(cap uint64) (uint64, error) {
	arg := getCapArg{capability: cap}
	if err := d.ioctl(ioctlGetCap, unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("drm: get cap %#x: %w", cap, err)
	}
	return arg.value, nil
}

// SetClientCap enables a client capability. Enabling ClientCapAtomic is
// also the canonical probe for atomic-modesetting support: drivers
// without it reject the call.
func (d *Device) SetClientCap(cap, value uint64) error {
	arg := setClientCapArg{capability: cap, value: value}
	if err := d.ioctl(ioctlSetClientCap, unsafe.Pointer(&arg)); err != nil {
		return fmt.Errorf("drm: set client cap %d: %w", cap, err)
	}
	return nil
}

// CRTCs returns the IDs of all CRTCs on the device, in index order.
// The index order matters: a plane's possible-CRTC mask is a bitmask
// over these indices.
func (d *Device) CRTCs() ([]uint32, error) {
	var arg cardResArg
	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("drm: get resources: %w", err)
	}
	if arg.countCRTCs == 0 {
		return nil, nil
	}
	ids := make([]uint32, arg.countCRTCs)
	arg = cardResArg{
		crtcIDPtr:  uint64(uintptr(unsafe.Pointer(&ids[0]))),
		countCRTCs: uint32(len(ids)),
	}
	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("drm: get resources: %w", err)
	}
	return ids[:arg.countCRTCs], nil
}

// Planes returns the IDs of all planes. Requires
// ClientCapUniversalPlanes to see primary and cursor planes.
func (d *Device) Planes() ([]uint32, error) {
	var arg getPlaneResArg
	if err := d.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("drm: get plane resources: %w", err)
	}
	if arg.countPlanes == 0 {
		return nil, nil
	}
	ids := make([]uint32, arg.countPlanes)
	arg = getPlaneResArg{
		planeIDPtr:  uint64(uintptr(unsafe.Pointer(&ids[0]))),
		countPlanes: uint32(len(ids)),
	}
	if err := d.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("drm: get plane resources: %w", err)
	}
	return ids[:arg.countPlanes], nil
}

// PlaneInfo describes one plane.
type PlaneInfo struct {
	ID            uint32
	CRTCID        uint32
	FBID          uint32
	PossibleCRTCs uint32
}

// Plane queries one plane by ID.
func (d *Device) Plane(id uint32) (PlaneInfo, error) {
	arg := getPlaneArg{planeID: id}
	if err := d.ioctl(ioctlModeGetPlane, unsafe.Pointer(&arg)); err != nil {
		return PlaneInfo{}, fmt.Errorf("drm: get plane %d: %w", id, err)
	}
	return PlaneInfo{
		ID:            arg.planeID,
		CRTCID:        arg.crtcID,
		FBID:          arg.fbID,
		PossibleCRTCs: arg.possibleCRTCs,
	}, nil
}

// Property is a mode object property: its ID (stable per device) and
// current value.
type Property struct {
	ID    uint32
	Value uint64
}

// ObjectProperties returns the named properties of a mode object.
func (d *Device) ObjectProperties(objID, objType uint32) (map[string]Property, error) {
	arg := objGetPropsArg{objID: objID, objType: objType}
	if err := d.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("drm: get properties of %d: %w", objID, err)
	}
	if arg.countProps == 0 {
		return map[string]Property{}, nil
	}
	ids := make([]uint32, arg.countProps)
	values := make([]uint64, arg.countProps)
	arg = objGetPropsArg{
		propsPtr:      uint64(uintptr(unsafe.Pointer(&ids[0]))),
		propValuesPtr: uint64(uintptr(unsafe.Pointer(&values[0]))),
		countProps:    uint32(len(ids)),
		objID:         objID,
		objType:       objType,
	}
	if err := d.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("drm: get properties of %d: %w", objID, err)
	}

	props := make(map[string]Property, arg.countProps)
	for i := uint32(0); i < arg.countProps; i++ {
		name, err := d.propertyName(ids[i])
		if err != nil {
			return nil, err
		}
		props[name] = Property{ID: ids[i], Value: values[i]}
	}
	return props, nil
}

func (d *Device) propertyName(propID uint32) (string, error) {
	arg := getPropertyArg{propID: propID}
	if err := d.ioctl(ioctlModeGetProperty, unsafe.Pointer(&arg)); err != nil {
		return "", fmt.Errorf("drm: get property %d: %w", propID, err)
	}
	n := 0
	for n < len(arg.name) && arg.name[n] != 0 {
		n++
	}
	return string(arg.name[:n]), nil
}

// AtomicProp is one property assignment in an atomic commit.
type AtomicProp struct {
	ObjectID uint32
	PropID   uint32
	Value    uint64
}

// AtomicCommit applies a set of property changes as one indivisible
// transaction. Props must be grouped by object (all assignments for one
// object adjacent), matching the kernel's flattened-array encoding.
func (d *Device) AtomicCommit(props []AtomicProp, flags uint32) error {
	if len(props) == 0 {
		return nil
	}
	objIDs, countPerObj, propIDs, values := flattenProps(props)
	arg := atomicArg{
		flags:         flags,
		countObjs:     uint32(len(objIDs)),
		objsPtr:       uint64(uintptr(unsafe.Pointer(&objIDs[0]))),
		countPropsPtr: uint64(uintptr(unsafe.Pointer(&countPerObj[0]))),
		propsPtr:      uint64(uintptr(unsafe.Pointer(&propIDs[0]))),
		propValuesPtr: uint64(uintptr(unsafe.Pointer(&values[0]))),
	}
	if err := d.ioctl(ioctlModeAtomic, unsafe.Pointer(&arg)); err != nil {
		return fmt.Errorf("drm: atomic commit: %w", err)
	}
	return nil
}

// flattenProps encodes assignments into the kernel's parallel arrays:
// object IDs, per-object counts, then property IDs and values in order.
func flattenProps(props []AtomicProp) (objIDs, countPerObj, propIDs []uint32, values []uint64) {
	propIDs = make([]uint32, 0, len(props))
	values = make([]uint64, 0, len(props))
	for _, p := range props {
		if len(objIDs) == 0 || objIDs[len(objIDs)-1] != p.ObjectID {
			objIDs = append(objIDs, p.ObjectID)
			countPerObj = append(countPerObj, 0)
		}
		countPerObj[len(countPerObj)-1]++
		propIDs = append(propIDs, p.PropID)
		values = append(values, p.Value)
	}
	return objIDs, countPerObj, propIDs, values
}

// SupportsAtomic reports whether the device at path accepts the atomic
// client capability. Absence is an expected probe outcome, not an
// error, so this never fails: any problem reads as "not supported".
func SupportsAtomic(path string) bool {
	d, err := Open(path)
	if err != nil {
		return false
	}
	defer d.Close()
	if err := d.SetClientCap(ClientCapUniversalPlanes, 1); err != nil {
		return false
	}
	return d.SetClientCap(ClientCapAtomic, 1) == nil
}
