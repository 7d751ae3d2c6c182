package drm

import "testing"

func TestFlattenProps(t *testing.T) {
	props := []AtomicProp{
		{ObjectID: 31, PropID: 1, Value: 100},
		{ObjectID: 31, PropID: 2, Value: 200},
		{ObjectID: 31, PropID: 3, Value: 300},
		{ObjectID: 45, PropID: 7, Value: 700},
	}
	objIDs, counts, propIDs, values := flattenProps(props)

	if len(objIDs) != 2 || objIDs[0] != 31 || objIDs[1] != 45 {
		t.Errorf("objIDs = %v, want [31 45]", objIDs)
	}
	if len(counts) != 2 || counts[0] != 3 || counts[1] != 1 {
		t.Errorf("counts = %v, want [3 1]", counts)
	}
	if len(propIDs) != 4 || propIDs[0] != 1 || propIDs[3] != 7 {
		t.Errorf("propIDs = %v", propIDs)
	}
	if len(values) != 4 || values[0] != 100 || values[3] != 700 {
		t.Errorf("values = %v", values)
	}
}

func TestFlattenPropsSingleObject(t *testing.T) {
	props := []AtomicProp{
		{ObjectID: 9, PropID: 4, Value: 1},
		{ObjectID: 9, PropID: 5, Value: 2},
	}
	objIDs, counts, _, _ := flattenProps(props)
	if len(objIDs) != 1 || counts[0] != 2 {
		t.Errorf("objIDs=%v counts=%v, want one object with two props", objIDs, counts)
	}
}

func TestIoctlEncoding(t *testing.T) {
	// DRM_IOCTL_GET_CAP = _IOWR('d', 0x0c, struct drm_get_cap) with a
	// 16-byte argument.
	want := uintptr(0xc010640c)
	if ioctlGetCap != want {
		t.Errorf("ioctlGetCap = %#x, want %#x", ioctlGetCap, want)
	}
	// DRM_IOCTL_SET_CLIENT_CAP = _IOW('d', 0x0d, 16 bytes).
	if ioctlSetClientCap != 0x4010640d {
		t.Errorf("ioctlSetClientCap = %#x, want 0x4010640d", ioctlSetClientCap)
	}
}

func TestSupportsAtomicMissingCard(t *testing.T) {
	if SupportsAtomic("/dev/dri/does-not-exist") {
		t.Error("missing card reported as atomic-capable")
	}
}

func TestDeviceClosedGuards(t *testing.T) {
	d := &Device{}
	if _, err := d.GetCap(CapDumbBuffer); err == nil {
		t.Error("closed device accepted GetCap")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close on closed device: %v", err)
	}
}
