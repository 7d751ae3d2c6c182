package keystone

import (
	"errors"
	"math"
)

// ErrDegenerateGeometry is returned when the snapshot's corner set has
// no usable inverse mapping (Matrix.IsFinite() is false). The caller
// keeps presenting frames uncorrected; corner state is untouched.
var ErrDegenerateGeometry = errors.New("keystone: degenerate corner geometry")

// WarpImage is the CPU reference implementation of the keystone warp.
// It applies the same algorithm every GPU backend implements: for each
// destination pixel, test whether the pixel center lies inside the
// destination quad (four same-sign cross-product edge tests), map it
// through the inverse homography to the source coordinate, and
// bilinearly sample the source image. Pixels outside the quad or whose
// source coordinate falls outside [0,1] are written fully transparent.
//
// The render path never calls this; it exists as the verification
// oracle for the hardware backends and for deterministic tests. A
// non-finite matrix yields ErrDegenerateGeometry with dst untouched,
// the same report every backend's Apply makes.
func WarpImage(snap Snapshot, src, dst *Frame) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if err := dst.Validate(); err != nil {
		return err
	}
	if !snap.Matrix.IsFinite() {
		return ErrDegenerateGeometry
	}

	for y := 0; y < dst.Height; y++ {
		v := (float64(y) + 0.5) / float64(dst.Height)
		row := y * dst.Stride
		for x := 0; x < dst.Width; x++ {
			i := row + x*4
			u := (float64(x) + 0.5) / float64(dst.Width)

			if !InsideQuad(snap.Corners, Point{X: u, Y: v}) {
				dst.Data[i], dst.Data[i+1], dst.Data[i+2], dst.Data[i+3] = 0, 0, 0, 0
				continue
			}

			su, sv := snap.Matrix.Apply(u, v)
			if su < 0 || su > 1 || sv < 0 || sv > 1 ||
				math.IsNaN(su) || math.IsNaN(sv) {
				dst.Data[i], dst.Data[i+1], dst.Data[i+2], dst.Data[i+3] = 0, 0, 0, 0
				continue
			}

			r, g, b, a := sampleBilinear(src, su, sv)
			dst.Data[i], dst.Data[i+1], dst.Data[i+2], dst.Data[i+3] = r, g, b, a
		}
	}
	return nil
}

// sampleBilinear samples src at the normalized coordinate (u, v) with
// bilinear filtering, matching GL_LINEAR semantics: texel centers sit
// at (i+0.5)/size and edge samples clamp.
func sampleBilinear(src *Frame, u, v float64) (uint8, uint8, uint8, uint8) {
	fx := u*float64(src.Width) - 0.5
	fy := v*float64(src.Height) - 0.5

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	r00, g00, b00, a00 := atClamped(src, x0, y0)
	r10, g10, b10, a10 := atClamped(src, x0+1, y0)
	r01, g01, b01, a01 := atClamped(src, x0, y0+1)
	r11, g11, b11, a11 := atClamped(src, x0+1, y0+1)

	lerp2 := func(c00, c10, c01, c11 uint8) uint8 {
		top := float64(c00) + tx*(float64(c10)-float64(c00))
		bot := float64(c01) + tx*(float64(c11)-float64(c01))
		return uint8(math.Round(top + ty*(bot-top)))
	}
	return lerp2(r00, r10, r01, r11), lerp2(g00, g10, g01, g11),
		lerp2(b00, b10, b01, b11), lerp2(a00, a10, a01, a11)
}

func atClamped(src *Frame, x, y int) (uint8, uint8, uint8, uint8) {
	if x < 0 {
		x = 0
	}
	if x >= src.Width {
		x = src.Width - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= src.Height {
		y = src.Height - 1
	}
	i := y*src.Stride + x*4
	return src.Data[i], src.Data[i+1], src.Data[i+2], src.Data[i+3]
}
