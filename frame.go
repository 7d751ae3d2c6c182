package keystone

import "fmt"

// Frame is the per-frame image handle exchanged with the video pipeline
// and the presentation layer: one decoded frame in, one corrected frame
// out, identical dimensions.
//
// Data holds premultiplied RGBA, 4 bytes per pixel, laid out row by row
// with the given Stride in bytes. For the hardware-plane path the pixel
// data never crosses the CPU; FramebufferID carries the DRM framebuffer
// handle the overlay plane scans out instead, and Data may be nil.
type Frame struct {
	Data          []uint8
	Width, Height int
	Stride        int // bytes per row

	// FramebufferID is the DRM framebuffer object backing this frame,
	// or 0 when the frame is not display-resident.
	FramebufferID uint32
}

// NewFrame allocates a zeroed (fully transparent) frame with a packed
// stride.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Data:   make([]uint8, width*height*4),
		Width:  width,
		Height: height,
		Stride: width * 4,
	}
}

// Validate checks that the frame dimensions and buffer are consistent.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("keystone: invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Data != nil {
		if f.Stride < f.Width*4 {
			return fmt.Errorf("keystone: frame stride %d too small for width %d", f.Stride, f.Width)
		}
		if need := f.Stride * f.Height; len(f.Data) < need {
			return fmt.Errorf("keystone: frame buffer %d bytes, need %d", len(f.Data), need)
		}
	}
	return nil
}

// At returns the RGBA bytes of the pixel at (x, y). Out-of-range
// coordinates return transparent black.
func (f *Frame) At(x, y int) (r, g, b, a uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height || f.Data == nil {
		return 0, 0, 0, 0
	}
	i := y*f.Stride + x*4
	return f.Data[i], f.Data[i+1], f.Data[i+2], f.Data[i+3]
}

// Set writes the RGBA bytes of the pixel at (x, y). Out-of-range
// coordinates are ignored.
func (f *Frame) Set(x, y int, r, g, b, a uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height || f.Data == nil {
		return
	}
	i := y*f.Stride + x*4
	f.Data[i], f.Data[i+1], f.Data[i+2], f.Data[i+3] = r, g, b, a
}
