// Package gles implements the two GLES-class correction backends: an
// ES 3.1 compute-shader path and an ES 2.0 fragment-shader path that
// runs anywhere a GL context exists. Both render into an offscreen
// target and read the result back; presentation stays with the caller.
//
// GL contexts are thread-affine: every method of these backends must
// run on the same locked OS thread.
package gles

import (
	"github.com/openbeam/keystone"
	"github.com/openbeam/keystone/backend"
	"github.com/openbeam/keystone/internal/egl"
	"github.com/openbeam/keystone/internal/gles"
)

func init() {
	backend.Register(backend.BackendGLESCompute, func() backend.Backend {
		return NewCompute()
	})
	backend.Register(backend.BackendGLESFragment, func() backend.Backend {
		return NewFragment()
	})
}

// libsPresent reports whether libEGL and libGLESv2 resolve. Context
// creation stays with Init.
func libsPresent() bool {
	return egl.Load() == nil && gles.Load() == nil
}

// columnMajor converts the row-major inverse matrix to the layout
// glUniformMatrix3fv expects (ES has no transpose flag worth trusting).
func columnMajor(m keystone.Matrix3) [9]float32 {
	return [9]float32{
		float32(m[0]), float32(m[3]), float32(m[6]),
		float32(m[1]), float32(m[4]), float32(m[7]),
		float32(m[2]), float32(m[5]), float32(m[8]),
	}
}

// cornerPairs flattens the corners TL,TR,BL,BR for glUniform2fv.
func cornerPairs(snap *keystone.Snapshot) []float32 {
	out := make([]float32, 0, 8)
	for _, c := range snap.Corners {
		out = append(out, float32(c.X), float32(c.Y))
	}
	return out
}

// paramLocations caches the uniform slots shared by both warp
// programs; upload pushes a snapshot into them (program must be
// current).
type paramLocations struct {
	matrix  int32
	corners int32
}

func resolveParams(program uint32) paramLocations {
	return paramLocations{
		matrix:  gles.UniformLocation(program, "inv_matrix"),
		corners: gles.UniformLocation(program, "corners"),
	}
}

func (l paramLocations) upload(snap *keystone.Snapshot) {
	m := columnMajor(snap.Matrix)
	gles.UniformMatrix3(l.matrix, &m)
	gles.Uniform2fv(l.corners, cornerPairs(snap))
}
