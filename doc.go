// Package keystone implements the geometric correction engine for a
// projector video player: a homography solver that maps a rectangular
// video frame onto a user-adjustable quadrilateral, the mutable
// correction state those corner points live in, and the supporting
// types shared by the hardware execution backends.
//
// The package is pure state and math. Hardware execution lives in the
// backend packages (backend/vulkan, backend/gles, backend/plane), which
// are selected and supervised by the orchestrator in package backend.
// A CPU reference implementation of the warp is provided in this
// package for verification and as the test oracle for the GPU paths.
//
// Coordinate convention: corner points and warp coordinates are
// normalized to [0,1] with the origin at the top-left. The four corners
// are kept in fixed order top-left, top-right, bottom-left,
// bottom-right, matching the unit-square source corners (0,0), (1,0),
// (0,1), (1,1).
//
// Concurrency: State follows a single-writer discipline. It is mutated
// only from the input-handling side and read once per frame (via
// Snapshot) by the render side. The change hook installed with
// SetOnChange fires on the mutating goroutine; consumers that need the
// work on the render thread should only record a flag there.
package keystone
