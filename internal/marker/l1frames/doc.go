// Package l1frames owns Layer 1 (Frames) of the marker pipeline.
//
// Responsibilities: camera acquisition, decoding and resizing source images,
// and exposing the current frame as an immutable RGBA buffer with a
// "data available" readiness flag.
// Key types: Frame, Source, Camera, PermissionError.
//
// Dependency rule: L1 depends on nothing above it.
package l1frames
