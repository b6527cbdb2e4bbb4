// Package l3pose owns Layer 3 (Pose) of the marker pipeline.
//
// Responsibilities: turning a detector's pose payload into a 4x4 transform
// that places the anchor plane in camera space. Library matrices pass
// through unchanged; Euler/translation payloads are composed as
// T(s·tx, −s·ty, −s·tz)·Rx·Ry·Rz.
// Key types: Transform, Estimator.
//
// Dependency rule: L3 may depend on L1–L2, but never on L4+.
package l3pose
