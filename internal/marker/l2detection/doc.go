// Package l2detection owns Layer 2 (Detection) of the marker pipeline.
//
// Responsibilities: classifying marker-coloured pixels, grouping them into
// connected components, and adapting external tracking libraries. Every
// detector returns one Result variant: NoDetection, SingleDetection or
// MultiDetection.
// Key types: Detection, Result, Detector, TrackingLibrary.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2detection
