// Package pipeline provides orchestration for the marker tracking pipeline.
//
// It wires the layer packages (L1 frames through L5 playback), the scene
// and the adapter sinks (event storage, monitor stats) into a single
// application context, and drives them with a fixed-rate render loop.
// The pipeline does not own domain logic; it delegates to layer packages.
package pipeline
