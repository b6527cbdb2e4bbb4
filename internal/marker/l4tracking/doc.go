// Package l4tracking owns Layer 4 (Tracking) of the marker pipeline.
//
// Responsibilities: debouncing per-tick detection results into a
// found/lost lifecycle and emitting exactly one event per transition.
// The state machine never touches rendering or playback; consumers
// subscribe to its events.
// Key types: StateMachine, TrackState, Event, Subscriber.
//
// Dependency rule: L4 may depend on L1–L3, but never on L5+.
package l4tracking
