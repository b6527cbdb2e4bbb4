// Package l5playback owns Layer 5 (Playback) of the marker pipeline.
//
// Responsibilities: loading and caching video assets, binding them to
// scene nodes, and reacting to tracking events by showing and playing
// (or hiding and pausing) the bound video.
// Key types: Controller, AssetCache, VideoAsset, Player, Decoder.
//
// Dependency rule: L5 may depend on L1–L4. Scene access goes through the
// NodeVisibility interface so this package never imports the renderer.
package l5playback
