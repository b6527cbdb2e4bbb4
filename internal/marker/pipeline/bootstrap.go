package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l1frames"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
	"github.com/banshee-data/markerlens/internal/marker/l3pose"
	"github.com/banshee-data/markerlens/internal/marker/l4tracking"
	"github.com/banshee-data/markerlens/internal/marker/l5playback"
	"github.com/banshee-data/markerlens/internal/marker/monitor"
	"github.com/banshee-data/markerlens/internal/marker/scene"
	"github.com/banshee-data/markerlens/internal/monitoring"
	"github.com/banshee-data/markerlens/internal/timeutil"
)

// Anchor plane dimensions, in marker units (16:9).
const (
	AnchorWidth  = 1.0
	AnchorHeight = 0.5625
)

// Default camera frustum. DefaultAspect applies when the camera is asked
// for its native size and the frame shape is not known up front.
const (
	DefaultAspect      = 4.0 / 3.0
	DefaultFieldOfView = 60 * math.Pi / 180
	DefaultNearPlane   = 0.01
	DefaultFarPlane    = 100.0
)

// BootstrapConfig lists what Bootstrap needs to assemble a RenderLoop.
type BootstrapConfig struct {
	Tuning  *config.TuningConfig // Defaults when nil
	Camera  l1frames.Camera
	Library l2detection.TrackingLibrary // Required by the library detector
	Decoder l5playback.Decoder          // Required when Video is set

	Video         string // Primary video source; empty disables playback
	FallbackVideo string

	Renderer    scene.Renderer // HeadlessRenderer when nil
	Stats       *monitor.Stats
	Subscribers []l4tracking.Subscriber // Receive every tracking event
	Clock       timeutil.Clock          // RealClock when nil
}

// Bootstrap acquires the camera, builds every layer from tuning and binds
// the anchor plane to playback. Camera acquisition and tracking library
// readiness failures are fatal; IsFatal reports true for them. A video
// that cannot be loaded leaves the anchor without playback.
func Bootstrap(ctx context.Context, bc BootstrapConfig) (*RenderLoop, error) {
	cfg := bc.Tuning
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	if bc.Camera == nil {
		return nil, errors.New("bootstrap: no camera")
	}
	clock := bc.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()

	detector, err := l2detection.NewFromTuning(cfg, bc.Library)
	if err != nil {
		return nil, fmt.Errorf("bootstrap detector: %w", err)
	}
	tracker, err := l4tracking.NewStateMachine(l4tracking.ConfigFromTuning(cfg))
	if err != nil {
		return nil, fmt.Errorf("bootstrap state machine: %w", err)
	}

	cons := l1frames.Constraints{
		Width:  cfg.GetCameraWidth(),
		Height: cfg.GetCameraHeight(),
		Facing: l1frames.Facing(cfg.GetCameraFacing()),
	}
	source, err := bc.Camera.Acquire(ctx, cons)
	if err != nil {
		opsf("camera acquisition failed: %v", err)
		return nil, fmt.Errorf("bootstrap camera: %w", err)
	}
	// From here on the source and any loaded assets must be released on
	// failure.
	var assets *l5playback.AssetCache
	fail := func(err error) (*RenderLoop, error) {
		release(source, assets)
		return nil, err
	}

	if _, ok := detector.(*l2detection.LibraryDetector); ok {
		if err := l2detection.WaitReady(ctx, bc.Library, l2detection.ReadinessFromTuning(cfg), clock); err != nil {
			return fail(fmt.Errorf("bootstrap tracking library: %w", err))
		}
	}

	sc := scene.New()
	if err := sc.AddPlane(DefaultAnchorNodeID, AnchorWidth, AnchorHeight); err != nil {
		return fail(fmt.Errorf("bootstrap scene: %w", err))
	}
	cam, err := scene.NewPerspective(DefaultFieldOfView, projectionAspect(cons), DefaultNearPlane, DefaultFarPlane)
	if err != nil {
		return fail(fmt.Errorf("bootstrap camera projection: %w", err))
	}
	renderer := bc.Renderer
	if renderer == nil {
		renderer = scene.NewHeadlessRenderer()
	}

	playback := l5playback.NewController(sc, l5playback.PlaybackConfigFromTuning(cfg))
	var asset *l5playback.VideoAsset
	if bc.Video != "" {
		if bc.Decoder == nil {
			return fail(errors.New("bootstrap: video configured without a decoder"))
		}
		assets = l5playback.NewAssetCache(bc.Decoder, l5playback.CacheConfigFromTuning(cfg, clock))
		asset, err = assets.LoadWithFallback(ctx, "primary", bc.Video, "fallback", bc.FallbackVideo)
		if err != nil {
			opsf("video unavailable, anchor will not play: %v", err)
			asset = nil
		} else {
			tex := asset.Texture
			if err := sc.SetTexture(DefaultAnchorNodeID, &tex); err != nil {
				return fail(fmt.Errorf("bootstrap texture: %w", err))
			}
		}
	}
	playback.Bind(DefaultAnchorNodeID, asset)

	tracker.Subscribe(playback)
	for _, s := range bc.Subscribers {
		if s != nil {
			tracker.Subscribe(s)
		}
	}

	loop, err := NewRenderLoop(&AppContext{
		Source:    source,
		Detector:  detector,
		Estimator: l3pose.EstimatorFromTuning(cfg),
		Tracker:   tracker,
		Playback:  playback,
		Assets:    assets,
		Scene:     sc,
		Camera:    cam,
		Renderer:  renderer,
		AnchorID:  DefaultAnchorNodeID,
		Stats:     bc.Stats,
		Clock:     clock,
		TargetFPS: cfg.GetTargetFPS(),
	})
	if err != nil {
		return fail(err)
	}

	video := "none"
	if asset != nil {
		video = asset.Name
	}
	monitoring.Logf("markerlens ready: detector=%s camera=%dx%d %s video=%s fps=%.0f (%v)",
		cfg.GetDetector(), cons.Width, cons.Height, cons.Facing, video, cfg.GetTargetFPS(),
		clock.Since(start).Round(time.Millisecond))
	return loop, nil
}

// projectionAspect returns width/height, or DefaultAspect when either
// dimension is left at native size.
func projectionAspect(cons l1frames.Constraints) float64 {
	if cons.Width <= 0 || cons.Height <= 0 {
		return DefaultAspect
	}
	return float64(cons.Width) / float64(cons.Height)
}

// release closes the source and disposes assets after a failed bootstrap.
func release(source l1frames.Source, assets *l5playback.AssetCache) {
	if err := source.Close(); err != nil {
		diagf("close source after failed bootstrap: %v", err)
	}
	if assets == nil {
		return
	}
	if err := assets.Clear(); err != nil {
		diagf("clear assets after failed bootstrap: %v", err)
	}
}
