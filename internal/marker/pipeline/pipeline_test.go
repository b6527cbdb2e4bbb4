package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

var (
	grey = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	red  = color.RGBA{R: 255, A: 255}
)

func init() {
	monitoring.SetLogger(nil)
}

func markerImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	l1frames.FillRect(img, img.Bounds(), grey)
	l1frames.FillRect(img, image.Rect(10, 10, 30, 30), red)
	return img
}

func emptyImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	l1frames.FillRect(img, img.Bounds(), grey)
	return img
}

// sourceCamera hands out a fixed source or fails with err.
type sourceCamera struct {
	src l1frames.Source
	err error
}

func (c *sourceCamera) Acquire(ctx context.Context, _ l1frames.Constraints) (l1frames.Source, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.src, nil
}

// closeCounter wraps a source and counts Close calls.
type closeCounter struct {
	l1frames.Source
	mu     sync.Mutex
	closes int
}

func (c *closeCounter) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return c.Source.Close()
}

func (c *closeCounter) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type failingSource struct{}

func (failingSource) Ready() bool                     { return false }
func (failingSource) Frame() (*l1frames.Frame, error) { return nil, errors.New("device unplugged") }
func (failingSource) Close() error                    { return nil }

type panicDetector struct{}

func (panicDetector) Emits() l2detection.ResultKind { return l2detection.KindNone }
func (panicDetector) Detect(*l1frames.Frame) l2detection.Result {
	panic("boom")
}

type neverReadyLibrary struct{ polls int }

func (l *neverReadyLibrary) LoadReady() bool {
	l.polls++
	return false
}

func (l *neverReadyLibrary) ProcessFrame(*l1frames.Frame)            {}
func (l *neverReadyLibrary) MarkerCount() int                          { return 0 }
func (l *neverReadyLibrary) GetTransform(int, float64, []float64) bool { return false }

func newTestLoop(t *testing.T, src l1frames.Source, det l2detection.Detector) (*RenderLoop, *scene.HeadlessRenderer) {
	t.Helper()
	tracker, err := l4tracking.NewStateMachine(l4tracking.DefaultConfig())
	require.NoError(t, err)
	sc := scene.New()
	require.NoError(t, sc.AddPlane(DefaultAnchorNodeID, AnchorWidth, AnchorHeight))
	cam, err := scene.NewPerspective(DefaultFieldOfView, 1, DefaultNearPlane, DefaultFarPlane)
	require.NoError(t, err)
	r := scene.NewHeadlessRenderer()

	playback := l5playback.NewController(sc, l5playback.DefaultPlaybackConfig())
	playback.Bind(DefaultAnchorNodeID, nil)
	tracker.Subscribe(playback)

	loop, err := NewRenderLoop(&AppContext{
		Source:    src,
		Detector:  det,
		Estimator: l3pose.NewEstimator(0),
		Tracker:   tracker,
		Playback:  playback,
		Scene:     sc,
		Camera:    cam,
		Renderer:  r,
		Stats:     monitor.NewStats(16),
		Clock:     timeutil.NewMockClock(time.Unix(1000, 0)),
	})
	require.NoError(t, err)
	return loop, r
}

func anchorVisible(t *testing.T, loop *RenderLoop) bool {
	t.Helper()
	n, ok := loop.App().Scene.Node(DefaultAnchorNodeID)
	require.True(t, ok)
	return n.Visible
}

func TestNewRenderLoop_Validation(t *testing.T) {
	_, err := NewRenderLoop(&AppContext{})
	require.Error(t, err)
	for _, want := range []string{"frame source", "detector", "pose estimator", "state machine", "scene", "renderer"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = NewRenderLoop(nil)
	assert.Error(t, err)
}

func TestRenderLoop_FoundLostRefound(t *testing.T) {
	src := l1frames.NewSliceSource(time.Unix(2000, 0), markerImage(), markerImage(), emptyImage(), markerImage())
	loop, r := newTestLoop(t, src, l2detection.NewBlobDetector(l2detection.DefaultBlobParams()))

	res, err := loop.Tick()
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, 400, res.Detection.PixelMass)
	require.Len(t, res.Events, 1)
	assert.Equal(t, l4tracking.MarkerFound, res.Events[0].Kind)
	first := res.Events[0].AcquisitionID
	assert.True(t, anchorVisible(t, loop))

	node, _ := loop.App().Scene.Node(DefaultAnchorNodeID)
	assert.Equal(t, *res.Pose, node.Transform, "anchor follows the pose")

	res, err = loop.Tick()
	require.NoError(t, err)
	assert.Empty(t, res.Events, "continued tracking emits nothing")

	res, err = loop.Tick()
	require.NoError(t, err)
	assert.False(t, res.Found())
	require.Len(t, res.Events, 1)
	assert.Equal(t, l4tracking.MarkerLost, res.Events[0].Kind)
	assert.Equal(t, first, res.Events[0].AcquisitionID)
	assert.False(t, anchorVisible(t, loop))

	res, err = loop.Tick()
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, l4tracking.MarkerFound, res.Events[0].Kind)
	assert.NotEqual(t, first, res.Events[0].AcquisitionID)

	assert.Equal(t, uint64(4), r.Frames(), "one render per tick")
	status := loop.TrackingStatus()
	assert.Equal(t, "tracking", status.State)
	assert.Equal(t, uint64(2), status.Acquisitions)
	assert.Equal(t, uint64(1), status.Losses)
	assert.Equal(t, uint64(4), status.RenderedFrames)
	assert.NotEmpty(t, status.AcquisitionID)

	sum := loop.App().Stats.Summary()
	assert.Equal(t, 4, sum.Samples)
	assert.Equal(t, 3, sum.Found)
}

func TestRenderLoop_NotReadyFrameIsMiss(t *testing.T) {
	src := l1frames.NewSliceSource(time.Unix(2000, 0), markerImage(), nil)
	loop, r := newTestLoop(t, src, l2detection.NewBlobDetector(l2detection.DefaultBlobParams()))

	_, err := loop.Tick()
	require.NoError(t, err)
	res, err := loop.Tick()
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, l4tracking.MarkerLost, res.Events[0].Kind)
	assert.Equal(t, uint64(2), r.Frames())
}

func TestRenderLoop_AcquireErrorStillRenders(t *testing.T) {
	loop, r := newTestLoop(t, failingSource{}, l2detection.NewBlobDetector(l2detection.DefaultBlobParams()))

	_, err := loop.Tick()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameProcessing)
	var fpe *FrameProcessingError
	require.ErrorAs(t, err, &fpe)
	assert.Equal(t, "acquire", fpe.Stage)
	assert.Equal(t, uint64(1), r.Frames())
	assert.False(t, IsFatal(err))
}

func TestRenderLoop_StepSurvivesPanicAndLogsOnce(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(&ops, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	src := l1frames.NewSliceSource(time.Unix(2000, 0), markerImage(), markerImage(), markerImage(), markerImage())
	loop, _ := newTestLoop(t, src, panicDetector{})

	for i := 0; i < 3; i++ {
		_, err := loop.Step()
		require.Error(t, err)
		var fpe *FrameProcessingError
		require.ErrorAs(t, err, &fpe)
		assert.Equal(t, "panic", fpe.Stage)
		assert.Equal(t, uint64(i), fpe.Tick)
	}
	assert.Equal(t, 1, strings.Count(ops.String(), "boom"), "repeats are suppressed")
	assert.Equal(t, 3, loop.App().Stats.Summary().Errors)

	loop.App().Detector = l2detection.NewBlobDetector(l2detection.DefaultBlobParams())
	res, err := loop.Step()
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Contains(t, diag.String(), "recovered after 2 repeats")
	assert.Equal(t, uint64(4), loop.Ticks())
}

func TestRenderLoop_PanicWhileTrackingLosesMarker(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	src := l1frames.NewSliceSource(time.Unix(2000, 0), markerImage(), markerImage(), markerImage(), markerImage())
	var events []l4tracking.Event
	sink := l4tracking.SubscriberFunc(func(ev l4tracking.Event) { events = append(events, ev) })
	loop, err := Bootstrap(context.Background(), BootstrapConfig{
		Camera:      &sourceCamera{src: src},
		Decoder:     &l5playback.SimulatedDecoder{},
		Video:       "promo.mp4",
		Subscribers: []l4tracking.Subscriber{sink},
	})
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })

	res, err := loop.Step()
	require.NoError(t, err)
	require.True(t, res.Found())
	asset, ok := loop.App().Playback.Asset(DefaultAnchorNodeID)
	require.True(t, ok)
	require.False(t, asset.Player.Paused())
	require.True(t, anchorVisible(t, loop))

	loop.App().Detector = panicDetector{}
	res, err = loop.Step()
	require.Error(t, err)
	var fpe *FrameProcessingError
	require.ErrorAs(t, err, &fpe)
	assert.Equal(t, "panic", fpe.Stage)
	require.Len(t, res.Events, 1)
	assert.Equal(t, l4tracking.MarkerLost, res.Events[0].Kind)
	assert.False(t, anchorVisible(t, loop))
	assert.True(t, asset.Player.Paused())

	for i := 0; i < 2; i++ {
		res, err = loop.Step()
		require.Error(t, err)
		assert.Empty(t, res.Events)
	}

	status := loop.TrackingStatus()
	assert.Equal(t, "lost", status.State)
	assert.Equal(t, uint64(1), status.Losses)
	assert.Equal(t, uint64(4), status.Ticks)
	require.Len(t, events, 2)
	assert.Equal(t, events[0].AcquisitionID, events[1].AcquisitionID)
	assert.Equal(t, 1, strings.Count(ops.String(), "boom"))
}

func TestRenderLoop_RunUntilCancelled(t *testing.T) {
	src := l1frames.NewSliceSource(time.Unix(2000, 0))
	loop, r := newTestLoop(t, src, l2detection.NewBlobDetector(l2detection.DefaultBlobParams()))
	clock := loop.App().Clock.(*timeutil.MockClock)
	loop.App().TargetFPS = 10

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return r.Frames() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRenderLoop_RunMaxTicks(t *testing.T) {
	loop, r := newTestLoop(t, failingSource{}, l2detection.NewBlobDetector(l2detection.DefaultBlobParams()))
	clock := loop.App().Clock.(*timeutil.MockClock)
	loop.MaxTicks = 3

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		select {
		case err := <-done:
			assert.NoError(t, err, "failing ticks do not stop the loop")
			return true
		default:
			clock.Advance(time.Second)
			return false
		}
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(3), r.Frames())
}

func TestRenderLoop_CloseOnce(t *testing.T) {
	cc := &closeCounter{Source: l1frames.NewSliceSource(time.Unix(0, 0))}
	loop, _ := newTestLoop(t, cc, l2detection.NewBlobDetector(l2detection.DefaultBlobParams()))
	require.NoError(t, loop.Close())
	require.NoError(t, loop.Close())
	assert.Equal(t, 1, cc.Closes())
}

func TestBootstrap_PermissionErrorIsFatal(t *testing.T) {
	perm := &l1frames.PermissionError{Reason: l1frames.ErrPermissionDenied, Device: "cam0"}
	_, err := Bootstrap(context.Background(), BootstrapConfig{Camera: &sourceCamera{err: perm}})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, l1frames.ErrPermissionDenied)
}

func TestBootstrap_LibraryTimeoutIsFatal(t *testing.T) {
	detector := config.DetectorLibrary
	attempts := 3
	interval := "50ms"
	cfg := &config.TuningConfig{Detector: &detector, LibraryMaxAttempts: &attempts, LibraryPollInterval: &interval}

	cc := &closeCounter{Source: l1frames.NewSliceSource(time.Unix(0, 0))}
	lib := &neverReadyLibrary{}
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	_, err := Bootstrap(context.Background(), BootstrapConfig{
		Tuning:  cfg,
		Camera:  &sourceCamera{src: cc},
		Library: lib,
		Clock:   clock,
	})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	var timeout *l2detection.LibraryLoadTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, 3, lib.polls)
	assert.Equal(t, 1, cc.Closes(), "source released on fatal error")
}

func TestBootstrap_LibraryWithoutImplementation(t *testing.T) {
	detector := config.DetectorLibrary
	_, err := Bootstrap(context.Background(), BootstrapConfig{
		Tuning: &config.TuningConfig{Detector: &detector},
		Camera: &sourceCamera{src: l1frames.NewSliceSource(time.Unix(0, 0))},
	})
	require.Error(t, err)
	assert.False(t, IsFatal(err))
}

func TestBootstrap_VideoFailureIsNotFatal(t *testing.T) {
	dec := &l5playback.SimulatedDecoder{Fail: map[string]error{"a.mp4": nil, "b.mp4": nil}}
	src := l1frames.NewSliceSource(time.Unix(2000, 0), markerImage())

	loop, err := Bootstrap(context.Background(), BootstrapConfig{
		Camera:        &sourceCamera{src: src},
		Decoder:       dec,
		Video:         "a.mp4",
		FallbackVideo: "b.mp4",
	})
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })

	_, ok := loop.App().Playback.Asset(DefaultAnchorNodeID)
	assert.False(t, ok, "anchor has no playback")
	assert.Equal(t, []string{DefaultAnchorNodeID}, loop.App().Playback.Nodes())

	res, err := loop.Tick()
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.True(t, anchorVisible(t, loop), "visibility still follows tracking")
	assert.Zero(t, loop.App().Playback.PlayStarts())
}

func TestBootstrap_VideoPlaysWhileTracking(t *testing.T) {
	dec := &l5playback.SimulatedDecoder{Fail: map[string]error{"broken.mp4": nil}}
	src := l1frames.NewSliceSource(time.Unix(2000, 0), markerImage(), emptyImage(), markerImage())
	var events []l4tracking.Event
	sink := l4tracking.SubscriberFunc(func(ev l4tracking.Event) { events = append(events, ev) })

	loop, err := Bootstrap(context.Background(), BootstrapConfig{
		Camera:        &sourceCamera{src: src},
		Decoder:       dec,
		Video:         "broken.mp4",
		FallbackVideo: "fallback.mp4",
		Subscribers:   []l4tracking.Subscriber{sink},
		Stats:         monitor.NewStats(8),
	})
	require.NoError(t, err)

	asset, ok := loop.App().Playback.Asset(DefaultAnchorNodeID)
	require.True(t, ok)
	assert.Equal(t, "fallback.mp4", asset.Src)
	node, _ := loop.App().Scene.Node(DefaultAnchorNodeID)
	require.NotNil(t, node.Texture)
	assert.Equal(t, asset.Texture.ID, node.Texture.ID)
	assert.False(t, node.Visible, "anchor starts hidden")

	for i := 0; i < 3; i++ {
		_, err := loop.Tick()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, loop.App().Playback.PlayStarts())
	assert.False(t, asset.Player.Paused())
	require.Len(t, events, 3)
	assert.Equal(t, l4tracking.MarkerLost, events[1].Kind)

	require.NoError(t, loop.Close())
	assert.Zero(t, loop.App().Assets.Len(), "assets disposed on close")
}

func TestBootstrap_InvalidTuning(t *testing.T) {
	zero := 0
	_, err := Bootstrap(context.Background(), BootstrapConfig{
		Tuning: &config.TuningConfig{MissTolerance: &zero},
		Camera: l1frames.NewSyntheticCamera(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "miss_tolerance")
}

func TestBootstrap_NativeSizeCamera(t *testing.T) {
	zero := 0
	loop, err := Bootstrap(context.Background(), BootstrapConfig{
		Tuning: &config.TuningConfig{CameraWidth: &zero, CameraHeight: &zero},
		Camera: l1frames.NewSyntheticCamera(),
	})
	require.NoError(t, err)
	defer loop.Close()

	proj := loop.App().Camera.Projection
	assert.True(t, proj.IsFinite())
	assert.InDelta(t, proj[5]/DefaultAspect, proj[0], 1e-12)

	_, err = loop.Tick()
	require.NoError(t, err)
}

func TestProjectionAspect(t *testing.T) {
	tests := []struct {
		name string
		cons l1frames.Constraints
		want float64
	}{
		{"explicit", l1frames.Constraints{Width: 1280, Height: 720}, 1280.0 / 720.0},
		{"native", l1frames.Constraints{}, DefaultAspect},
		{"native height", l1frames.Constraints{Width: 640}, DefaultAspect},
		{"native width", l1frames.Constraints{Height: 480}, DefaultAspect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, projectionAspect(tt.cons), 1e-12)
		})
	}
}

func TestRelease_DisposesLoadedAssets(t *testing.T) {
	src := &closeCounter{Source: l1frames.NewSliceSource(time.Unix(2000, 0), markerImage())}
	assets := l5playback.NewAssetCache(&l5playback.SimulatedDecoder{}, l5playback.CacheConfig{})
	asset, err := assets.Load(context.Background(), "primary", "promo.mp4")
	require.NoError(t, err)

	release(src, assets)
	assert.Equal(t, 1, src.Closes())
	assert.Zero(t, assets.Len())
	assert.ErrorIs(t, asset.Player.Play(), l5playback.ErrPlayerClosed)

	release(&closeCounter{Source: l1frames.NewSliceSource(time.Unix(2000, 0))}, nil)
}

func TestBootstrap_SyntheticCamera(t *testing.T) {
	loop, err := Bootstrap(context.Background(), BootstrapConfig{Camera: l1frames.NewSyntheticCamera()})
	require.NoError(t, err)
	defer loop.Close()

	_, err = loop.Tick()
	require.NoError(t, err)
	assert.Equal(t, "tracking", loop.TrackingStatus().State)
}
