package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/markerlens/internal/marker/l2detection"
	"github.com/banshee-data/markerlens/internal/marker/l3pose"
	"github.com/banshee-data/markerlens/internal/marker/l4tracking"
	"github.com/banshee-data/markerlens/internal/marker/monitor"
	"github.com/banshee-data/markerlens/internal/monitoring"
	"github.com/banshee-data/markerlens/internal/timeutil"
)

// TickResult summarises one completed tick.
type TickResult struct {
	Tick      uint64
	Detection *l2detection.Detection // Primary detection, nil on a miss
	Pose      *l3pose.Transform
	Events    []l4tracking.Event
}

// Found reports whether both detection and pose succeeded.
func (r TickResult) Found() bool { return r.Detection != nil && r.Pose != nil }

// RenderLoop drives acquire, detect, estimate, track and render once per
// tick. Tick, Step and Run must not be called concurrently.
type RenderLoop struct {
	app *AppContext

	// MaxTicks stops Run after this many ticks when non-zero.
	MaxTicks uint64

	mu      sync.Mutex
	tick    uint64
	lastKey string
	closed  bool

	// updated is set once the current tick has reached the state machine.
	updated bool
}

// NewRenderLoop validates app and fills in its optional collaborators.
func NewRenderLoop(app *AppContext) (*RenderLoop, error) {
	if app == nil {
		return nil, errors.New("nil app context")
	}
	if err := app.validate(); err != nil {
		return nil, fmt.Errorf("invalid app context: %w", err)
	}
	if app.Clock == nil {
		app.Clock = timeutil.RealClock{}
	}
	if app.Suppressor == nil {
		app.Suppressor = monitoring.NewSuppressor()
	}
	if app.AnchorID == "" {
		app.AnchorID = DefaultAnchorNodeID
	}
	return &RenderLoop{app: app}, nil
}

// App returns the loop's application context.
func (l *RenderLoop) App() *AppContext { return l.app }

// Ticks returns how many ticks have started.
func (l *RenderLoop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tick
}

func (l *RenderLoop) nextTick() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.tick
	l.tick++
	return n
}

// Tick processes the current frame synchronously. The scene is rendered
// exactly once even when acquisition fails; such a tick counts as a miss
// and its error is returned after rendering.
func (l *RenderLoop) Tick() (TickResult, error) {
	return l.tickN(l.nextTick())
}

func (l *RenderLoop) tickN(n uint64) (TickResult, error) {
	l.updated = false
	app := l.app
	start := app.Clock.Now()
	out := TickResult{Tick: n}

	var tickErr error
	frame, err := app.Source.Frame()
	if err != nil {
		tickErr = &FrameProcessingError{Tick: n, Stage: "acquire", Err: err}
		frame = nil
	}

	res := app.Detector.Detect(frame)
	if det, ok := res.Primary(); ok {
		out.Detection = &det
		if pose, ok := app.Estimator.Estimate(det); ok {
			out.Pose = &pose
		}
	}

	ts := start
	if frame != nil && frame.Ready && !frame.Timestamp.IsZero() {
		ts = frame.Timestamp
	}
	l.updated = true
	out.Events = app.Tracker.Update(l4tracking.Observation{
		Tick:      n,
		Timestamp: ts,
		Detection: out.Detection,
		Pose:      out.Pose,
	})

	state := app.Tracker.State()
	if state.IsTracking && out.Pose != nil {
		if err := app.Scene.SetTransform(app.AnchorID, *out.Pose); err != nil && tickErr == nil {
			tickErr = &FrameProcessingError{Tick: n, Stage: "scene", Err: err}
		}
	}

	if err := app.Renderer.Render(app.Scene, app.Camera); err != nil && tickErr == nil {
		tickErr = &FrameProcessingError{Tick: n, Stage: "render", Err: err}
	}

	if app.Stats != nil {
		sample := monitor.TickSample{
			Tick:       n,
			Timestamp:  ts,
			Found:      out.Found(),
			Tracking:   state.IsTracking,
			Detections: len(res.Detections()),
			Duration:   app.Clock.Since(start),
		}
		if d := out.Detection; d != nil {
			sample.PixelMass = d.PixelMass
			sample.Localized = d.Localized
			sample.CentroidX = d.Centroid.X
			sample.CentroidY = d.Centroid.Y
		}
		if tickErr != nil {
			sample.Err = tickErr.Error()
		}
		app.Stats.Record(sample)
	}

	tracef("tick %d: %s detections=%d found=%v tracking=%v misses=%d",
		n, res.Kind(), len(res.Detections()), out.Found(), state.IsTracking, state.ConsecutiveMisses)
	return out, tickErr
}

// Step runs one tick and absorbs its failure. Panics inside a stage are
// recovered and reported as FrameProcessingError; a tick that panics before
// reaching the state machine still counts as a miss. Repeated identical
// failures are logged once until a tick succeeds again.
func (l *RenderLoop) Step() (res TickResult, err error) {
	n := l.nextTick()
	defer func() {
		if r := recover(); r != nil {
			err = &FrameProcessingError{Tick: n, Stage: "panic", Err: fmt.Errorf("%v", r)}
			res = TickResult{Tick: n}
			if !l.updated {
				res.Events = l.miss(n)
			}
			if l.app.Stats != nil {
				l.app.Stats.Record(monitor.TickSample{
					Tick:      n,
					Timestamp: l.app.Clock.Now(),
					Tracking:  l.app.Tracker.State().IsTracking,
					Err:       err.Error(),
				})
			}
		}
		l.report(err)
	}()
	return l.tickN(n)
}

// miss feeds the state machine an empty observation for tick n.
func (l *RenderLoop) miss(n uint64) (events []l4tracking.Event) {
	l.updated = true
	defer func() {
		if r := recover(); r != nil {
			diagf("tick %d: state machine update after panic failed: %v", n, r)
		}
	}()
	return l.app.Tracker.Update(l4tracking.Observation{Tick: n, Timestamp: l.app.Clock.Now()})
}

func (l *RenderLoop) report(err error) {
	sup := l.app.Suppressor
	if err == nil {
		if l.lastKey != "" {
			if n := sup.Forget(l.lastKey); n > 0 {
				diagf("recovered after %d repeats of %q", n, l.lastKey)
			}
			l.lastKey = ""
		}
		return
	}
	key := err.Error()
	var fpe *FrameProcessingError
	if errors.As(err, &fpe) {
		key = fpe.key()
	}
	if l.lastKey != "" && l.lastKey != key {
		sup.Forget(l.lastKey)
	}
	l.lastKey = key
	if sup.Allow(key) {
		opsf("%v", err)
	}
}

// Run ticks at the configured frame rate until ctx is cancelled or
// MaxTicks is reached. Per-tick failures never stop the loop.
func (l *RenderLoop) Run(ctx context.Context) error {
	interval := l.app.interval()
	ticker := l.app.Clock.NewTicker(interval)
	defer ticker.Stop()

	diagf("render loop started: interval=%v", interval)
	start := l.Ticks()
	for {
		if l.MaxTicks > 0 && l.Ticks()-start >= l.MaxTicks {
			diagf("render loop stopping after %d ticks", l.MaxTicks)
			return nil
		}
		select {
		case <-ctx.Done():
			diagf("render loop stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C():
			l.Step()
		}
	}
}

// TrackingStatus reports the live tracking state for the monitor.
func (l *RenderLoop) TrackingStatus() monitor.TrackingStatus {
	app := l.app
	state := app.Tracker.State()
	stats := app.Tracker.Stats()
	status := monitor.TrackingStatus{
		State:             string(state.State()),
		ConsecutiveMisses: state.ConsecutiveMisses,
		Ticks:             stats.Ticks,
		Acquisitions:      stats.Acquisitions,
		Losses:            stats.Losses,
	}
	if state.IsTracking {
		status.AcquisitionID = state.AcquisitionID.String()
	}
	if app.Playback != nil {
		status.PlayStarts = app.Playback.PlayStarts()
	}
	if fc, ok := app.Renderer.(interface{ Frames() uint64 }); ok {
		status.RenderedFrames = fc.Frames()
	}
	return status
}

// Close releases the frame source and disposes loaded video assets.
// It is safe to call more than once.
func (l *RenderLoop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	var errs []error
	if err := l.app.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	if l.app.Assets != nil {
		if err := l.app.Assets.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear assets: %w", err))
		}
	}
	return errors.Join(errs...)
}

