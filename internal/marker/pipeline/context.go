package pipeline

import (
	"errors"
	"time"

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

// DefaultAnchorNodeID names the plane that follows the marker.
const DefaultAnchorNodeID = "anchor"

// AppContext holds every collaborator of a running pipeline. It is built
// once, by Bootstrap or by hand in tests, and passed explicitly.
type AppContext struct {
	Source    l1frames.Source
	Detector  l2detection.Detector
	Estimator *l3pose.Estimator
	Tracker   *l4tracking.StateMachine
	Playback  *l5playback.Controller // Optional
	Assets    *l5playback.AssetCache // Optional; cleared on Close

	Scene    *scene.Scene
	Camera   scene.Camera
	Renderer scene.Renderer
	AnchorID string

	Stats      *monitor.Stats         // Optional
	Suppressor *monitoring.Suppressor // Created if nil
	Clock      timeutil.Clock         // RealClock if nil
	TargetFPS  float64
}

func (a *AppContext) validate() error {
	var errs []error
	if a.Source == nil {
		errs = append(errs, errors.New("missing frame source"))
	}
	if a.Detector == nil {
		errs = append(errs, errors.New("missing detector"))
	}
	if a.Estimator == nil {
		errs = append(errs, errors.New("missing pose estimator"))
	}
	if a.Tracker == nil {
		errs = append(errs, errors.New("missing state machine"))
	}
	if a.Scene == nil {
		errs = append(errs, errors.New("missing scene"))
	}
	if a.Renderer == nil {
		errs = append(errs, errors.New("missing renderer"))
	}
	return errors.Join(errs...)
}

// interval returns the tick period for TargetFPS.
func (a *AppContext) interval() time.Duration {
	fps := a.TargetFPS
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}
