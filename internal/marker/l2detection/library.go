package l2detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/markerlens/internal/marker/l1frames"
	"github.com/banshee-data/markerlens/internal/timeutil"
)

// MatrixLen is the number of values in a library transform.
const MatrixLen = 16

// Readiness defaults.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxAttempts  = 50
	DefaultMarkerSize   = 1.0
)

// ErrLibraryLoadTimeout is wrapped by LibraryLoadTimeoutError.
var ErrLibraryLoadTimeout = errors.New("tracking library did not become ready")

// TrackingLibrary is an external marker tracker that localizes markers and
// reports their transforms.
type TrackingLibrary interface {
	// LoadReady reports whether the library finished initialising.
	LoadReady() bool
	// ProcessFrame analyses a frame; results are read with GetTransform.
	ProcessFrame(frame *l1frames.Frame)
	// MarkerCount is the number of marker slots to query.
	MarkerCount() int
	// GetTransform writes marker idx's 4x4 transform into out and reports
	// whether that marker was found in the last processed frame.
	GetTransform(idx int, size float64, out []float64) bool
}

// LibraryDetector adapts a TrackingLibrary to the Detector interface.
type LibraryDetector struct {
	lib        TrackingLibrary
	markerSize float64
	buf        []float64
}

// NewLibraryDetector wraps lib. Non-positive markerSize uses the default.
func NewLibraryDetector(lib TrackingLibrary, markerSize float64) *LibraryDetector {
	if markerSize <= 0 {
		markerSize = DefaultMarkerSize
	}
	return &LibraryDetector{lib: lib, markerSize: markerSize, buf: make([]float64, MatrixLen)}
}

// Emits reports KindSingle.
func (d *LibraryDetector) Emits() ResultKind { return KindSingle }

// Detect hands the frame to the library and returns the first marker it
// reports as found.
func (d *LibraryDetector) Detect(frame *l1frames.Frame) Result {
	if !frameUsable(frame) {
		return NoDetection{}
	}

	d.lib.ProcessFrame(frame)
	n := d.lib.MarkerCount()
	for i := 0; i < n; i++ {
		for j := range d.buf {
			d.buf[j] = 0
		}
		if !d.lib.GetTransform(i, d.markerSize, d.buf) {
			continue
		}
		values := make([]float64, MatrixLen)
		copy(values, d.buf)
		tracef("frame %d: library marker %d found", frame.Seq, i)
		return SingleDetection{Detection: Detection{Pose: MatrixPayload{Values: values}}}
	}
	return NoDetection{}
}

// ReadinessConfig bounds how long WaitReady polls.
type ReadinessConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// DefaultReadinessConfig polls every 100ms for at most 50 attempts.
func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{PollInterval: DefaultPollInterval, MaxAttempts: DefaultMaxAttempts}
}

// LibraryLoadTimeoutError reports that the library never became ready.
type LibraryLoadTimeoutError struct {
	Attempts int
	Waited   time.Duration
}

func (e *LibraryLoadTimeoutError) Error() string {
	return fmt.Sprintf("%v after %d attempts (%v)", ErrLibraryLoadTimeout, e.Attempts, e.Waited)
}

func (e *LibraryLoadTimeoutError) Unwrap() error { return ErrLibraryLoadTimeout }

// WaitReady polls lib.LoadReady every PollInterval, at most MaxAttempts
// times. It sleeps on clock between polls, so tests can drive it with a
// MockClock.
func WaitReady(ctx context.Context, lib TrackingLibrary, cfg ReadinessConfig, clock timeutil.Clock) error {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	start := clock.Now()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lib.LoadReady() {
			diagf("tracking library ready after %d attempts", attempt)
			return nil
		}
		if attempt < cfg.MaxAttempts {
			clock.Sleep(cfg.PollInterval)
		}
	}

	err := &LibraryLoadTimeoutError{Attempts: cfg.MaxAttempts, Waited: clock.Since(start)}
	opsf("%v", err)
	return err
}
