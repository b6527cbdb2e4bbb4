package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/markerlens/internal/marker/l1frames"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
)

// ErrFrameProcessing is wrapped by every FrameProcessingError.
var ErrFrameProcessing = errors.New("frame processing failed")

// FrameProcessingError reports a failed tick. The render loop logs it and
// continues with the next tick.
type FrameProcessingError struct {
	Tick  uint64
	Stage string // acquire, render, scene or panic
	Err   error
}

func (e *FrameProcessingError) Error() string {
	return fmt.Sprintf("tick %d: %s: %v", e.Tick, e.Stage, e.Err)
}

func (e *FrameProcessingError) Unwrap() []error {
	return []error{ErrFrameProcessing, e.Err}
}

// key identifies repeats of the same failure across ticks.
func (e *FrameProcessingError) key() string {
	return e.Stage + ": " + e.Err.Error()
}

// IsFatal reports whether err must stop start-up: camera acquisition and
// tracking library readiness failures. Video asset failures are not fatal.
func IsFatal(err error) bool {
	var perm *l1frames.PermissionError
	var timeout *l2detection.LibraryLoadTimeoutError
	return errors.As(err, &perm) || errors.As(err, &timeout)
}
