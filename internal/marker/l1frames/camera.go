package l1frames

import (
	"context"
	"errors"
	"fmt"
)

// Facing selects the camera direction requested by Constraints.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Constraints are the requested capture dimensions and direction.
// Zero width or height means "native size".
type Constraints struct {
	Width  int
	Height int
	Facing Facing
}

// Source exposes the live frame stream of an acquired camera.
type Source interface {
	// Ready reports whether enough data has been decoded to produce frames.
	Ready() bool
	// Frame returns the current frame. It never blocks; when the source is
	// not ready the returned frame has Ready=false.
	Frame() (*Frame, error)
	// Close releases the source.
	Close() error
}

// Camera acquires a frame source. Failures are *PermissionError.
type Camera interface {
	Acquire(ctx context.Context, c Constraints) (Source, error)
}

// Sentinel acquisition failures. A *PermissionError wraps exactly one.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	ErrInsecureContext  = errors.New("camera requires a secure context")
)

// PermissionError reports a fatal camera acquisition failure.
type PermissionError struct {
	Reason error  // One of ErrPermissionDenied, ErrNoDevice, ErrInsecureContext
	Device string // Device or path that was requested
	Err    error  // Underlying cause, may be nil
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquire %s: %v: %v", e.Device, e.Reason, e.Err)
	}
	return fmt.Sprintf("acquire %s: %v", e.Device, e.Reason)
}

// Is matches the sentinel reason.
func (e *PermissionError) Is(target error) bool {
	return target == e.Reason
}

func (e *PermissionError) Unwrap() error { return e.Err }
