package l5playback

import (
	"context"
	"errors"
	"time"
)

// Player errors.
var (
	ErrPlayerClosed    = errors.New("player closed")
	ErrAutoplayBlocked = errors.New("autoplay of unmuted media blocked")
)

// Player controls one decoded video.
type Player interface {
	// Ready is closed once enough data is buffered to start playback.
	Ready() <-chan struct{}
	Play() error
	Pause()
	Paused() bool
	CurrentTime() time.Duration
	Seek(pos time.Duration)
	SetMuted(muted bool)
	SetLoop(loop bool)
	SetVolume(volume float64)
	Close() error
}

// Decoder opens a video source.
type Decoder interface {
	Decode(ctx context.Context, name, src string) (Player, error)
}
