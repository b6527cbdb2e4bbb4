package l5playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/markerlens/internal/timeutil"
)

// SimulatedDecoder produces clock-driven players for headless runs and
// tests. Zero values are usable: players are ready immediately and have
// no fixed duration.
type SimulatedDecoder struct {
	Clock    timeutil.Clock
	Preroll  time.Duration // Time from Decode until Ready closes
	Duration time.Duration // Clip length; zero means unbounded

	// RequireMutedAutoplay makes Play fail with ErrAutoplayBlocked on
	// unmuted players, like a browser autoplay policy.
	RequireMutedAutoplay bool

	// Fail maps sources to decode errors. Stall lists sources whose players
	// never become ready.
	Fail  map[string]error
	Stall map[string]bool

	// Gate, when set, blocks Decode until it is closed or ctx ends.
	Gate <-chan struct{}

	decodes atomic.Int64
}

// Decodes returns how many times Decode has been called.
func (d *SimulatedDecoder) Decodes() int64 { return d.decodes.Load() }

// Decode returns a new SimulatedPlayer for src.
func (d *SimulatedDecoder) Decode(ctx context.Context, name, src string) (Player, error) {
	d.decodes.Add(1)

	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := d.Fail[src]; ok {
		if err == nil {
			err = fmt.Errorf("unsupported source %s", src)
		}
		return nil, err
	}

	clock := d.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := &SimulatedPlayer{
		clock:       clock,
		name:        name,
		duration:    d.Duration,
		requireMute: d.RequireMutedAutoplay,
		ready:       make(chan struct{}),
		closed:      make(chan struct{}),
		paused:      true,
		volume:      1,
	}
	if !d.Stall[src] {
		go p.preroll(clock.After(d.Preroll))
	}
	return p, nil
}

// SimulatedPlayer is a Player whose position advances with its clock while
// playing.
type SimulatedPlayer struct {
	clock       timeutil.Clock
	name        string
	duration    time.Duration
	requireMute bool

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	paused    bool
	muted     bool
	loop      bool
	volume    float64
	position  time.Duration // Position at playStart
	playStart time.Time
	plays     int
}

func (p *SimulatedPlayer) preroll(after <-chan time.Time) {
	select {
	case <-after:
		close(p.ready)
	case <-p.closed:
	}
}

// Ready is closed once preroll completes.
func (p *SimulatedPlayer) Ready() <-chan struct{} { return p.ready }

// Play starts or resumes playback.
func (p *SimulatedPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.closed:
		return ErrPlayerClosed
	default:
	}
	if p.requireMute && !p.muted {
		return ErrAutoplayBlocked
	}
	if !p.paused {
		return nil
	}
	p.paused = false
	p.playStart = p.clock.Now()
	p.plays++
	return nil
}

// Pause stops playback, keeping the current position.
func (p *SimulatedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.position = p.currentLocked()
	p.paused = true
}

// Paused reports whether playback is stopped.
func (p *SimulatedPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// CurrentTime returns the playback position.
func (p *SimulatedPlayer) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *SimulatedPlayer) currentLocked() time.Duration {
	pos := p.position
	if !p.paused {
		pos += p.clock.Since(p.playStart)
	}
	if p.duration > 0 && pos >= p.duration {
		if p.loop {
			return pos % p.duration
		}
		return p.duration
	}
	return pos
}

// Seek moves the playback position.
func (p *SimulatedPlayer) Seek(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	p.position = pos
	p.playStart = p.clock.Now()
}

// SetMuted sets the muted flag.
func (p *SimulatedPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Muted reports the muted flag.
func (p *SimulatedPlayer) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// SetLoop sets the loop flag.
func (p *SimulatedPlayer) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

// Loop reports the loop flag.
func (p *SimulatedPlayer) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// SetVolume sets the volume, clamped to [0, 1].
func (p *SimulatedPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = min(max(volume, 0), 1)
}

// Volume returns the volume.
func (p *SimulatedPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Plays returns how many times playback started from paused.
func (p *SimulatedPlayer) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

// Close releases the player. Further Play calls fail.
func (p *SimulatedPlayer) Close() error {
	p.closeOnce.Do(func() {
		p.Pause()
		close(p.closed)
	})
	return nil
}
