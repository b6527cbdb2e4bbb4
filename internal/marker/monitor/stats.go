package monitor

import (
	"sync"
	"time"
)

// DefaultStatsCapacity is the number of tick samples retained.
const DefaultStatsCapacity = 600

// TickSample records the outcome of one render-loop tick.
type TickSample struct {
	Tick       uint64        `json:"tick"`
	Timestamp  time.Time     `json:"timestamp"`
	Found      bool          `json:"found"`    // Detection and pose succeeded this tick
	Tracking   bool          `json:"tracking"` // State after the tick
	PixelMass  int           `json:"pixel_mass"`
	Detections int           `json:"detections"`
	CentroidX  float64       `json:"centroid_x"`
	CentroidY  float64       `json:"centroid_y"`
	Localized  bool          `json:"localized"`
	Duration   time.Duration `json:"duration_ns"`
	Err        string        `json:"err,omitempty"`
}

// Summary aggregates the retained samples.
type Summary struct {
	Samples      int           `json:"samples"`
	Found        int           `json:"found"`
	Errors       int           `json:"errors"`
	FoundRatio   float64       `json:"found_ratio"`
	MeanDuration time.Duration `json:"mean_duration_ns"`
	MaxDuration  time.Duration `json:"max_duration_ns"`
	LastTick     uint64        `json:"last_tick"`
}

// Stats is a bounded ring buffer of tick samples. It is safe for
// concurrent use.
type Stats struct {
	mu      sync.Mutex
	samples []TickSample
	next    int
	full    bool
	total   uint64
}

// NewStats creates a Stats retaining capacity samples.
func NewStats(capacity int) *Stats {
	if capacity <= 0 {
		capacity = DefaultStatsCapacity
	}
	return &Stats{samples: make([]TickSample, capacity)}
}

// Record appends a sample, overwriting the oldest when full.
func (s *Stats) Record(sample TickSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[s.next] = sample
	s.next = (s.next + 1) % len(s.samples)
	if s.next == 0 {
		s.full = true
	}
	s.total++
}

// Total returns how many samples were ever recorded.
func (s *Stats) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Snapshot returns the retained samples, oldest first.
func (s *Stats) Snapshot() []TickSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return append([]TickSample(nil), s.samples[:s.next]...)
	}
	out := make([]TickSample, 0, len(s.samples))
	out = append(out, s.samples[s.next:]...)
	return append(out, s.samples[:s.next]...)
}

// Summary aggregates the retained samples.
func (s *Stats) Summary() Summary {
	samples := s.Snapshot()
	sum := Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return sum
	}

	var total time.Duration
	for _, t := range samples {
		if t.Found {
			sum.Found++
		}
		if t.Err != "" {
			sum.Errors++
		}
		total += t.Duration
		if t.Duration > sum.MaxDuration {
			sum.MaxDuration = t.Duration
		}
	}
	sum.FoundRatio = float64(sum.Found) / float64(len(samples))
	sum.MeanDuration = total / time.Duration(len(samples))
	sum.LastTick = samples[len(samples)-1].Tick
	return sum
}
