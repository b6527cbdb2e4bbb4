package l4tracking

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/markerlens/internal/config"
	"github.com/banshee-data/markerlens/internal/marker/l2detection"
	"github.com/banshee-data/markerlens/internal/marker/l3pose"
)

// State is the tracking lifecycle state.
type State string

const (
	StateLost     State = "lost"     // No marker; initial state
	StateTracking State = "tracking" // Marker acquired and posed
)

// EventKind identifies a lifecycle transition.
type EventKind string

const (
	MarkerFound EventKind = "marker_found"
	MarkerLost  EventKind = "marker_lost"
)

// DefaultMissTolerance loses the marker on the first failing tick.
const DefaultMissTolerance = 1

// Config configures the state machine.
type Config struct {
	// MissTolerance is the number of consecutive failing ticks needed to
	// declare the marker lost. Must be at least 1.
	MissTolerance int
}

// DefaultConfig returns the immediate-loss configuration.
func DefaultConfig() Config {
	return Config{MissTolerance: DefaultMissTolerance}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{MissTolerance: cfg.GetMissTolerance()}
}

// Observation is one tick's input. The tick succeeds only when both
// Detection and Pose are present.
type Observation struct {
	Tick      uint64
	Timestamp time.Time
	Detection *l2detection.Detection
	Pose      *l3pose.Transform
}

func (o Observation) success() bool {
	return o.Detection != nil && o.Pose != nil
}

// Event reports a lifecycle transition. Found and Lost events of the same
// acquisition share an AcquisitionID.
type Event struct {
	Kind          EventKind
	AcquisitionID uuid.UUID
	Tick          uint64
	Timestamp     time.Time
	// Detection is the acquiring detection for MarkerFound and the last
	// successful detection for MarkerLost.
	Detection *l2detection.Detection
	Pose      *l3pose.Transform // Set on MarkerFound only
}

// Subscriber receives events synchronously, in emission order.
type Subscriber interface {
	HandleTrackingEvent(Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event)

// HandleTrackingEvent calls f(ev).
func (f SubscriberFunc) HandleTrackingEvent(ev Event) { f(ev) }

// TrackState is a snapshot of the machine's state.
type TrackState struct {
	IsTracking        bool
	LastDetection     *l2detection.Detection
	ConsecutiveMisses int
	AcquisitionID     uuid.UUID // uuid.Nil while lost
}

// State returns StateTracking or StateLost.
func (s TrackState) State() State {
	if s.IsTracking {
		return StateTracking
	}
	return StateLost
}

// Stats counts ticks and transitions since construction or Reset.
type Stats struct {
	Ticks        uint64 `json:"ticks"`
	Successes    uint64 `json:"successes"`
	Acquisitions uint64 `json:"acquisitions"`
	Losses       uint64 `json:"losses"`
}

// StateMachine turns per-tick observations into MarkerFound/MarkerLost
// events.
type StateMachine struct {
	cfg Config

	mu          sync.Mutex
	state       TrackState
	stats       Stats
	subscribers []Subscriber
}

// NewStateMachine validates cfg and returns a machine in StateLost.
func NewStateMachine(cfg Config) (*StateMachine, error) {
	if cfg.MissTolerance < 1 {
		return nil, fmt.Errorf("miss tolerance must be at least 1, got %d", cfg.MissTolerance)
	}
	return &StateMachine{cfg: cfg}, nil
}

// Subscribe registers s. Subscribers are called in registration order.
func (m *StateMachine) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, s)
}

// Update folds one observation into the state and returns the events it
// produced (zero or one). Events are delivered to subscribers before
// Update returns, outside the machine's lock.
func (m *StateMachine) Update(obs Observation) []Event {
	m.mu.Lock()
	events := m.step(obs)
	subs := append([]Subscriber(nil), m.subscribers...)
	m.mu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			s.HandleTrackingEvent(ev)
		}
	}
	return events
}

// step applies obs. Caller holds m.mu.
func (m *StateMachine) step(obs Observation) []Event {
	m.stats.Ticks++

	if obs.success() {
		m.stats.Successes++
		det := *obs.Detection
		m.state.LastDetection = &det
		m.state.ConsecutiveMisses = 0

		if m.state.IsTracking {
			return nil
		}

		m.state.IsTracking = true
		m.state.AcquisitionID = uuid.New()
		m.stats.Acquisitions++
		pose := *obs.Pose
		diagf("tick %d: marker found (acquisition %s)", obs.Tick, m.state.AcquisitionID)
		return []Event{{
			Kind:          MarkerFound,
			AcquisitionID: m.state.AcquisitionID,
			Tick:          obs.Tick,
			Timestamp:     obs.Timestamp,
			Detection:     &det,
			Pose:          &pose,
		}}
	}

	if !m.state.IsTracking {
		return nil
	}

	m.state.ConsecutiveMisses++
	if m.state.ConsecutiveMisses < m.cfg.MissTolerance {
		tracef("tick %d: miss %d/%d", obs.Tick, m.state.ConsecutiveMisses, m.cfg.MissTolerance)
		return nil
	}

	ev := Event{
		Kind:          MarkerLost,
		AcquisitionID: m.state.AcquisitionID,
		Tick:          obs.Tick,
		Timestamp:     obs.Timestamp,
		Detection:     m.state.LastDetection,
	}
	diagf("tick %d: marker lost after %d misses (acquisition %s)",
		obs.Tick, m.state.ConsecutiveMisses, m.state.AcquisitionID)
	m.stats.Losses++
	m.state = TrackState{}
	return []Event{ev}
}

// State returns a snapshot of the current state.
func (m *StateMachine) State() TrackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the tick and transition counters.
func (m *StateMachine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Config returns the machine's configuration.
func (m *StateMachine) Config() Config { return m.cfg }

// Reset returns to StateLost without emitting events and clears stats.
// Subscribers are kept.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = TrackState{}
	m.stats = Stats{}
}
