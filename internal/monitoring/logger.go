package monitoring

import (
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Suppressor reports whether a keyed message should be emitted. The first
// occurrence of each key passes; repeats are counted and swallowed until
// Reset or Forget is called for that key.
type Suppressor struct {
	mu      sync.Mutex
	repeats map[string]int
}

// NewSuppressor returns an empty Suppressor.
func NewSuppressor() *Suppressor {
	return &Suppressor{repeats: make(map[string]int)}
}

// Allow returns true the first time key is seen.
func (s *Suppressor) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, seen := s.repeats[key]
	if !seen {
		s.repeats[key] = 0
		return true
	}
	s.repeats[key] = n + 1
	return false
}

// Suppressed returns how many repeats of key have been swallowed.
func (s *Suppressor) Suppressed(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeats[key]
}

// Forget clears key so its next occurrence is emitted again, returning the
// number of repeats that were suppressed.
func (s *Suppressor) Forget(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.repeats[key]
	delete(s.repeats, key)
	return n
}

// Reset clears all keys.
func (s *Suppressor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeats = make(map[string]int)
}
