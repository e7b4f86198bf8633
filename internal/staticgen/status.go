package staticgen

import (
	"sync"
	"time"
)

// Status holds the outcome of the most recent run for status endpoints. The
// zero value reports a run still in progress.
type Status struct {
	mu       sync.RWMutex
	last     Result
	finished time.Time
	done     bool
}

// Record stores res as the latest outcome, finished at t.
func (s *Status) Record(res Result, t time.Time) {
	s.mu.Lock()
	s.last, s.finished, s.done = res, t, true
	s.mu.Unlock()
}

// Last returns the latest outcome and when it finished. ok is false until
// the first run completes.
func (s *Status) Last() (res Result, finished time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.finished, s.done
}
