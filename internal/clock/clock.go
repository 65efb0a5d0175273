// Package clock provides population.Clock implementations.
package clock

import (
	"sync"
	"time"
)

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock for tests and replays. Each Now call advances it by Step.
type Manual struct {
	mu   sync.Mutex
	t    time.Time
	Step time.Duration
}

// NewManual starts a Manual clock at t.
func NewManual(t time.Time, step time.Duration) *Manual {
	return &Manual{t: t.UTC(), Step: step}
}

// Now returns the current value and advances by Step.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.t
	m.t = m.t.Add(m.Step)
	return now
}
