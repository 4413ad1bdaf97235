// Package clock supplies the current time to the queue engine.
// All queue math is done on unix seconds taken from a Clock.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual starts a manual clock at the given unix second.
func NewManual(unix int64) *Manual {
	return &Manual{now: time.Unix(unix, 0)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps the clock to the given unix second.
func (m *Manual) Set(unix int64) {
	m.mu.Lock()
	m.now = time.Unix(unix, 0)
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Unix is shorthand for c.Now().Unix().
func Unix(c Clock) int64 {
	return c.Now().Unix()
}
