// Package guard provides the concurrency guards used around playback
// transitions and entity toggles.
package guard

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrBusy        = errors.New("another operation is in flight")
	ErrCoolingDown = errors.New("cooldown since last completion has not elapsed")
	ErrDebounced   = errors.New("repeated request inside debounce window")
)

// SingleFlight admits at most one operation at a time and rejects new
// operations for a cooldown period after the last one completed.
// Rejected requests are dropped, never queued.
type SingleFlight struct {
	mu            sync.Mutex
	busy          bool
	lastCompleted time.Time
	cooldown      time.Duration
	now           func() time.Time
}

// NewSingleFlight creates a guard with the given cooldown.
func NewSingleFlight(cooldown time.Duration) *SingleFlight {
	return &SingleFlight{
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (g *SingleFlight) WithClock(now func() time.Time) *SingleFlight {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	return g
}

// TryAcquire claims the guard. On success the returned release function
// must be called exactly once when the operation finishes; extra calls
// are ignored.
func (g *SingleFlight) TryAcquire() (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy {
		return nil, ErrBusy
	}
	if !g.lastCompleted.IsZero() && g.now().Sub(g.lastCompleted) < g.cooldown {
		return nil, ErrCoolingDown
	}

	g.busy = true
	var once sync.Once
	return func() {
		once.Do(g.release)
	}, nil
}

func (g *SingleFlight) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = false
	g.lastCompleted = g.now()
}

// Busy reports whether an operation currently holds the guard.
func (g *SingleFlight) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
