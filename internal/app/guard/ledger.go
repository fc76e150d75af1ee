package guard

import (
	"context"
	"sync"
	"time"
)

// Ledger records the last action time per key.
// Entries are advisory: losing one early only allows a duplicate action.
type Ledger interface {
	// Claim records an action for key unless one was recorded within window.
	// It reports whether the caller may proceed.
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
	// Release marks the action for key as complete. The entry is expired
	// after the ledger's retention period.
	Release(ctx context.Context, key string) error
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	retention time.Duration
	now       func() time.Time
	afterFunc func(d time.Duration, f func())
}

// NewMemoryLedger creates a ledger whose entries are removed retention
// after release.
func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	return &MemoryLedger{
		entries:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Claim implements Ledger.
func (l *MemoryLedger) Claim(_ context.Context, key string, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.entries[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	l.entries[key] = now
	return true, nil
}

// Release implements Ledger.
func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	claimed, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	expire := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A newer claim owns the entry now.
		if cur, ok := l.entries[key]; ok && cur.Equal(claimed) {
			delete(l.entries, key)
		}
	}
	if l.retention <= 0 {
		expire()
		return nil
	}
	l.afterFunc(l.retention, expire)
	return nil
}

// Len returns the number of live entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
