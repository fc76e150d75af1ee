package player

import "sync"

// Notifier fans active item changes out to registered callbacks.
// The zero value is ready to use.
type Notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(ActiveTrackChanged)
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(ActiveTrackChanged)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(ActiveTrackChanged))
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

// Notify calls every registered callback synchronously.
func (n *Notifier) Notify(ev ActiveTrackChanged) {
	n.mu.RLock()
	fns := make([]func(ActiveTrackChanged), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of registered callbacks.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
