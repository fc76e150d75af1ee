package playback

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunesync/internal/domain/player"
	"github.com/osa030/tunesync/internal/domain/track"
)

// fakeEngine is an in-memory engine with knobs for the failure modes
// the controller has to survive.
type fakeEngine struct {
	mu     sync.Mutex
	queue  []track.Track
	active int
	state  player.State
	calls  []string
	subs   map[int]func(player.ActiveTrackChanged)
	nextID int

	hideAppends bool             // Add onto a non-empty queue never becomes visible
	stuckActive bool             // ActiveIndex never reports an item
	failOn      map[string]error // per-method failures
	resetGate   chan struct{}    // Reset blocks until closed
	resetEnter  chan struct{}    // signalled when Reset is entered
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		active: -1,
		subs:   make(map[int]func(player.ActiveTrackChanged)),
		failOn: make(map[string]error),
	}
}

func (f *fakeEngine) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeEngine) Reset(ctx context.Context) error {
	f.mu.Lock()
	gate, enter := f.resetGate, f.resetEnter
	f.mu.Unlock()
	if enter != nil {
		enter <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reset"); err != nil {
		return err
	}
	f.queue = nil
	f.active = -1
	f.state = player.StateIdle
	return nil
}

func (f *fakeEngine) Add(ctx context.Context, tracks []track.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add"); err != nil {
		return err
	}
	if f.hideAppends && len(f.queue) > 0 {
		return nil
	}
	wasEmpty := len(f.queue) == 0
	f.queue = append(f.queue, tracks...)
	if wasEmpty && len(f.queue) > 0 {
		f.active = 0
		f.state = player.StateReady
	}
	return nil
}

func (f *fakeEngine) Skip(ctx context.Context, index int) error {
	f.mu.Lock()
	if err := f.record("skip"); err != nil {
		f.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(f.queue) {
		f.mu.Unlock()
		return errors.Newf("index %d out of range", index)
	}
	f.active = index
	t := f.queue[index]
	subs := f.subscribersLocked()
	f.mu.Unlock()

	for _, fn := range subs {
		fn(player.ActiveTrackChanged{Index: index, Track: &t})
	}
	return nil
}

func (f *fakeEngine) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("play"); err != nil {
		return err
	}
	f.state = player.StatePlaying
	return nil
}

func (f *fakeEngine) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("pause"); err != nil {
		return err
	}
	f.state = player.StatePaused
	return nil
}

func (f *fakeEngine) Queue(ctx context.Context) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["queue"]; err != nil {
		return nil, err
	}
	return append([]track.Track(nil), f.queue...), nil
}

func (f *fakeEngine) ActiveIndex(ctx context.Context) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stuckActive || f.active < 0 {
		return 0, false, nil
	}
	return f.active, true, nil
}

func (f *fakeEngine) State(ctx context.Context) (player.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeEngine) Subscribe(fn func(player.ActiveTrackChanged)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// emit simulates an engine change notification without a resolved track.
func (f *fakeEngine) emit(index int) {
	f.mu.Lock()
	f.active = index
	subs := f.subscribersLocked()
	f.mu.Unlock()
	for _, fn := range subs {
		fn(player.ActiveTrackChanged{Index: index})
	}
}

func (f *fakeEngine) subscribersLocked() []func(player.ActiveTrackChanged) {
	out := make([]func(player.ActiveTrackChanged), 0, len(f.subs))
	for _, fn := range f.subs {
		out = append(out, fn)
	}
	return out
}

func (f *fakeEngine) set(fn func(f *fakeEngine)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeEngine) snapshotCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) count(call string) int {
	n := 0
	for _, c := range f.snapshotCalls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeEngine) queueIDs() []track.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]track.ID, len(f.queue))
	for i, t := range f.queue {
		ids[i] = t.ID
	}
	return ids
}

func (f *fakeEngine) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
