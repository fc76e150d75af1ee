package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/filter"
	"github.com/osa030/tunesync/internal/app/guard"
	"github.com/osa030/tunesync/internal/app/identity"
	"github.com/osa030/tunesync/internal/app/poll"
	"github.com/osa030/tunesync/internal/app/queue"
	"github.com/osa030/tunesync/internal/domain/player"
	"github.com/osa030/tunesync/internal/domain/track"
)

// ErrEngine marks failures of engine calls.
var ErrEngine = errors.New("engine call failed")

// Config holds controller configuration.
type Config struct {
	Cooldown         time.Duration // Minimum interval after a completed transition
	QueueUpdateDelay time.Duration // Pause after a bulk add before querying the engine
	Settle           poll.Budget   // Active index convergence after a rebuild
	Append           poll.Budget   // Locating an appended item
	Fallback         poll.Budget   // Convergence after the single-item fallback rebuild
	StrictSettle     bool          // Abandon instead of playing when the rebuild does not settle
	NotifyTimeout    time.Duration // Engine lookup budget when handling change notifications
}

// DefaultConfig returns the timings the controller was tuned with.
func DefaultConfig() Config {
	return Config{
		Cooldown:         300 * time.Millisecond,
		QueueUpdateDelay: 200 * time.Millisecond,
		Settle:           poll.Budget{Interval: 100 * time.Millisecond, Timeout: 1500 * time.Millisecond},
		Append:           poll.Attempts(8, 200*time.Millisecond),
		Fallback:         poll.Budget{Interval: 100 * time.Millisecond, Timeout: 3 * time.Second},
		NotifyTimeout:    2 * time.Second,
	}
}

// Controller is the playback orchestrator. It is the only component that
// mutates the engine queue, and only while holding its guard.
type Controller struct {
	engine   Engine
	builder  *queue.Builder
	chain    *filter.Chain
	resolver *identity.Resolver
	guard    *guard.SingleFlight
	config   Config

	state queueContext
	// Context epoch seen by the transition holding the guard
	epoch uint64

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe func()
	mu          sync.Mutex
	closed      bool
	wg          sync.WaitGroup
}

// NewController creates a controller and subscribes to engine change
// notifications. Close releases the subscription.
func NewController(engine Engine, chain *filter.Chain, config Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		engine:   engine,
		builder:  queue.NewBuilder(chain),
		chain:    chain,
		resolver: identity.NewResolver(),
		guard:    guard.NewSingleFlight(config.Cooldown),
		config:   config,
		eventCh:  make(chan Event, 10),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.unsubscribe = engine.Subscribe(c.onActiveTrackChanged)
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Snapshot returns the current queue context.
func (c *Controller) Snapshot() Snapshot {
	return c.state.snapshot()
}

// ActiveQueueID returns the id of the list mirrored into the engine.
func (c *Controller) ActiveQueueID() string {
	return c.state.snapshot().ContextID
}

// NativeActiveTrackID returns the engine's active item as last reported.
func (c *Controller) NativeActiveTrackID() track.ID {
	return c.state.snapshot().NativeActiveTrackID
}

// UserActivated reports whether a user-initiated play has been confirmed.
func (c *Controller) UserActivated() bool {
	return c.state.snapshot().UserActivated
}

// Engine returns the engine driven by the controller.
func (c *Controller) Engine() Engine {
	return c.engine
}

// Close unsubscribes from the engine and stops event delivery.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.cancel()
	c.wg.Wait()
}

// begin acquires the guard for a new transition.
// On success the caller must invoke the returned finish function.
func (c *Controller) begin(op string) (id string, finish func(), res Result, ok bool) {
	id = uuid.NewString()
	release, err := c.guard.TryAcquire()
	if err != nil {
		zlog.Info().Msgf("playback: %s dropped (%v), transition=%s", op, err, id)
		c.sendEvent(Event{Type: EventTransitionDropped, TransitionID: id, Snapshot: c.state.snapshot()})
		return id, nil, Result{Outcome: OutcomeDropped, TransitionID: id, Index: -1, Err: err}, false
	}

	c.epoch = c.state.currentEpoch()
	c.setPhase(id, PhaseGuarded)
	zlog.Debug().Msgf("playback: %s started, transition=%s", op, id)
	return id, release, Result{TransitionID: id, Index: -1}, true
}

// end records the final phase for a finished transition.
func (c *Controller) end(id string, res Result) Result {
	switch res.Outcome {
	case OutcomePlaying:
		c.setPhase(id, PhasePlaying)
	case OutcomeFailed:
		c.setPhase(id, PhaseFailed)
		zlog.Error().Err(res.Err).Msgf("playback: transition abandoned, transition=%s", id)
	default:
		c.setPhase(id, PhaseIdle)
	}
	return res
}

func (c *Controller) fail(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}

func (c *Controller) setPhase(id string, p Phase) {
	if snap, changed := c.state.setPhase(p); changed {
		c.sendEvent(Event{Type: EventPhaseChanged, TransitionID: id, Snapshot: snap})
	}
}

func (c *Controller) sendEvent(e Event) {
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
		// Channel full, drop event
		zlog.Warn().Msgf("playback: event channel full, dropped %s", e.Type)
	}
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// engineErr marks err as an engine failure of op.
func engineErr(err error, op string) error {
	return errors.Mark(errors.Wrapf(err, "engine %s", op), ErrEngine)
}

// commitContext records the list the transition mirrored into the engine.
// A context cleared since the transition began stays cleared.
func (c *Controller) commitContext(id, contextID string, offset, n int) {
	snap, ok := c.state.setContext(c.epoch, contextID, offset, n)
	if !ok {
		zlog.Info().Msgf("playback: context cleared during transition, not recording %q, transition=%s", contextID, id)
		return
	}
	c.sendEvent(Event{Type: EventContextChanged, TransitionID: id, Snapshot: snap})
}

// markActivated records a confirmed user-initiated play.
func (c *Controller) markActivated(id string) {
	if snap, changed := c.state.setUserActivated(c.epoch, true); changed {
		c.sendEvent(Event{Type: EventContextChanged, TransitionID: id, Snapshot: snap})
	}
}

// skipAndPlay moves the engine to index and starts playback.
func (c *Controller) skipAndPlay(ctx context.Context, index int) error {
	if err := c.engine.Skip(ctx, index); err != nil {
		return engineErr(err, "skip")
	}
	if err := c.engine.Play(ctx); err != nil {
		return engineErr(err, "play")
	}
	return nil
}

// replaceQueue resets the engine and adds tracks.
func (c *Controller) replaceQueue(ctx context.Context, tracks []track.Track) error {
	if err := c.engine.Reset(ctx); err != nil {
		return engineErr(err, "reset")
	}
	if err := c.engine.Add(ctx, tracks); err != nil {
		return engineErr(err, "add")
	}
	return wait(ctx, c.config.QueueUpdateDelay)
}

// awaitActiveIndex polls until the engine reports index as active.
func (c *Controller) awaitActiveIndex(ctx context.Context, b poll.Budget, index int) bool {
	return poll.Until(ctx, b, func(ctx context.Context) (bool, error) {
		idx, ok, err := c.engine.ActiveIndex(ctx)
		if err != nil {
			return false, err
		}
		return ok && idx == index, nil
	})
}

// locate polls the engine queue until desired can be resolved in it.
func (c *Controller) locate(ctx context.Context, b poll.Budget, desired track.Track) (int, bool) {
	found := -1
	ok := poll.Until(ctx, b, func(ctx context.Context) (bool, error) {
		q, err := c.engine.Queue(ctx)
		if err != nil {
			return false, err
		}
		m, err := c.resolver.Resolve(desired, q)
		if err != nil {
			return false, nil
		}
		found = m.Index
		return true, nil
	})
	return found, ok
}

// refreshNativeActive reads the engine's active item and records its id.
func (c *Controller) refreshNativeActive(ctx context.Context, transitionID string) {
	idx, ok, err := c.engine.ActiveIndex(ctx)
	if err != nil || !ok {
		if err != nil {
			zlog.Warn().Err(err).Msgf("playback: active index unavailable, transition=%s", transitionID)
		}
		return
	}
	q, err := c.engine.Queue(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: queue unavailable, transition=%s", transitionID)
		return
	}
	if idx < 0 || idx >= len(q) {
		return
	}
	c.setNativeActive(transitionID, q[idx].ID)
}

func (c *Controller) setNativeActive(transitionID string, id track.ID) {
	if snap, changed := c.state.setNativeActive(id); changed {
		zlog.Debug().Msgf("playback: native active track=%s", id)
		c.sendEvent(Event{Type: EventActiveTrackChanged, TransitionID: transitionID, Snapshot: snap})
	}
}

// onActiveTrackChanged handles engine change notifications. The engine
// may call it from its own goroutine.
func (c *Controller) onActiveTrackChanged(ev player.ActiveTrackChanged) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if ev.Index < 0 {
		c.setNativeActive("", "")
		return
	}
	if ev.Track != nil {
		c.setNativeActive("", ev.Track.ID)
		return
	}

	// Look the item up outside the engine's callback.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timeout := c.config.NotifyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(c.ctx, timeout)
		defer cancel()

		q, err := c.engine.Queue(ctx)
		if err != nil {
			zlog.Warn().Err(err).Msg("playback: failed to read queue for change notification")
			return
		}
		if ev.Index >= len(q) {
			c.setNativeActive("", "")
			return
		}
		c.setNativeActive("", q[ev.Index].ID)
	}()
}
