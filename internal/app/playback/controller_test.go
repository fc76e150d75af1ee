package playback

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunesync/internal/app/filter"
	"github.com/osa030/tunesync/internal/app/poll"
	"github.com/osa030/tunesync/internal/domain/track"
)

func testConfig() Config {
	return Config{
		Settle:        poll.Budget{Interval: time.Millisecond, Timeout: 20 * time.Millisecond},
		Append:        poll.Attempts(3, time.Millisecond),
		Fallback:      poll.Budget{Interval: time.Millisecond, Timeout: 20 * time.Millisecond},
		NotifyTimeout: time.Second,
	}
}

func newTestController(t *testing.T, engine *fakeEngine, cfg Config) *Controller {
	t.Helper()
	c := NewController(engine, filter.NewChain(filter.NewSourceFilter()), cfg)
	t.Cleanup(c.Close)
	return c
}

func sampleTracks() []track.Track {
	return []track.Track{
		{ID: track.IDFromInt(1), URL: "/a.mp3"},
		{ID: track.IDFromInt(2), URL: "/b mp3 space.mp3"},
		{ID: track.IDFromInt(3), URL: "/c.mp3"},
	}
}

func TestController_PlaySelectedFromList_Rebuild(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())

	res := c.PlaySelectedFromList(context.Background(), ListRequest{
		Tracks:    sampleTracks(),
		Index:     1,
		ContextID: "songs",
	})

	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.True(t, res.Converged)
	assert.NotEmpty(t, res.TransitionID)
	assert.Equal(t, []track.ID{"2", "3", "1"}, engine.queueIDs())
	assert.Equal(t, []string{"reset", "add", "play"}, engine.snapshotCalls())
	assert.Equal(t, track.ID("2"), c.NativeActiveTrackID())
	assert.Equal(t, "songs", c.ActiveQueueID())
	assert.True(t, c.UserActivated())

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.RotationOffset)
	assert.Equal(t, 3, snap.RotationLen)
	assert.Equal(t, PhasePlaying, snap.Phase)
}

func TestController_SameContextSkipsWithinQueue(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	require.Equal(t, OutcomePlaying, c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 1, ContextID: "songs"}).Outcome)

	res := c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})
	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.Equal(t, 2, res.Index, "item 0 sits at (0-1) mod 3 in the rotated queue")
	assert.Equal(t, 1, engine.count("reset"))
	assert.Equal(t, 1, engine.count("skip"))
	assert.Equal(t, track.ID("1"), c.NativeActiveTrackID())
}

func TestController_SameContextRebuildsWhenListChanged(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})

	grown := append(sampleTracks(), track.Track{ID: "4", URL: "/d.mp3"})
	res := c.PlaySelectedFromList(ctx, ListRequest{Tracks: grown, Index: 3, ContextID: "songs"})
	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.Equal(t, 2, engine.count("reset"))
	assert.Equal(t, []track.ID{"4", "1", "2", "3"}, engine.queueIDs())
}

func TestController_SameContextReconcilesDivergedEngine(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 1, ContextID: "songs"})

	// Another client reordered the engine queue.
	engine.set(func(f *fakeEngine) {
		f.queue = []track.Track{f.queue[2], f.queue[0], f.queue[1]} // 1, 2, 3
	})

	res := c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 2, ContextID: "songs"})
	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.Equal(t, 2, res.Index)
	assert.Equal(t, 1, engine.count("reset"))
	assert.Equal(t, track.ID("3"), c.NativeActiveTrackID())

	// Engine no longer holds the list at all.
	engine.set(func(f *fakeEngine) { f.queue = []track.Track{{ID: "99", URL: "/z.mp3"}} })
	res = c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})
	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.Equal(t, 2, engine.count("reset"))
}

func TestController_ForceRebuilds(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})
	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 2, ContextID: "songs", Force: true})
	assert.Equal(t, 2, engine.count("reset"))
	assert.Equal(t, []track.ID{"3", "1", "2"}, engine.queueIDs())
}

func TestController_GuardMutualExclusion(t *testing.T) {
	engine := newFakeEngine()
	gate := make(chan struct{})
	enter := make(chan struct{}, 1)
	engine.set(func(f *fakeEngine) {
		f.resetGate = gate
		f.resetEnter = enter
	})
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	first := make(chan Result, 1)
	go func() {
		first <- c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "a"})
	}()
	<-enter

	second := c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 1, ContextID: "b"})
	assert.Equal(t, OutcomeDropped, second.Outcome)

	adHoc := c.PlayTrack(ctx, track.Track{ID: "9", URL: "/z.mp3"})
	assert.Equal(t, OutcomeDropped, adHoc.Outcome)

	close(gate)
	res := <-first
	assert.Equal(t, OutcomePlaying, res.Outcome)
	assert.Equal(t, 1, engine.count("reset"))
	assert.Equal(t, "a", c.ActiveQueueID())
}

func TestController_CooldownDropsFollowUp(t *testing.T) {
	engine := newFakeEngine()
	cfg := testConfig()
	cfg.Cooldown = time.Hour
	c := newTestController(t, engine, cfg)
	ctx := context.Background()

	require.Equal(t, OutcomePlaying, c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "a"}).Outcome)
	res := c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "b"})
	assert.Equal(t, OutcomeDropped, res.Outcome)
	assert.Equal(t, "a", c.ActiveQueueID())
}

func TestController_SettleTimeout(t *testing.T) {
	t.Run("best effort play", func(t *testing.T) {
		engine := newFakeEngine()
		engine.set(func(f *fakeEngine) { f.stuckActive = true })
		c := newTestController(t, engine, testConfig())

		res := c.PlaySelectedFromList(context.Background(), ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
		assert.Equal(t, OutcomePlaying, res.Outcome)
		assert.False(t, res.Converged)
		assert.Equal(t, 1, engine.count("play"))
		assert.Equal(t, track.ID(""), c.NativeActiveTrackID(), "native id waits for the engine")
	})

	t.Run("strict settle abandons", func(t *testing.T) {
		engine := newFakeEngine()
		engine.set(func(f *fakeEngine) { f.stuckActive = true })
		cfg := testConfig()
		cfg.StrictSettle = true
		c := newTestController(t, engine, cfg)

		res := c.PlaySelectedFromList(context.Background(), ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Error(t, res.Err)
		assert.Equal(t, 0, engine.count("play"))
		assert.Equal(t, PhaseFailed, c.Snapshot().Phase)
		assert.False(t, c.UserActivated(), "nothing was played")
		assert.Empty(t, c.ActiveQueueID())
	})

	t.Run("strict settle drops the replaced context", func(t *testing.T) {
		engine := newFakeEngine()
		cfg := testConfig()
		cfg.StrictSettle = true
		c := newTestController(t, engine, cfg)
		ctx := context.Background()

		require.Equal(t, OutcomePlaying, c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"}).Outcome)
		engine.set(func(f *fakeEngine) { f.stuckActive = true })

		res := c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "album", Force: true})
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Empty(t, c.ActiveQueueID(), "the engine no longer mirrors songs")
	})

	t.Run("failed play leaves the user inactive", func(t *testing.T) {
		engine := newFakeEngine()
		engine.set(func(f *fakeEngine) { f.failOn["play"] = errors.New("device gone") })
		c := newTestController(t, engine, testConfig())

		res := c.PlaySelectedFromList(context.Background(), ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.False(t, c.UserActivated())
	})
}

func TestController_EngineFailureReleasesGuard(t *testing.T) {
	engine := newFakeEngine()
	engine.set(func(f *fakeEngine) { f.failOn["add"] = errors.New("engine offline") })
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	res := c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, ErrEngine))
	assert.Empty(t, c.ActiveQueueID())

	engine.set(func(f *fakeEngine) { delete(f.failOn, "add") })
	res = c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	assert.Equal(t, OutcomePlaying, res.Outcome)
}

func TestController_NoPlayableTracks(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())

	res := c.PlaySelectedFromList(context.Background(), ListRequest{
		Tracks:    []track.Track{{ID: "1"}, {ID: "2"}},
		ContextID: "songs",
	})
	assert.Equal(t, OutcomeNoPlayable, res.Outcome)
	assert.Empty(t, engine.snapshotCalls())

	res = c.PlaySelectedFromList(context.Background(), ListRequest{ContextID: "songs"})
	assert.Equal(t, OutcomeNoPlayable, res.Outcome)
}

func TestController_PlayTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("found in queue", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())
		c.LoadQueue(ctx, sampleTracks(), "songs")

		res := c.PlayTrack(ctx, track.Track{URL: "/b%20mp3%20space.mp3"})
		require.Equal(t, OutcomePlaying, res.Outcome)
		assert.Equal(t, 1, res.Index)
		assert.Equal(t, 1, engine.count("add"), "no append for a queued track")
		assert.Equal(t, track.ID("2"), c.NativeActiveTrackID())
		assert.Equal(t, "songs", c.ActiveQueueID())
	})

	t.Run("appended", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())
		c.LoadQueue(ctx, sampleTracks(), "songs")

		res := c.PlayTrack(ctx, track.Track{ID: "9", URL: "/z.mp3"})
		require.Equal(t, OutcomePlaying, res.Outcome)
		assert.Equal(t, 3, res.Index)
		assert.Equal(t, []track.ID{"1", "2", "3", "9"}, engine.queueIDs())
		assert.Equal(t, 1, engine.count("reset"))
		assert.True(t, c.UserActivated())
	})

	t.Run("already active", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())
		c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})

		res := c.PlayTrack(ctx, track.Track{URL: "/a.mp3"})
		assert.Equal(t, OutcomeSkipped, res.Outcome)
		assert.Equal(t, 0, engine.count("skip"))
	})

	t.Run("paused active track is replayed", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())
		c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})
		require.NoError(t, c.Pause(ctx))

		res := c.PlayTrack(ctx, track.Track{URL: "/a.mp3"})
		assert.Equal(t, OutcomePlaying, res.Outcome)
		assert.Equal(t, 0, res.Index)
	})

	t.Run("not playable", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())

		res := c.PlayTrack(ctx, track.Track{ID: "9"})
		assert.Equal(t, OutcomeNoPlayable, res.Outcome)
		assert.Empty(t, engine.snapshotCalls())
	})
}

func TestController_PlayTrackFallsBackToRebuild(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), Index: 0, ContextID: "songs"})
	engine.set(func(f *fakeEngine) { f.hideAppends = true })

	res := c.PlayTrack(ctx, track.Track{ID: "9", URL: "/z.mp3"})
	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.True(t, res.Converged)
	assert.Equal(t, []track.ID{"9"}, engine.queueIDs())
	assert.Equal(t, 2, engine.count("reset"))
	assert.Equal(t, track.ID("9"), c.NativeActiveTrackID())
	assert.Empty(t, c.ActiveQueueID(), "the previous list is no longer mirrored")
	assert.True(t, c.UserActivated())
}

func TestController_InitializeQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped when engine populated", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())
		c.LoadQueue(ctx, sampleTracks(), "songs")

		res := c.InitializeQueue(ctx, InitRequest{Tracks: sampleTracks(), Index: 2})
		assert.Equal(t, OutcomeSkipped, res.Outcome)
		assert.Equal(t, 1, engine.count("reset"))
	})

	t.Run("preload without play", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())

		res := c.InitializeQueue(ctx, InitRequest{Tracks: sampleTracks(), Index: 2})
		assert.Equal(t, OutcomePreloaded, res.Outcome)
		assert.Equal(t, []track.ID{"1", "2", "3"}, engine.queueIDs())
		assert.Equal(t, []string{"reset", "add", "skip"}, engine.snapshotCalls())
		assert.False(t, c.UserActivated())
		assert.Empty(t, c.ActiveQueueID())
	})

	t.Run("forced autoplay", func(t *testing.T) {
		engine := newFakeEngine()
		c := newTestController(t, engine, testConfig())
		c.LoadQueue(ctx, []track.Track{{ID: "9", URL: "/z.mp3"}}, "other")

		tracks := []track.Track{{ID: "1", URL: "/a.mp3"}, {ID: "x"}, {ID: "3", URL: "/c.mp3"}}
		res := c.InitializeQueue(ctx, InitRequest{Tracks: tracks, Index: 2, Force: true, AutoPlay: true})
		require.Equal(t, OutcomePlaying, res.Outcome)
		assert.Equal(t, 1, res.Index)
		assert.Equal(t, []track.ID{"1", "3"}, engine.queueIDs())
		assert.Equal(t, track.ID("3"), c.NativeActiveTrackID())
		assert.False(t, c.UserActivated())
		assert.Empty(t, c.ActiveQueueID())
	})
}

func TestController_LoadQueue(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())

	res := c.LoadQueue(context.Background(), sampleTracks(), "recommendations")
	assert.Equal(t, OutcomePreloaded, res.Outcome)
	assert.Equal(t, "recommendations", c.ActiveQueueID())
	assert.Equal(t, 0, engine.count("play"))
	assert.False(t, c.UserActivated())

	res = c.LoadQueue(context.Background(), []track.Track{{ID: "1"}}, "empty")
	assert.Equal(t, OutcomeNoPlayable, res.Outcome)
	assert.Equal(t, "recommendations", c.ActiveQueueID())
}

func TestController_ChangeNotifications(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	c.LoadQueue(ctx, sampleTracks(), "songs")
	engine.emit(2)
	assert.Eventually(t, func() bool {
		return c.NativeActiveTrackID() == "3"
	}, time.Second, 5*time.Millisecond)

	engine.emit(-1)
	assert.Equal(t, track.ID(""), c.NativeActiveTrackID())
}

func TestController_StopAndClose(t *testing.T) {
	engine := newFakeEngine()
	c := NewController(engine, nil, testConfig())
	ctx := context.Background()

	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	require.NoError(t, c.Stop(ctx))
	assert.Empty(t, c.ActiveQueueID())
	assert.False(t, c.UserActivated())
	assert.Equal(t, 1, engine.count("pause"))

	assert.Equal(t, 1, engine.subscriberCount())
	c.Close()
	c.Close()
	assert.Equal(t, 0, engine.subscriberCount())
}

func TestController_StopDuringTransitionKeepsContextCleared(t *testing.T) {
	engine := newFakeEngine()
	gate := make(chan struct{})
	enter := make(chan struct{}, 1)
	engine.set(func(f *fakeEngine) {
		f.resetGate = gate
		f.resetEnter = enter
	})
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	inFlight := make(chan Result, 1)
	go func() {
		inFlight <- c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	}()
	<-enter

	require.NoError(t, c.Stop(ctx))
	close(gate)
	res := <-inFlight

	assert.Equal(t, OutcomePlaying, res.Outcome, "the engine transition still completes")
	assert.Empty(t, c.ActiveQueueID())
	assert.False(t, c.UserActivated())

	engine.set(func(f *fakeEngine) { f.resetGate, f.resetEnter = nil, nil })
	res = c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	require.Equal(t, OutcomePlaying, res.Outcome)
	assert.Equal(t, "songs", c.ActiveQueueID())
	assert.True(t, c.UserActivated())
}

func TestController_StopClearsContextOnEngineError(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())
	ctx := context.Background()

	c.PlaySelectedFromList(ctx, ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	engine.set(func(f *fakeEngine) { f.failOn["pause"] = errors.New("gone") })

	err := c.Stop(ctx)
	assert.True(t, errors.Is(err, ErrEngine))
	assert.Empty(t, c.ActiveQueueID())
}

func TestController_Events(t *testing.T) {
	engine := newFakeEngine()
	c := newTestController(t, engine, testConfig())

	res := c.PlaySelectedFromList(context.Background(), ListRequest{Tracks: sampleTracks(), ContextID: "songs"})
	require.Equal(t, OutcomePlaying, res.Outcome)

	var types []EventType
	for len(c.Events()) > 0 {
		ev := <-c.Events()
		types = append(types, ev.Type)
		if ev.TransitionID != "" {
			assert.Equal(t, res.TransitionID, ev.TransitionID)
		}
	}
	assert.Contains(t, types, EventPhaseChanged)
	assert.Contains(t, types, EventContextChanged)
	assert.Contains(t, types, EventActiveTrackChanged)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "converging", PhaseConverging.String())
	assert.True(t, PhaseRebuilding.InFlight())
	assert.False(t, PhasePlaying.InFlight())
	assert.Equal(t, "dropped", OutcomeDropped.String())
}
