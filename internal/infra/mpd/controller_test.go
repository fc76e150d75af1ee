package mpd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunesync/internal/app/filter"
	"github.com/osa030/tunesync/internal/app/playback"
	"github.com/osa030/tunesync/internal/app/poll"
	"github.com/osa030/tunesync/internal/domain/track"
)

func newMPDController(t *testing.T, c *fakeConn, strict bool) *playback.Controller {
	t.Helper()
	e, _ := newTestEngine(c)
	ctrl := playback.NewController(e, filter.NewChain(filter.NewSourceFilter()), playback.Config{
		Settle:        poll.Budget{Interval: time.Millisecond, Timeout: time.Second},
		Append:        poll.Attempts(3, time.Millisecond),
		Fallback:      poll.Budget{Interval: time.Millisecond, Timeout: time.Second},
		StrictSettle:  strict,
		NotifyTimeout: time.Second,
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func albumTracks() []track.Track {
	return []track.Track{
		{ID: "1", URL: "/a.mp3"},
		{ID: "2", URL: "/b mp3 space.mp3"},
		{ID: "3", URL: "/c.mp3"},
	}
}

func TestEngine_RebuildSettlesOnFirstEntry(t *testing.T) {
	for _, strict := range []bool{false, true} {
		name := "best effort"
		if strict {
			name = "strict settle"
		}
		t.Run(name, func(t *testing.T) {
			// Something else is playing when the list is selected.
			c := &fakeConn{files: []string{"old/x.mp3", "old/y.mp3"}, song: 1, state: "play"}
			ctrl := newMPDController(t, c, strict)

			start := time.Now()
			res := ctrl.PlaySelectedFromList(context.Background(), playback.ListRequest{
				Tracks:    albumTracks(),
				Index:     1,
				ContextID: "album",
			})

			require.Equal(t, playback.OutcomePlaying, res.Outcome, "err: %v", res.Err)
			assert.True(t, res.Converged)
			assert.Less(t, time.Since(start), 500*time.Millisecond, "rebuild must not wait out the settle budget")
			assert.Equal(t, []string{"/b mp3 space.mp3", "/c.mp3", "/a.mp3"}, c.files)
			assert.Equal(t, []int{-1}, c.plays)
			assert.Equal(t, track.ID("2"), ctrl.NativeActiveTrackID())
			assert.True(t, ctrl.UserActivated())
			assert.Equal(t, "album", ctrl.ActiveQueueID())
		})
	}
}

func TestEngine_PlayTrackAppendsToQueue(t *testing.T) {
	c := &fakeConn{song: -1, state: "stop"}
	ctrl := newMPDController(t, c, true)
	ctx := context.Background()

	require.Equal(t, playback.OutcomePreloaded, ctrl.LoadQueue(ctx, albumTracks(), "album").Outcome)

	res := ctrl.PlayTrack(ctx, track.Track{ID: "9", URL: "/radio/edit.mp3"})
	require.Equal(t, playback.OutcomePlaying, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, 3, res.Index)
	assert.Equal(t, []int{3, -1}, c.plays)
	assert.Equal(t, track.ID("9"), ctrl.NativeActiveTrackID())

	// Selecting the track that is already playing is a no-op.
	res = ctrl.PlayTrack(ctx, track.Track{ID: "9", URL: "/radio/edit.mp3"})
	assert.Equal(t, playback.OutcomeSkipped, res.Outcome)
}
