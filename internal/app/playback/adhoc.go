package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/filter"
	"github.com/osa030/tunesync/internal/app/identity"
	"github.com/osa030/tunesync/internal/domain/track"
)

// activeMatcher decides whether the desired track is the engine's active item.
var activeMatcher = identity.NewResolver(identity.StrategyID, identity.StrategyURL)

// PlayTrack plays a single track that is not part of a loaded list.
// The track is located in the engine queue first; if absent it is
// appended, and if the append never becomes visible the engine queue is
// replaced by the track alone.
func (c *Controller) PlayTrack(ctx context.Context, t track.Track) Result {
	id, finish, res, ok := c.begin("play_track")
	if !ok {
		return res
	}
	defer finish()

	if r := c.chain.Execute(ctx, t, filter.OriginAdHoc); !r.Accepted {
		zlog.Warn().Msgf("playback: track %s not playable (%s), transition=%s", t.Key(), r.Code, id)
		res.Outcome = OutcomeNoPlayable
		res.Err = errors.Newf("track rejected: %s", r.Code)
		return c.end(id, res)
	}

	if c.alreadyActive(ctx, t) {
		zlog.Debug().Msgf("playback: track %s already active, transition=%s", t.Key(), id)
		res.Outcome = OutcomeSkipped
		return c.end(id, res)
	}

	q, err := c.engine.Queue(ctx)
	if err != nil {
		return c.end(id, c.fail(res, engineErr(err, "queue")))
	}
	if m, err := c.resolver.Resolve(t, q); err == nil {
		zlog.Debug().Msgf("playback: track %s found at %d by %s, transition=%s", t.Key(), m.Index, m.Strategy, id)
		return c.end(id, c.skipWithinQueue(ctx, id, res, m.Index))
	}

	c.setPhase(id, PhaseAppending)
	if err := c.engine.Add(ctx, []track.Track{t}); err != nil {
		return c.end(id, c.fail(res, engineErr(err, "add")))
	}
	if idx, ok := c.locate(ctx, c.config.Append, t); ok {
		return c.end(id, c.skipWithinQueue(ctx, id, res, idx))
	}

	zlog.Warn().Msgf("playback: appended track %s not visible after %v, replacing engine queue, transition=%s",
		t.Key(), c.config.Append.Timeout, id)
	return c.end(id, c.fallback(ctx, id, res, t))
}

// fallback replaces the engine queue with t alone and plays it.
func (c *Controller) fallback(ctx context.Context, id string, res Result, t track.Track) Result {
	c.setPhase(id, PhaseRebuilding)
	if err := c.replaceQueue(ctx, []track.Track{t}); err != nil {
		return c.fail(res, err)
	}

	// The previous list is gone from the engine.
	c.commitContext(id, "", 0, 0)

	c.setPhase(id, PhaseConverging)
	res.Index = 0
	res.Converged = c.awaitActiveIndex(ctx, c.config.Fallback, 0)
	if !res.Converged {
		if c.config.StrictSettle {
			return c.fail(res, errors.Newf("engine did not settle after fallback within %v", c.config.Fallback.Timeout))
		}
		zlog.Warn().Msgf("playback: fallback queue did not settle within %v, playing anyway, transition=%s", c.config.Fallback.Timeout, id)
	}
	if err := c.engine.Play(ctx); err != nil {
		return c.fail(res, engineErr(err, "play"))
	}
	res.Outcome = OutcomePlaying
	c.markActivated(id)
	c.refreshNativeActive(ctx, id)
	return res
}

// alreadyActive reports whether t is the engine's active item and the
// engine is playing or about to play. Lookup failures count as "no".
func (c *Controller) alreadyActive(ctx context.Context, t track.Track) bool {
	idx, ok, err := c.engine.ActiveIndex(ctx)
	if err != nil || !ok {
		return false
	}
	q, err := c.engine.Queue(ctx)
	if err != nil || idx < 0 || idx >= len(q) {
		return false
	}
	if _, err := activeMatcher.Resolve(t, q[idx:idx+1]); err != nil {
		return false
	}
	state, err := c.engine.State(ctx)
	if err != nil {
		return false
	}
	return state.IsActive()
}
