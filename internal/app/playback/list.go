package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunesync/internal/app/identity"
	"github.com/osa030/tunesync/internal/app/queue"
	"github.com/osa030/tunesync/internal/domain/track"
)

// ListRequest asks to play a list starting at one of its items.
type ListRequest struct {
	Tracks    []track.Track
	Index     int
	ContextID string // identifies the logical list, empty for anonymous lists
	Force     bool   // rebuild even when ContextID is already active
}

// InitRequest asks to preload the engine queue.
type InitRequest struct {
	Tracks   []track.Track
	Index    int
	Force    bool // replace a non-empty engine queue
	AutoPlay bool
}

// PlaySelectedFromList plays req.Tracks starting at req.Index.
// When req.ContextID is already mirrored into the engine the controller
// skips within the existing queue; otherwise it rebuilds the engine queue
// rotated so the selected item comes first.
func (c *Controller) PlaySelectedFromList(ctx context.Context, req ListRequest) Result {
	id, finish, res, ok := c.begin("play_selected")
	if !ok {
		return res
	}
	defer finish()

	if len(req.Tracks) == 0 {
		res.Outcome = OutcomeNoPlayable
		return c.end(id, res)
	}

	if !req.Force {
		if offset, n, ok := c.state.rotation(req.ContextID); ok {
			if pos, ok := c.fastPathIndex(ctx, req, offset, n); ok {
				return c.end(id, c.skipWithinQueue(ctx, id, res, pos))
			}
			zlog.Info().Msgf("playback: context %q diverged from engine, rebuilding, transition=%s", req.ContextID, id)
		}
	}

	return c.end(id, c.rebuild(ctx, id, res, req))
}

// fastPathIndex computes the engine index of req.Index inside the queue
// built for the same context, and verifies it against the engine.
func (c *Controller) fastPathIndex(ctx context.Context, req ListRequest, offset, n int) (int, bool) {
	filtered, origin := c.builder.Filter(ctx, req.Tracks)
	if len(filtered) != n {
		zlog.Debug().Msgf("playback: list length changed %d -> %d", n, len(filtered))
		return 0, false
	}

	index := min(max(req.Index, 0), len(req.Tracks)-1)
	fi := -1
	for i, src := range origin {
		if src == index {
			fi = i
			break
		}
	}
	if fi < 0 {
		m, err := c.resolver.Resolve(req.Tracks[index], filtered)
		if err != nil {
			return 0, false
		}
		fi = m.Index
	}
	desired := filtered[fi]
	pos := queue.RotatedPosition(fi, offset, n)

	q, err := c.engine.Queue(ctx)
	if err != nil {
		zlog.Warn().Err(err).Msg("playback: engine queue unavailable for fast path")
		return 0, false
	}
	if pos < len(q) && identity.SameTrack(desired, q[pos]) {
		return pos, true
	}
	// The engine queue moved under us; trust what it holds.
	m, err := c.resolver.Resolve(desired, q)
	if err != nil {
		return 0, false
	}
	return m.Index, true
}

func (c *Controller) skipWithinQueue(ctx context.Context, id string, res Result, pos int) Result {
	c.setPhase(id, PhaseAppending)
	res.Index = pos
	if err := c.skipAndPlay(ctx, pos); err != nil {
		return c.fail(res, err)
	}
	res.Outcome = OutcomePlaying
	res.Converged = true
	c.markActivated(id)
	c.refreshNativeActive(ctx, id)
	zlog.Info().Msgf("playback: skipped to index %d within current queue, transition=%s", pos, id)
	return res
}

func (c *Controller) rebuild(ctx context.Context, id string, res Result, req ListRequest) Result {
	plan, err := c.builder.Build(ctx, req.Tracks, req.Index)
	if err != nil {
		res.Outcome = OutcomeNoPlayable
		res.Err = err
		return res
	}

	c.setPhase(id, PhaseRebuilding)
	if err := c.replaceQueue(ctx, plan.Tracks); err != nil {
		return c.fail(res, err)
	}

	c.setPhase(id, PhaseConverging)
	res.Index = 0
	res.Converged = c.awaitActiveIndex(ctx, c.config.Settle, 0)

	if !res.Converged && c.config.StrictSettle {
		// The previous list is gone from the engine and the new one never settled.
		c.commitContext(id, "", 0, 0)
		return c.fail(res, errors.Newf("engine did not settle on index 0 within %v", c.config.Settle.Timeout))
	}
	c.commitContext(id, req.ContextID, plan.Offset, plan.Len())
	if !res.Converged {
		zlog.Warn().Msgf("playback: engine did not settle on index 0 within %v, playing anyway, transition=%s", c.config.Settle.Timeout, id)
	}

	if err := c.engine.Play(ctx); err != nil {
		return c.fail(res, engineErr(err, "play"))
	}
	res.Outcome = OutcomePlaying
	c.markActivated(id)
	c.refreshNativeActive(ctx, id)
	zlog.Info().Msgf("playback: rebuilt queue for context %q (%d tracks, offset %d), transition=%s",
		req.ContextID, plan.Len(), plan.Offset, id)
	return res
}

// InitializeQueue preloads the engine with req.Tracks in list order,
// positioned on req.Index. Unless req.Force is set, a non-empty engine
// queue is left alone. It never marks the context as user activated.
func (c *Controller) InitializeQueue(ctx context.Context, req InitRequest) Result {
	id, finish, res, ok := c.begin("initialize_queue")
	if !ok {
		return res
	}
	defer finish()

	if !req.Force {
		q, err := c.engine.Queue(ctx)
		if err != nil {
			zlog.Warn().Err(err).Msgf("playback: engine queue unavailable, initializing anyway, transition=%s", id)
		} else if len(q) > 0 {
			zlog.Debug().Msgf("playback: engine queue already populated, transition=%s", id)
			res.Outcome = OutcomeSkipped
			return c.end(id, res)
		}
	}

	plan, err := c.builder.Build(ctx, req.Tracks, req.Index)
	if err != nil {
		res.Outcome = OutcomeNoPlayable
		res.Err = err
		return c.end(id, res)
	}

	c.setPhase(id, PhaseRebuilding)
	if err := c.replaceQueue(ctx, plan.Filtered); err != nil {
		return c.end(id, c.fail(res, err))
	}
	if plan.Offset > 0 {
		if err := c.engine.Skip(ctx, plan.Offset); err != nil {
			return c.end(id, c.fail(res, engineErr(err, "skip")))
		}
	}
	res.Index = plan.Offset

	// The engine no longer mirrors any named list.
	c.commitContext(id, "", 0, plan.Len())

	if !req.AutoPlay {
		res.Outcome = OutcomePreloaded
		zlog.Info().Msgf("playback: preloaded %d tracks, transition=%s", plan.Len(), id)
		return c.end(id, res)
	}

	c.setPhase(id, PhaseConverging)
	res.Converged = c.awaitActiveIndex(ctx, c.config.Settle, plan.Offset)
	if !res.Converged {
		zlog.Warn().Msgf("playback: engine did not settle on index %d, playing anyway, transition=%s", plan.Offset, id)
	}
	if err := c.engine.Play(ctx); err != nil {
		return c.end(id, c.fail(res, engineErr(err, "play")))
	}
	res.Outcome = OutcomePlaying
	c.refreshNativeActive(ctx, id)
	return c.end(id, res)
}

// LoadQueue mirrors tracks into the engine under contextID without
// starting playback.
func (c *Controller) LoadQueue(ctx context.Context, tracks []track.Track, contextID string) Result {
	id, finish, res, ok := c.begin("load_queue")
	if !ok {
		return res
	}
	defer finish()

	filtered, _ := c.builder.Filter(ctx, tracks)
	if len(filtered) == 0 {
		zlog.Warn().Msgf("playback: no playable tracks to load, transition=%s", id)
		res.Outcome = OutcomeNoPlayable
		return c.end(id, res)
	}

	c.setPhase(id, PhaseRebuilding)
	if err := c.replaceQueue(ctx, filtered); err != nil {
		return c.end(id, c.fail(res, err))
	}

	c.commitContext(id, contextID, 0, len(filtered))
	res.Outcome = OutcomePreloaded
	zlog.Info().Msgf("playback: loaded %d tracks for context %q, transition=%s", len(filtered), contextID, id)
	return c.end(id, res)
}
