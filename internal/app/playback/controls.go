package playback

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// Pause pauses the engine. It does not touch the queue context.
func (c *Controller) Pause(ctx context.Context) error {
	if err := c.engine.Pause(ctx); err != nil {
		return engineErr(err, "pause")
	}
	return nil
}

// Resume resumes the engine.
func (c *Controller) Resume(ctx context.Context) error {
	if err := c.engine.Play(ctx); err != nil {
		return engineErr(err, "play")
	}
	return nil
}

// Stop pauses the engine and clears the queue context.
// The context is cleared even when the engine call fails.
func (c *Controller) Stop(ctx context.Context) error {
	defer c.ClearContext()
	if err := c.engine.Pause(ctx); err != nil {
		return engineErr(err, "pause")
	}
	return nil
}

// ClearContext forgets the mirrored list, e.g. on logout. It does not wait
// for the guard: a transition already in flight still finishes on the
// engine but no longer records its context or user activation.
func (c *Controller) ClearContext() {
	snap := c.state.clear()
	zlog.Info().Msg("playback: queue context cleared")
	c.sendEvent(Event{Type: EventContextChanged, Snapshot: snap})
}
