package playback

import (
	"context"

	"github.com/osa030/tunesync/internal/domain/player"
	"github.com/osa030/tunesync/internal/domain/track"
)

// Engine is the external playback engine.
// Mutations are asynchronous: a call returning nil does not mean the
// change is already observable through Queue or ActiveIndex.
type Engine interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, tracks []track.Track) error
	Skip(ctx context.Context, index int) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Queue(ctx context.Context) ([]track.Track, error)
	// ActiveIndex returns false when the engine has no active item.
	ActiveIndex(ctx context.Context) (int, bool, error)
	State(ctx context.Context) (player.State, error)
	// Subscribe registers fn for active item changes and returns a
	// function that removes the registration.
	Subscribe(fn func(player.ActiveTrackChanged)) (unsubscribe func())
}
