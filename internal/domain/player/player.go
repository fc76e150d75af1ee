// Package player provides the playback engine state types.
package player

import "github.com/osa030/tunesync/internal/domain/track"

// State represents the playback state reported by an engine.
type State int

const (
	StateIdle State = iota
	StateReady
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive reports whether the engine is rendering or about to render audio.
func (s State) IsActive() bool {
	return s == StatePlaying || s == StateReady || s == StateBuffering
}

// ActiveTrackChanged is emitted by an engine whenever its active item changes.
// Index is -1 when the engine has no active item. Track is nil when the
// engine did not resolve the item itself.
type ActiveTrackChanged struct {
	Index int
	Track *track.Track
}
