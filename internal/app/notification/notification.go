package notification

import (
	"github.com/osa030/tunesync/internal/app/library"
	"github.com/osa030/tunesync/internal/app/playback"
)

// Type identifies what a notification reports.
type Type int

const (
	// TypeState carries a queue context snapshot.
	TypeState Type = iota
	// TypeActiveTrack reports a new engine active item.
	TypeActiveTrack
	// TypeFavorite reports a remote-confirmed favorite flag.
	TypeFavorite
	// TypeTransitionDropped reports a transition refused by the play guard.
	TypeTransitionDropped
)

func (t Type) String() string {
	switch t {
	case TypeState:
		return "STATE"
	case TypeActiveTrack:
		return "ACTIVE_TRACK"
	case TypeFavorite:
		return "FAVORITE"
	case TypeTransitionDropped:
		return "TRANSITION_DROPPED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	for c := TypeState; c <= TypeTransitionDropped; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	*t = -1
	return nil
}

// Notification is one message delivered to subscribers.
type Notification struct {
	SequenceNo   uint64                 `json:"sequenceNo"`
	Type         Type                   `json:"type"`
	TransitionID string                 `json:"transitionId,omitempty"`
	Phase        string                 `json:"phase,omitempty"`
	State        *playback.Snapshot     `json:"state,omitempty"`
	Favorite     *library.FavoriteState `json:"favorite,omitempty"`
}

// FromEvent converts a controller event.
func FromEvent(ev playback.Event) *Notification {
	snap := ev.Snapshot
	n := &Notification{
		TransitionID: ev.TransitionID,
		Phase:        snap.Phase.String(),
		State:        &snap,
	}
	switch ev.Type {
	case playback.EventActiveTrackChanged:
		n.Type = TypeActiveTrack
	case playback.EventTransitionDropped:
		n.Type = TypeTransitionDropped
	default:
		n.Type = TypeState
	}
	return n
}
