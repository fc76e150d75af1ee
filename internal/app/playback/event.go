package playback

// EventType represents a playback event type.
type EventType int

const (
	EventPhaseChanged       EventType = iota // Transition phase changed
	EventContextChanged                      // Queue context set or cleared
	EventActiveTrackChanged                  // Engine reported a new active item
	EventTransitionDropped                   // Request rejected by the guard
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPhaseChanged:
		return "phase_changed"
	case EventContextChanged:
		return "context_changed"
	case EventActiveTrackChanged:
		return "active_track_changed"
	case EventTransitionDropped:
		return "transition_dropped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type         EventType
	TransitionID string   // empty for engine-originated events
	Snapshot     Snapshot // Queue context after the change
}
