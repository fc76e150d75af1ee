// Package playback coordinates the application queue context with an
// external playback engine that owns its own queue and play state.
package playback

// Phase represents the transition phase of the controller.
type Phase int

const (
	PhaseIdle       Phase = iota // No transition in flight
	PhaseGuarded                 // Guard acquired, deciding the path
	PhaseAppending               // Skipping or appending within the current engine queue
	PhaseRebuilding              // Resetting and refilling the engine queue
	PhaseConverging              // Waiting for the engine to settle before play
	PhasePlaying                 // Last transition resolved with play issued
	PhaseFailed                  // Last transition was abandoned
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGuarded:
		return "guarded"
	case PhaseAppending:
		return "appending"
	case PhaseRebuilding:
		return "rebuilding"
	case PhaseConverging:
		return "converging"
	case PhasePlaying:
		return "playing"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether the phase belongs to a running transition.
func (p Phase) InFlight() bool {
	switch p {
	case PhaseGuarded, PhaseAppending, PhaseRebuilding, PhaseConverging:
		return true
	default:
		return false
	}
}
