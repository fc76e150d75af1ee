package playback

// Outcome classifies how a transition request ended.
type Outcome int

const (
	OutcomePlaying    Outcome = iota // play issued
	OutcomePreloaded                 // engine queue filled without play
	OutcomeSkipped                   // nothing to do
	OutcomeDropped                   // rejected by the guard
	OutcomeNoPlayable                // no playable track in the request
	OutcomeFailed                    // engine call failed, transition abandoned
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePlaying:
		return "playing"
	case OutcomePreloaded:
		return "preloaded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDropped:
		return "dropped"
	case OutcomeNoPlayable:
		return "no_playable"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes a finished transition request.
// Callers must not treat OutcomePlaying as proof of what the engine plays;
// the engine's change notification is the final word.
type Result struct {
	Outcome      Outcome
	TransitionID string
	Index        int   // engine queue index targeted by the transition, -1 if none
	Converged    bool  // whether the engine confirmed the target before play
	Err          error // diagnostic cause for OutcomeFailed and OutcomeDropped
}
