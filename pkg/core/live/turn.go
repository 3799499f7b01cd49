package live

// TurnPhase is the per-turn state of the stream reconciler.
//
// Within a turn the phase only moves forward:
//
//	IDLE → LISTENING → THINKING → RESPONDING → COMMITTING
//
// Stages may be skipped. Turn completion and interruption return to IDLE.
type TurnPhase int

const (
	// PhaseIdle is the state between turns.
	PhaseIdle TurnPhase = iota
	// PhaseListening is when the user's speech is being transcribed.
	PhaseListening
	// PhaseThinking is when the model streams reasoning narration.
	PhaseThinking
	// PhaseResponding is when the model streams audio or output transcript.
	PhaseResponding
	// PhaseCommitting is while buffers are being committed to history.
	PhaseCommitting
)

// String returns a human-readable phase name.
func (p TurnPhase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseListening:
		return "LISTENING"
	case PhaseThinking:
		return "THINKING"
	case PhaseResponding:
		return "RESPONDING"
	case PhaseCommitting:
		return "COMMITTING"
	default:
		return "UNKNOWN"
	}
}

// advance returns the phase after observing to. Backward moves are ignored.
func (p TurnPhase) advance(to TurnPhase) TurnPhase {
	if to > p {
		return to
	}
	return p
}
