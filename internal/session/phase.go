package session

type Phase int

const (
	PhaseGreeting Phase = iota
	PhaseResolvingIntent
	PhaseSearchingDirectory
	PhaseConsulting
	PhaseTransferring
	PhaseTakingMessage
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseGreeting:
		return "Greeting"
	case PhaseResolvingIntent:
		return "ResolvingIntent"
	case PhaseSearchingDirectory:
		return "SearchingDirectory"
	case PhaseConsulting:
		return "Consulting"
	case PhaseTransferring:
		return "Transferring"
	case PhaseTakingMessage:
		return "TakingMessage"
	case PhaseClosing:
		return "Closing"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Every phase except Closed may also move to Closing when the caller hangs up
// or the session fails.
var allowedTransitions = map[Phase][]Phase{
	PhaseGreeting:           {PhaseResolvingIntent},
	PhaseResolvingIntent:    {PhaseSearchingDirectory, PhaseTakingMessage},
	PhaseSearchingDirectory: {PhaseConsulting, PhaseTakingMessage},
	PhaseConsulting:         {PhaseTransferring, PhaseTakingMessage},
	PhaseTransferring:       {PhaseTakingMessage},
	PhaseTakingMessage:      {},
	PhaseClosing:            {PhaseClosed},
}

func (p Phase) CanTransitionTo(next Phase) bool {
	if next == PhaseClosing {
		return p != PhaseClosing && p != PhaseClosed
	}

	for _, allowed := range allowedTransitions[p] {
		if allowed == next {
			return true
		}
	}

	return false
}
