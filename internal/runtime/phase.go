package runtime

// Phase is the runtime lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseClosing
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseClosing:
		return "closing"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (p Phase) closed() bool {
	return p == PhaseClosing || p == PhaseStopped
}
