package exapp

// State is the lifecycle state of an App.
type State int

const (
	StateFailed State = iota - 1
	StatePending
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateFailed:
		return "failed"
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Phase identifies which module operation an event or error refers to.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseStop  Phase = "stop"
)
