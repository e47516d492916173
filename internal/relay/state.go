package relay

// State is the lifecycle position of one relay run.
type State int

const (
	StateIdle State = iota
	StateAwaitingEngine
	StateEmitting
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingEngine:
		return "awaiting_engine"
	case StateEmitting:
		return "emitting"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
