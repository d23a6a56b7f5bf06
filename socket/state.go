package socket

// State is the lifecycle state of the client's single transport handle.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateConnecting
	case StateConnecting:
		return to == StateOpen || to == StateClosed || to == StateClosing
	case StateOpen:
		return to == StateClosed || to == StateClosing
	case StateClosing:
		return to == StateClosed
	case StateClosed:
		return to == StateConnecting
	}
	return false
}
