package engine

// State is the lifecycle phase of one logical request.
//
// Transitions: Pending -> Streaming -> {Retrying, Succeeded, Failed,
// Cancelled}; Retrying -> Streaming is the sole re-entrant edge.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateRetrying
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the request.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}
