package rewind

// State represents the health of a Store.
type State int32

const (
	// StateHealthy indicates the last transition committed, or none has
	// been attempted yet.
	StateHealthy State = iota

	// StateDegraded indicates the last transition failed. The value held
	// before it remains current and later transitions are still processed.
	StateDegraded

	// StateClosed indicates the Store no longer accepts transitions.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
