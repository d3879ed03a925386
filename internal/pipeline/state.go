package pipeline

// State describes where the pipeline is in its lifecycle. Transitions are
// strictly forward: Idle -> Running -> Draining -> Stopped.
type State int32

const (
	// StateIdle means Run has not been called yet.
	StateIdle State = iota
	// StateRunning means all three stages are processing.
	StateRunning
	// StateDraining means capture has stopped and queued work is being
	// flushed.
	StateDraining
	// StateStopped means all stages have exited.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
