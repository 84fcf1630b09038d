package domain

// ProcessingState is where an item sits in the tracker's lifecycle.
// Done, Skipped and Error are terminal.
type ProcessingState string

const (
	StateUnseen  ProcessingState = "unseen"
	StatePending ProcessingState = "pending"
	StateDone    ProcessingState = "done"
	StateSkipped ProcessingState = "skipped"
	StateError   ProcessingState = "error"
)

// IsTerminal reports whether no further transition is allowed.
func (s ProcessingState) IsTerminal() bool {
	switch s {
	case StateDone, StateSkipped, StateError:
		return true
	case StateUnseen, StatePending:
		return false
	default:
		return false
	}
}

// AllStates lists every state, in lifecycle order.
func AllStates() []ProcessingState {
	return []ProcessingState{StateUnseen, StatePending, StateDone, StateSkipped, StateError}
}
