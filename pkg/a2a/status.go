package a2a

import "time"

/*
TaskState enumerates the mutually-exclusive states a task may be in. Terminal
states (Completed, Cancelled, Failed) accept no further transitions.
*/
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateCancelled TaskState = "cancelled"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether no further transitions are permitted from this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCancelled, TaskStateFailed:
		return true
	default:
		return false
	}
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Progress  float64   `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// CanTransitionTo reports whether moving from the current state to next is a
// legal transition per the task state machine. WORKING→WORKING (progress-only)
// updates are allowed; terminal states are absorbing.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case TaskStatePending:
		switch next {
		case TaskStateWorking, TaskStateCancelled:
			return true
		}
	case TaskStateWorking:
		switch next {
		case TaskStateWorking, TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
			return true
		}
	}

	return false
}
