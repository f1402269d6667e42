// Package queue implements spec 4.5's work queue and worker coordinator: the
// Codebase/AgentTask/Worker object model, the conditional single-row claim
// that gives exactly-one-worker-observes-RUNNING semantics, lease-timeout
// revival, cancellation, and codebase watch mode.
package queue

import "time"

// AgentTaskState enumerates the mutually-exclusive states a queued task may
// be in. Terminal states (Completed, Failed, Cancelled) accept no further
// transitions.
type AgentTaskState string

const (
	AgentTaskPending   AgentTaskState = "pending"
	AgentTaskAssigned  AgentTaskState = "assigned"
	AgentTaskRunning   AgentTaskState = "running"
	AgentTaskCompleted AgentTaskState = "completed"
	AgentTaskFailed    AgentTaskState = "failed"
	AgentTaskCancelled AgentTaskState = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s AgentTaskState) Terminal() bool {
	switch s {
	case AgentTaskCompleted, AgentTaskFailed, AgentTaskCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is legal per the
// AgentTask state machine in spec 4.5.
func (s AgentTaskState) CanTransitionTo(next AgentTaskState) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case AgentTaskPending:
		switch next {
		case AgentTaskAssigned, AgentTaskRunning, AgentTaskCancelled:
			return true
		}
	case AgentTaskAssigned:
		switch next {
		case AgentTaskRunning, AgentTaskCancelled:
			return true
		}
	case AgentTaskRunning:
		switch next {
		case AgentTaskCompleted, AgentTaskFailed, AgentTaskCancelled:
			return true
		}
	}

	// Lease revival (RUNNING -> PENDING) is a system-initiated transition
	// applied directly by ReviveExpiredLeases, not through this guard — a
	// worker-reported status update can never revert its own task to
	// PENDING.

	return false
}

// AgentTask is the unit of work a worker executes, scoped to one Codebase.
type AgentTask struct {
	ID         string         `json:"id"`
	CodebaseID string         `json:"codebaseId"`
	Title      string         `json:"title"`
	Prompt     string         `json:"prompt"`
	AgentType  string         `json:"agentType,omitempty"`
	Status     AgentTaskState `json:"status"`
	Priority   int            `json:"priority"`
	WorkerID   string         `json:"workerId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Clone returns a deep-enough copy to hand to a caller without risking
// aliasing of the Metadata map with whatever the store holds internally.
func (t *AgentTask) Clone() *AgentTask {
	clone := *t
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
