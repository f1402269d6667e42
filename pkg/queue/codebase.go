package queue

import "time"

// CodebaseStatus enumerates a codebase's watch-mode lifecycle.
type CodebaseStatus string

const (
	CodebaseIdle     CodebaseStatus = "idle"
	CodebaseWatching CodebaseStatus = "watching"
	CodebaseError    CodebaseStatus = "error"
)

// Codebase is a work target: AgentTasks belong to exactly one codebase, and
// a codebase may be bound to a worker and/or put into watch mode.
type Codebase struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Path           string         `json:"path"`
	Status         CodebaseStatus `json:"status"`
	WorkerID       string         `json:"workerId,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	WatchMode      bool           `json:"watchMode"`
	WatchIntervalS int            `json:"watchIntervalS,omitempty"`
	ErrorCause     string         `json:"errorCause,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`

	// Description and DefaultBranch are best-effort metadata filled in by
	// EnrichCodebase when Path points at a GitHub remote; both stay empty
	// for a local filesystem path.
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

func (c *Codebase) Clone() *Codebase {
	clone := *c
	return &clone
}
