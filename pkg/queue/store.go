package queue

import (
	"context"
	"time"
)

// Adapter is the persistence contract for codebases and agent tasks. Like
// pkg/store's task Adapter, implementations may be in-memory or durable;
// all must provide the same conditional-claim linearizing guarantee.
type Adapter interface {
	CreateCodebase(ctx context.Context, cb *Codebase) error
	GetCodebase(ctx context.Context, id string) (*Codebase, error)
	UpdateCodebase(ctx context.Context, cb *Codebase) error
	ListCodebases(ctx context.Context) ([]*Codebase, error)

	CreateTask(ctx context.Context, t *AgentTask) error
	GetTask(ctx context.Context, id string) (*AgentTask, error)

	// ListClaimable returns PENDING tasks belonging to codebases bound to
	// workerID, ordered by priority DESC, created_at ASC.
	ListClaimable(ctx context.Context, workerID string) ([]*AgentTask, error)

	// ClaimNext atomically transitions the highest-priority PENDING task
	// bound (via its codebase) to workerID into RUNNING, succeeding for
	// exactly one caller when many race for the same task. Returns
	// ErrNoClaimableTask if none is available.
	ClaimNext(ctx context.Context, workerID string) (*AgentTask, error)

	// UpdateStatus applies a worker-reported transition. result/error are
	// recorded on terminal transitions; a zero-value truncated result is
	// stored as-is (callers truncate before calling, see TruncateResult).
	UpdateStatus(ctx context.Context, id, workerID string, next AgentTaskState, result, errMsg string) (*AgentTask, error)

	// CancelTask succeeds only while the task is PENDING or ASSIGNED, per
	// spec 4.5.
	CancelTask(ctx context.Context, id string) (*AgentTask, error)

	// ReviveExpiredLeases reverts every RUNNING task whose UpdatedAt is
	// older than leaseTimeout back to PENDING, clearing WorkerID/StartedAt,
	// and returns the revived tasks.
	ReviveExpiredLeases(ctx context.Context, leaseTimeout time.Duration) ([]*AgentTask, error)
}

type queueError string

func (e queueError) Error() string { return string(e) }

const (
	ErrCodebaseNotFound  = queueError("codebase not found")
	ErrTaskNotFound      = queueError("agent task not found")
	ErrNoClaimableTask   = queueError("no claimable task")
	ErrNotCancellable    = queueError("task is not cancellable in its current state")
	ErrClaimConflict     = queueError("task was claimed by another worker")
	ErrInvalidTransition = queueError("invalid agent task state transition")
)
