package store

import (
	"context"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

/*
Filter narrows List results. The zero value matches every task. Implementations
apply State/SessionID as equality filters and Limit as a result cap (0 = no cap).
*/
type Filter struct {
	State     a2a.TaskState
	SessionID string
	Limit     int
}

/*
Adapter is the task persistence contract every backend (in-memory or durable)
must satisfy. The task manager writes through an adapter before emitting any
event, so a crash never observes an event without the corresponding state.
*/
type Adapter interface {
	Upsert(ctx context.Context, task *a2a.Task) error
	Get(ctx context.Context, id string) (*a2a.Task, error)
	List(ctx context.Context, filter Filter) ([]*a2a.Task, error)
	Delete(ctx context.Context, id string) error
}

// ErrNotFound is returned by Get/Delete when no task with the given id exists.
var ErrNotFound = adapterError("task not found")

type adapterError string

func (e adapterError) Error() string { return string(e) }
