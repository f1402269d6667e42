package store

// An in-process Adapter backed by a plain map. Good enough for tests and for
// single-node deployments that don't need restart durability; swap in the
// GORM-backed adapter for that without touching the task manager.

import (
	"context"
	"sync"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

type MemoryAdapter struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{tasks: make(map[string]*a2a.Task)}
}

func (m *MemoryAdapter) Upsert(ctx context.Context, task *a2a.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryAdapter) Get(ctx context.Context, id string) (*a2a.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneTask(task), nil
}

// cloneTask deep-copies the slice and map fields a shallow struct copy would
// otherwise still share with the stored task, so a caller mutating its own
// copy (e.g. appending to History, or re-slicing it for a history_length
// request) can never corrupt what's in the map.
func cloneTask(task *a2a.Task) *a2a.Task {
	clone := *task

	if task.History != nil {
		clone.History = append([]a2a.Message(nil), task.History...)
	}
	if task.Artifacts != nil {
		clone.Artifacts = append([]a2a.Artifact(nil), task.Artifacts...)
	}
	if task.Metadata != nil {
		clone.Metadata = make(map[string]any, len(task.Metadata))
		for k, v := range task.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func (m *MemoryAdapter) List(ctx context.Context, filter Filter) ([]*a2a.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*a2a.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if filter.State != "" && task.Status.State != filter.State {
			continue
		}
		if filter.SessionID != "" && task.SessionID != filter.SessionID {
			continue
		}
		out = append(out, cloneTask(task))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryAdapter) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}
