package queue

// MemoryAdapter is an in-process Adapter backed by plain maps, guarded by a
// single mutex. The conditional claim is emulated by holding that mutex for
// the read-check-write sequence a real UPDATE ... WHERE status=PENDING
// would perform atomically in SQL.
import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryAdapter struct {
	mu        sync.Mutex
	codebases map[string]*Codebase
	tasks     map[string]*AgentTask
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		codebases: make(map[string]*Codebase),
		tasks:     make(map[string]*AgentTask),
	}
}

func (m *MemoryAdapter) CreateCodebase(ctx context.Context, cb *Codebase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb.ID == "" {
		cb.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cb.CreatedAt, cb.UpdatedAt = now, now
	if cb.Status == "" {
		cb.Status = CodebaseIdle
	}
	m.codebases[cb.ID] = cb.Clone()
	return nil
}

func (m *MemoryAdapter) GetCodebase(ctx context.Context, id string) (*Codebase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb, ok := m.codebases[id]
	if !ok {
		return nil, ErrCodebaseNotFound
	}
	return cb.Clone(), nil
}

func (m *MemoryAdapter) UpdateCodebase(ctx context.Context, cb *Codebase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.codebases[cb.ID]; !ok {
		return ErrCodebaseNotFound
	}
	cb.UpdatedAt = time.Now().UTC()
	m.codebases[cb.ID] = cb.Clone()
	return nil
}

func (m *MemoryAdapter) ListCodebases(ctx context.Context) ([]*Codebase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Codebase, 0, len(m.codebases))
	for _, cb := range m.codebases {
		out = append(out, cb.Clone())
	}
	return out, nil
}

func (m *MemoryAdapter) CreateTask(ctx context.Context, t *AgentTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = AgentTaskPending
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *MemoryAdapter) GetTask(ctx context.Context, id string) (*AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// codebasesForWorker returns the set of codebase ids currently bound to
// workerID.
func (m *MemoryAdapter) codebasesForWorker(workerID string) map[string]bool {
	out := make(map[string]bool)
	for _, cb := range m.codebases {
		if cb.WorkerID == workerID {
			out[cb.ID] = true
		}
	}
	return out
}

func (m *MemoryAdapter) pendingForWorkerLocked(workerID string) []*AgentTask {
	owned := m.codebasesForWorker(workerID)

	var pending []*AgentTask
	for _, t := range m.tasks {
		if t.Status != AgentTaskPending {
			continue
		}
		if !owned[t.CodebaseID] {
			continue
		}
		pending = append(pending, t)
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending
}

func (m *MemoryAdapter) ListClaimable(ctx context.Context, workerID string) ([]*AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.pendingForWorkerLocked(workerID)
	out := make([]*AgentTask, 0, len(pending))
	for _, t := range pending {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *MemoryAdapter) ClaimNext(ctx context.Context, workerID string) (*AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.pendingForWorkerLocked(workerID)
	if len(pending) == 0 {
		return nil, ErrNoClaimableTask
	}

	// The mutex held across this whole read-check-write sequence is what
	// makes this "conditional update" atomic against concurrent claimers —
	// the in-memory equivalent of `WHERE status=PENDING` succeeding for
	// exactly one row.
	candidate := pending[0]
	if candidate.Status != AgentTaskPending {
		return nil, ErrClaimConflict
	}

	now := time.Now().UTC()
	candidate.Status = AgentTaskRunning
	candidate.WorkerID = workerID
	candidate.StartedAt = &now
	candidate.UpdatedAt = now

	return candidate.Clone(), nil
}

func (m *MemoryAdapter) UpdateStatus(ctx context.Context, id, workerID string, next AgentTaskState, result, errMsg string) (*AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	if t.WorkerID != "" && t.WorkerID != workerID && !t.Status.Terminal() {
		return nil, ErrClaimConflict
	}
	if !t.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	t.Status = next
	t.WorkerID = workerID
	now := time.Now().UTC()
	t.UpdatedAt = now
	if next.Terminal() {
		t.Result = result
		t.Error = errMsg
		t.CompletedAt = &now
	}

	return t.Clone(), nil
}

func (m *MemoryAdapter) CancelTask(ctx context.Context, id string) (*AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != AgentTaskPending && t.Status != AgentTaskAssigned {
		return nil, ErrNotCancellable
	}

	now := time.Now().UTC()
	t.Status = AgentTaskCancelled
	t.UpdatedAt = now
	t.CompletedAt = &now
	return t.Clone(), nil
}

func (m *MemoryAdapter) ReviveExpiredLeases(ctx context.Context, leaseTimeout time.Duration) ([]*AgentTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-leaseTimeout)
	var revived []*AgentTask
	for _, t := range m.tasks {
		if t.Status != AgentTaskRunning {
			continue
		}
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		t.Status = AgentTaskPending
		t.WorkerID = ""
		t.StartedAt = nil
		t.UpdatedAt = time.Now().UTC()
		revived = append(revived, t.Clone())
	}
	return revived, nil
}
