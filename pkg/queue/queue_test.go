package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCodebase(t *testing.T, store Adapter, workerID string) *Codebase {
	t.Helper()
	cb := &Codebase{Name: "demo", Path: "/tmp/demo", WorkerID: workerID}
	require.NoError(t, store.CreateCodebase(context.Background(), cb))
	return cb
}

func TestClaimNextIsExclusiveUnderConcurrency(t *testing.T) {
	for _, workers := range []int{2, 8, 64} {
		store := NewMemoryAdapter()
		cb := newCodebase(t, store, "w")
		task := &AgentTask{CodebaseID: cb.ID, Title: "only task", Priority: 1}
		require.NoError(t, store.CreateTask(context.Background(), task))

		var claimed int64
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				if _, err := store.ClaimNext(context.Background(), "w"); err == nil {
					atomic.AddInt64(&claimed, 1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int64(1), claimed, "workers=%d", workers)

		got, err := store.GetTask(context.Background(), task.ID)
		require.NoError(t, err)
		require.Equal(t, AgentTaskRunning, got.Status)
	}
}

func TestClaimNextOrdersByPriorityThenAge(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")

	low := &AgentTask{CodebaseID: cb.ID, Title: "low", Priority: 1}
	require.NoError(t, store.CreateTask(context.Background(), low))
	high := &AgentTask{CodebaseID: cb.ID, Title: "high", Priority: 5}
	require.NoError(t, store.CreateTask(context.Background(), high))

	claimed, err := store.ClaimNext(context.Background(), "w")
	require.NoError(t, err)
	require.Equal(t, high.ID, claimed.ID)
}

func TestReviveExpiredLeasesReturnsTaskToPending(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")
	task := &AgentTask{CodebaseID: cb.ID, Title: "flaky"}
	require.NoError(t, store.CreateTask(context.Background(), task))

	claimed, err := store.ClaimNext(context.Background(), "w")
	require.NoError(t, err)
	require.Equal(t, AgentTaskRunning, claimed.Status)

	revived, err := store.ReviveExpiredLeases(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, revived, 1)
	require.Equal(t, AgentTaskPending, revived[0].Status)
	require.Empty(t, revived[0].WorkerID)

	again, err := store.ClaimNext(context.Background(), "w")
	require.NoError(t, err)
	require.Equal(t, task.ID, again.ID)
}

func TestReviveExpiredLeasesIgnoresFreshLeases(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")
	task := &AgentTask{CodebaseID: cb.ID, Title: "fresh"}
	require.NoError(t, store.CreateTask(context.Background(), task))

	_, err := store.ClaimNext(context.Background(), "w")
	require.NoError(t, err)

	revived, err := store.ReviveExpiredLeases(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Empty(t, revived)
}

func TestCancelTaskSucceedsWhilePendingButNotWhileRunning(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")

	pendingTask := &AgentTask{CodebaseID: cb.ID, Title: "pending"}
	require.NoError(t, store.CreateTask(context.Background(), pendingTask))
	cancelled, err := store.CancelTask(context.Background(), pendingTask.ID)
	require.NoError(t, err)
	require.Equal(t, AgentTaskCancelled, cancelled.Status)

	runningTask := &AgentTask{CodebaseID: cb.ID, Title: "running"}
	require.NoError(t, store.CreateTask(context.Background(), runningTask))
	_, err = store.ClaimNext(context.Background(), "w")
	require.NoError(t, err)
	_, err = store.CancelTask(context.Background(), runningTask.ID)
	require.ErrorIs(t, err, ErrNotCancellable)
}

func TestUpdateStatusRejectsForeignWorkerAndIllegalTransition(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")
	task := &AgentTask{CodebaseID: cb.ID, Title: "owned"}
	require.NoError(t, store.CreateTask(context.Background(), task))
	_, err := store.ClaimNext(context.Background(), "w")
	require.NoError(t, err)

	_, err = store.UpdateStatus(context.Background(), task.ID, "someone-else", AgentTaskCompleted, "", "")
	require.ErrorIs(t, err, ErrClaimConflict)

	_, err = store.UpdateStatus(context.Background(), task.ID, "w", AgentTaskCompleted, "done", "")
	require.NoError(t, err)

	_, err = store.UpdateStatus(context.Background(), task.ID, "w", AgentTaskRunning, "", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAgentTaskStateCannotLeaveTerminalStates(t *testing.T) {
	require.True(t, AgentTaskCompleted.Terminal())
	require.False(t, AgentTaskCompleted.CanTransitionTo(AgentTaskPending))
	require.False(t, AgentTaskRunning.CanTransitionTo(AgentTaskPending))
}

func TestTruncateResultLeavesShortResultsUntouched(t *testing.T) {
	out, truncated := TruncateResult("short", 100)
	require.False(t, truncated)
	require.Equal(t, "short", out)
}

func TestTruncateResultBoundsOversizedResults(t *testing.T) {
	big := make([]byte, 200)
	for i := range big {
		big[i] = 'a'
	}
	out, truncated := TruncateResult(string(big), 50)
	require.True(t, truncated)
	require.LessOrEqual(t, len(out), 50)
	require.Contains(t, out, "truncated")
}

func TestCoordinatorStartWatchIsIdempotentAndRunsTicks(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")
	task := &AgentTask{CodebaseID: cb.ID, Title: "watched"}
	require.NoError(t, store.CreateTask(context.Background(), task))

	var ticks int64
	dispatch := func(ctx context.Context, codebaseID string, claimable []*AgentTask) error {
		atomic.AddInt64(&ticks, 1)
		return nil
	}

	coord, err := NewCoordinator(store, NewWorkerTable(), nil, dispatch, time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	coord.Start()
	defer coord.Stop()

	require.NoError(t, coord.StartWatch(context.Background(), cb.ID))
	require.NoError(t, coord.StartWatch(context.Background(), cb.ID)) // idempotent

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&ticks) > 0
	}, time.Second, 5*time.Millisecond)

	got, err := store.GetCodebase(context.Background(), cb.ID)
	require.NoError(t, err)
	require.Equal(t, CodebaseWatching, got.Status)

	require.NoError(t, coord.StopWatch(context.Background(), cb.ID))
	got, err = store.GetCodebase(context.Background(), cb.ID)
	require.NoError(t, err)
	require.Equal(t, CodebaseIdle, got.Status)
}

func TestCoordinatorMarksCodebaseErrorOnDispatchFailure(t *testing.T) {
	store := NewMemoryAdapter()
	cb := newCodebase(t, store, "w")

	dispatch := func(ctx context.Context, codebaseID string, claimable []*AgentTask) error {
		return errBoom
	}

	coord, err := NewCoordinator(store, NewWorkerTable(), nil, dispatch, time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	coord.Start()
	defer coord.Stop()

	require.NoError(t, coord.StartWatch(context.Background(), cb.ID))

	require.Eventually(t, func() bool {
		got, err := store.GetCodebase(context.Background(), cb.ID)
		return err == nil && got.Status == CodebaseError
	}, time.Second, 5*time.Millisecond)

	got, err := store.GetCodebase(context.Background(), cb.ID)
	require.NoError(t, err)
	require.Equal(t, "boom", got.ErrorCause)
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errBoom = sentinelError("boom")

func TestWorkerTableHeartbeatAndStaleness(t *testing.T) {
	table := NewWorkerTable()
	table.Register("w1", "worker-one", "host-a", nil)

	require.False(t, table.IsStale("w1", time.Hour))
	require.True(t, table.IsStale("unknown", time.Hour))

	require.True(t, table.Heartbeat("w1"))
	require.False(t, table.Heartbeat("unknown"))

	table.Unregister("w1")
	_, ok := table.Get("w1")
	require.False(t, ok)
}
