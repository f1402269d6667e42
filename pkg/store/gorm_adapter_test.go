package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

func newTestGormAdapter(t *testing.T) *GormAdapter {
	t.Helper()

	db, err := OpenDB(DBConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	return NewGormAdapter(db)
}

func TestGormAdapterRoundTripsTask(t *testing.T) {
	adapter := newTestGormAdapter(t)
	ctx := context.Background()

	task := a2a.NewTask("session-1")
	task.Metadata = map[string]any{"k": "v"}
	task.AppendMessage(*a2a.NewTextMessage("user", "hello"))
	require.NoError(t, adapter.Upsert(ctx, task))

	got, err := adapter.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, task.SessionID, got.SessionID)
	require.Equal(t, task.Status.State, got.Status.State)
	require.Equal(t, "v", got.Metadata["k"])
	require.Len(t, got.History, len(task.History))
}

func TestGormAdapterGetMissingReturnsErrNotFound(t *testing.T) {
	adapter := newTestGormAdapter(t)
	_, err := adapter.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGormAdapterListFiltersByStateAndSession(t *testing.T) {
	adapter := newTestGormAdapter(t)
	ctx := context.Background()

	t1 := a2a.NewTask("session-a")
	t2 := a2a.NewTask("session-b")
	t2.Status.State = a2a.TaskStateCompleted
	require.NoError(t, adapter.Upsert(ctx, t1))
	require.NoError(t, adapter.Upsert(ctx, t2))

	bySession, err := adapter.List(ctx, Filter{SessionID: "session-a"})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	require.Equal(t, t1.ID, bySession[0].ID)

	byState, err := adapter.List(ctx, Filter{State: a2a.TaskStateCompleted})
	require.NoError(t, err)
	require.Len(t, byState, 1)
	require.Equal(t, t2.ID, byState[0].ID)
}

func TestGormAdapterDeleteRemovesTask(t *testing.T) {
	adapter := newTestGormAdapter(t)
	ctx := context.Background()

	task := a2a.NewTask("")
	require.NoError(t, adapter.Upsert(ctx, task))

	require.NoError(t, adapter.Delete(ctx, task.ID))
	_, err := adapter.Get(ctx, task.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, adapter.Delete(ctx, task.ID), ErrNotFound)
}

func TestGormAdapterUpsertOverwritesExistingTask(t *testing.T) {
	adapter := newTestGormAdapter(t)
	ctx := context.Background()

	task := a2a.NewTask("")
	require.NoError(t, adapter.Upsert(ctx, task))

	task.Title = "renamed"
	task.Status.State = a2a.TaskStateWorking
	require.NoError(t, adapter.Upsert(ctx, task))

	got, err := adapter.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Title)
	require.Equal(t, a2a.TaskStateWorking, got.Status.State)
}
