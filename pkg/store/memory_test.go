package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

func TestMemoryAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	task := a2a.NewTask("session-1")
	require.NoError(t, adapter.Upsert(ctx, task))

	got, err := adapter.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)

	task.ToStatus(a2a.TaskStateWorking, nil)
	require.NoError(t, adapter.Upsert(ctx, task))

	got, err = adapter.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, a2a.TaskStateWorking, got.Status.State)

	require.NoError(t, adapter.Delete(ctx, task.ID))
	_, err = adapter.Get(ctx, task.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAdapterListFiltersByState(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	pending := a2a.NewTask("s1")
	working := a2a.NewTask("s1")
	working.ToStatus(a2a.TaskStateWorking, nil)

	require.NoError(t, adapter.Upsert(ctx, pending))
	require.NoError(t, adapter.Upsert(ctx, working))

	results, err := adapter.List(ctx, Filter{State: a2a.TaskStateWorking})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, working.ID, results[0].ID)
}
