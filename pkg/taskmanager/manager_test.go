package taskmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/store"
)

func newTestManager() *Manager {
	return NewManager(store.NewMemoryAdapter(), NewEchoHandler("Echo: "))
}

func textParams(text string) a2a.SendParams {
	return a2a.SendParams{Message: *a2a.NewTextMessage("user", text)}
}

func TestSendMessageEchoesAndCompletes(t *testing.T) {
	m := newTestManager()

	task, reply, rpcErr := m.SendMessage(context.Background(), textParams("hi"))
	require.Nil(t, rpcErr)
	require.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	require.Equal(t, "Echo: hi", reply.Parts[0].Text)
}

func TestStreamMessageEmitsWorkingThenSingleFinalEvent(t *testing.T) {
	m := newTestManager()

	ch, rpcErr := m.StreamMessage(context.Background(), textParams("hi"))
	require.Nil(t, rpcErr)

	var finals int
	var sawWorking bool
	for evt := range ch {
		update, ok := evt.(a2a.TaskStatusUpdateEvent)
		require.True(t, ok)
		if update.Status.State == a2a.TaskStateWorking {
			sawWorking = true
		}
		if update.Final {
			finals++
			require.Equal(t, a2a.TaskStateCompleted, update.Status.State)
		}
	}

	require.True(t, sawWorking)
	require.Equal(t, 1, finals)
}

func TestCancelTaskDuringWorkProducesSingleCancelledEvent(t *testing.T) {
	m := newTestManager()
	m.handler = HandlerFunc(func(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
		time.Sleep(50 * time.Millisecond)
		return *a2a.NewTextMessage("agent", "done"), nil
	})

	ch, rpcErr := m.StreamMessage(context.Background(), textParams("hi"))
	require.Nil(t, rpcErr)

	// Grab the task id from the first (working) event.
	first := (<-ch).(a2a.TaskStatusUpdateEvent)
	require.Equal(t, a2a.TaskStateWorking, first.Status.State)

	_, cancelErr := m.CancelTask(context.Background(), first.ID)
	require.Nil(t, cancelErr)

	var finals int
	for evt := range ch {
		update := evt.(a2a.TaskStatusUpdateEvent)
		if update.Final {
			finals++
			require.Equal(t, a2a.TaskStateCancelled, update.Status.State)
		}
	}
	require.Equal(t, 1, finals)
}

func TestTerminalStateIsAbsorbing(t *testing.T) {
	m := newTestManager()
	task, _, rpcErr := m.SendMessage(context.Background(), textParams("hi"))
	require.Nil(t, rpcErr)
	require.True(t, task.Status.State.Terminal())

	_, cancelErr := m.CancelTask(context.Background(), task.ID)
	require.Nil(t, cancelErr)

	got, getErr := m.GetTask(context.Background(), task.ID, 0)
	require.Nil(t, getErr)
	require.Equal(t, a2a.TaskStateCompleted, got.Status.State)
}

func TestGetTaskNotFound(t *testing.T) {
	m := newTestManager()
	_, rpcErr := m.GetTask(context.Background(), "missing", 0)
	require.NotNil(t, rpcErr)
	require.Equal(t, -32000, rpcErr.Code)
}

func TestResubscribeTerminalTaskDeliversFinalImmediately(t *testing.T) {
	m := newTestManager()
	task, _, rpcErr := m.SendMessage(context.Background(), textParams("hi"))
	require.Nil(t, rpcErr)

	ch, resubErr := m.ResubscribeTask(context.Background(), task.ID, 0)
	require.Nil(t, resubErr)

	evt := (<-ch).(a2a.TaskStatusUpdateEvent)
	require.True(t, evt.Final)
	require.Equal(t, a2a.TaskStateCompleted, evt.Status.State)

	_, open := <-ch
	require.False(t, open)
}
