package taskmanager

// Push notification config is a per-task side table, not part of the task
// state machine itself: a webhook a caller wants notified on every status
// transition, registered independently of message/send or message/stream.

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/errors"
	"github.com/theapemachine/a2a-coordinator/pkg/push"
)

// SetPushNotification implements tasks/pushNotification/set: register or
// replace the webhook config for an existing task.
func (m *Manager) SetPushNotification(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	if _, err := m.store.Get(ctx, taskID); err != nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", taskID)
	}

	full := &a2a.TaskPushNotificationConfig{ID: taskID, PushNotificationConfig: cfg}
	m.pushService().SetConfig(full)
	return full, nil
}

// GetPushNotification implements tasks/pushNotification/get.
func (m *Manager) GetPushNotification(ctx context.Context, taskID string) (*a2a.TaskPushNotificationConfig, *errors.RpcError) {
	cfg, ok := m.pushService().GetConfig(taskID)
	if !ok {
		return nil, errors.ErrPushNotificationConfigNotFound.WithMessagef("no push notification config for task %s", taskID)
	}
	return cfg, nil
}

// notifyPush delivers event to a task's registered webhook, if any, on its
// own goroutine: a slow or unreachable endpoint must never stall a
// transition, the same reasoning as notify()'s per-subscriber channels. A
// task with no registered config is the common case and this is a no-op.
func (m *Manager) notifyPush(taskID string, event any) {
	m.mu.Lock()
	svc := m.push
	m.mu.Unlock()
	if svc == nil {
		return
	}
	if _, ok := svc.GetConfig(taskID); !ok {
		return
	}
	go func() {
		if err := svc.SendNotification(taskID, event); err != nil {
			log.Warn("push notification delivery failed", "task_id", taskID, "err", err)
		}
	}()
}

// pushService lazily constructs the push notification service on first use,
// so a Manager that never registers a webhook never starts the retry
// worker goroutine.
func (m *Manager) pushService() *push.Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.push == nil {
		m.push = push.NewService()
	}
	return m.push
}
