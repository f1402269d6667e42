package taskmanager

// Manager owns the task lifecycle state machine: it creates tasks, advances
// their status under a per-task lock, persists every mutation before
// notifying, and fans status/artifact events out to per-task subscribers
// with non-blocking sends while that lock is held (a slow subscriber is
// dropped rather than stalling a transition or another subscriber).

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/errors"
	"github.com/theapemachine/a2a-coordinator/pkg/push"
	"github.com/theapemachine/a2a-coordinator/pkg/store"
)

// Handler is the pluggable agent-intelligence plug-point: it produces a
// reply message for an inbound message, optionally scoped to a skill. The
// default handler (see NewEchoHandler) is a trivial echo; richer behaviour
// is supplied by the caller.
type Handler interface {
	Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error)

func (f HandlerFunc) Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
	return f(ctx, msg, skillID)
}

// subscriberQueueSize bounds each per-task subscriber's channel. On overflow
// the subscriber is dropped (policy: drop-slow, see SPEC_FULL.md §9).
const subscriberQueueSize = 16

type subscriber struct {
	id string
	ch chan any
}

type Manager struct {
	store   store.Adapter
	handler Handler

	mu          sync.Mutex
	taskLocks   map[string]*sync.Mutex
	subscribers map[string][]*subscriber
	push        *push.Service
}

func NewManager(adapter store.Adapter, handler Handler) *Manager {
	if adapter == nil {
		adapter = store.NewMemoryAdapter()
	}
	if handler == nil {
		handler = NewEchoHandler("Echo: ")
	}
	return &Manager{
		store:       adapter,
		handler:     handler,
		taskLocks:   make(map[string]*sync.Mutex),
		subscribers: make(map[string][]*subscriber),
	}
}

func (m *Manager) lockFor(taskID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.taskLocks[taskID]
	if !ok {
		l = &sync.Mutex{}
		m.taskLocks[taskID] = l
	}
	return l
}

// SendMessage implements message/send: create (or continue) a task, run the
// handler synchronously, persist the terminal status, and return both.
func (m *Manager) SendMessage(ctx context.Context, params a2a.SendParams) (*a2a.Task, a2a.Message, *errors.RpcError) {
	task, rpcErr := m.resolveTask(ctx, params)
	if rpcErr != nil {
		return nil, a2a.Message{}, rpcErr
	}

	if _, err := m.appendAndTransition(ctx, task.ID, params.Message, a2a.TaskStateWorking, nil); err != nil {
		return nil, a2a.Message{}, err
	}

	reply, err := m.handler.Handle(ctx, params.Message, params.SkillID)
	if err != nil {
		failMsg := a2a.NewTextMessage("agent", err.Error())
		final, tErr := m.appendAndTransition(ctx, task.ID, a2a.Message{}, a2a.TaskStateFailed, failMsg)
		if tErr != nil {
			return nil, a2a.Message{}, tErr
		}
		return final, a2a.Message{}, nil
	}

	final, tErr := m.appendAndTransition(ctx, task.ID, reply, a2a.TaskStateCompleted, &reply)
	if tErr != nil {
		return nil, a2a.Message{}, tErr
	}
	return final, reply, nil
}

// StreamMessage implements message/stream: like SendMessage, but the handler
// runs in the background and status/artifact events are delivered on the
// returned channel, ending with exactly one final=true event.
func (m *Manager) StreamMessage(ctx context.Context, params a2a.SendParams) (<-chan any, *errors.RpcError) {
	task, rpcErr := m.resolveTask(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	sub := m.subscribe(task.ID)

	go func() {
		if _, err := m.appendAndTransition(ctx, task.ID, params.Message, a2a.TaskStateWorking, nil); err != nil {
			return
		}

		reply, err := m.handler.Handle(ctx, params.Message, params.SkillID)
		if err != nil {
			failMsg := a2a.NewTextMessage("agent", err.Error())
			_, _ = m.appendAndTransition(ctx, task.ID, a2a.Message{}, a2a.TaskStateFailed, failMsg)
			return
		}
		_, _ = m.appendAndTransition(ctx, task.ID, reply, a2a.TaskStateCompleted, &reply)
	}()

	return sub.ch, nil
}

// appendAndTransition reloads the canonical task under its per-task lock,
// appends msg to its history (unless empty), and applies the transition.
// Reloading on every call — rather than threading a single in-memory
// pointer through a multi-step handler — is what makes a concurrent
// CancelTask visible to an in-flight SendMessage/StreamMessage: whichever
// side acquires the lock second sees the state the other side already
// committed, so a cancelled task can never be completed afterwards.
func (m *Manager) appendAndTransition(ctx context.Context, taskID string, msg a2a.Message, next a2a.TaskState, statusMsg *a2a.Message) (*a2a.Task, *errors.RpcError) {
	lock := m.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", taskID)
	}

	if len(msg.Parts) > 0 {
		task.AppendMessage(msg)
	}

	if rpcErr := m.transitionLocked(ctx, task, next, statusMsg); rpcErr != nil {
		return nil, rpcErr
	}
	return task, nil
}

// GetTask implements tasks/get.
func (m *Manager) GetTask(ctx context.Context, id string, historyLength int) (*a2a.Task, *errors.RpcError) {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}
	if historyLength > 0 && historyLength < len(task.History) {
		task.History = task.History[len(task.History)-historyLength:]
	}
	return task, nil
}

// CancelTask implements tasks/cancel: only non-terminal tasks can be
// cancelled; the transition emits exactly one final CANCELLED event.
func (m *Manager) CancelTask(ctx context.Context, id string) (*a2a.Task, *errors.RpcError) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	if task.Status.State.Terminal() {
		return task, nil
	}

	if rpcErr := m.transitionLocked(ctx, task, a2a.TaskStateCancelled, nil); rpcErr != nil {
		return nil, rpcErr
	}
	return task, nil
}

// ResubscribeTask implements tasks/resubscribe: reattach a new subscriber
// channel to an in-flight task without replaying already-delivered events.
// A task already in a terminal state immediately receives its final event.
func (m *Manager) ResubscribeTask(ctx context.Context, id string, historyLength int) (<-chan any, *errors.RpcError) {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	sub := m.subscribe(id)

	if task.Status.State.Terminal() {
		sub.ch <- a2a.TaskStatusUpdateEvent{ID: task.ID, Task: task, Status: task.Status, Final: true}
		m.unsubscribe(id, sub.id)
		close(sub.ch)
	}

	return sub.ch, nil
}

func (m *Manager) resolveTask(ctx context.Context, params a2a.SendParams) (*a2a.Task, *errors.RpcError) {
	if params.TaskID != "" {
		task, err := m.store.Get(ctx, params.TaskID)
		if err == nil {
			return task, nil
		}
	}

	task := a2a.NewTask("")
	if params.TaskID != "" {
		task.ID = params.TaskID
	}
	if params.Metadata != nil {
		task.Metadata = params.Metadata
	}
	if err := m.store.Upsert(ctx, task); err != nil {
		return nil, errors.ErrTaskCreationFailed.WithMessagef("%v", err)
	}
	return task, nil
}

// transitionLocked applies a state transition under the caller-held per-task
// lock: validate → persist → emit. The emit happens while that lock is still
// held; notify() never blocks on a subscriber, so a slow one cannot hold the
// lock up.
func (m *Manager) transitionLocked(ctx context.Context, task *a2a.Task, next a2a.TaskState, msg *a2a.Message) *errors.RpcError {
	if !task.Status.State.CanTransitionTo(next) {
		return errors.ErrInvalidParams.WithMessagef("invalid state transition from %s to %s", task.Status.State, next)
	}

	task.ToStatus(next, msg)
	if err := m.store.Upsert(ctx, task); err != nil {
		return errors.ErrInternal.WithMessagef("failed to persist task %s: %v", task.ID, err)
	}

	event := a2a.TaskStatusUpdateEvent{
		ID:     task.ID,
		Task:   task,
		Status: task.Status,
		Final:  next.Terminal(),
	}
	m.notify(task.ID, event)
	m.notifyPush(task.ID, event)
	if event.Final {
		m.closeAll(task.ID)
	}
	return nil
}

// closeAll deregisters and closes every subscriber of a task. Called once a
// final event has been delivered, so the dispatcher loop on the other end
// sees channel closure right after (or in place of) the final frame.
func (m *Manager) closeAll(taskID string) {
	m.mu.Lock()
	subs := m.subscribers[taskID]
	delete(m.subscribers, taskID)
	m.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}

func (m *Manager) subscribe(taskID string) *subscriber {
	sub := &subscriber{id: uuid.New().String(), ch: make(chan any, subscriberQueueSize)}

	m.mu.Lock()
	m.subscribers[taskID] = append(m.subscribers[taskID], sub)
	m.mu.Unlock()

	return sub
}

func (m *Manager) unsubscribe(taskID, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subscribers[taskID]
	for i, s := range subs {
		if s.id == subID {
			m.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subscribers[taskID]) == 0 {
		delete(m.subscribers, taskID)
	}
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call once
// per subscription; the dispatcher calls this on client disconnect or after
// observing the final event.
func (m *Manager) Unsubscribe(taskID string, ch <-chan any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subscribers[taskID]
	for i, s := range subs {
		if s.ch == ch {
			m.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(m.subscribers[taskID]) == 0 {
		delete(m.subscribers, taskID)
	}
}

// notify fans an event out to every current subscriber of a task. It runs
// under the caller's per-task lock but sends outside the subscriber-registry
// lock. A full queue means a stalled subscriber: it is dropped
// with a logged warning rather than blocking the transition.
func (m *Manager) notify(taskID string, event any) {
	m.mu.Lock()
	subs := append([]*subscriber(nil), m.subscribers[taskID]...)
	m.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			log.Warn("dropping slow task subscriber", "task_id", taskID, "subscriber_id", sub.id)
			m.unsubscribe(taskID, sub.id)
			close(sub.ch)
		}
	}
}
