package broker

// Hub is the in-process pub/sub backend. Each subscription gets its own
// bounded queue and a dedicated goroutine draining it into the handler, so
// one slow handler never blocks Publish or any other subscriber on the same
// channel. Publish only holds the lock long enough to copy the current
// subscriber set before sending, the same shape as a connection hub fanning
// out to many slow consumers.
import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// subscriptionQueueSize bounds each subscriber's backlog. On overflow the
// subscription is dropped (policy: drop-slow, logged).
const subscriptionQueueSize = 64

type subscription struct {
	id      string
	channel string
	queue   chan any
}

// firehoseEnvelope carries the originating channel alongside a firehose
// subscription's payload, since one firehose subscription fans in from many
// channels and the handler needs to know which.
type firehoseEnvelope struct {
	channel string
	payload any
}

// Hub is a Broker. The zero value is not usable; construct with NewHub.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[string]*subscription // channel -> subscription id -> sub
	firehose map[string]*subscription            // subscription id -> sub, fed by every channel
}

func NewHub() *Hub {
	return &Hub{
		subs:     make(map[string]map[string]*subscription),
		firehose: make(map[string]*subscription),
	}
}

// SubscribeFirehose registers handler against every channel, present and
// future — the fan-in an operator-facing monitor stream needs to show
// activity across all tasks and agents on one feed, without the per-channel
// wiring a normal Subscribe call would require. Uses the same bounded queue
// and drop-slow policy as a per-channel subscription.
func (h *Hub) SubscribeFirehose(handler Handler) (string, error) {
	sub := &subscription{
		id:    uuid.New().String(),
		queue: make(chan any, subscriptionQueueSize),
	}

	h.mu.Lock()
	h.firehose[sub.id] = sub
	h.mu.Unlock()

	go func() {
		for payload := range sub.queue {
			env := payload.(firehoseEnvelope)
			handler(context.Background(), env.channel, env.payload)
		}
	}()

	return sub.id, nil
}

// UnsubscribeFirehose removes a firehose subscription. Idempotent.
func (h *Hub) UnsubscribeFirehose(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.firehose[subscriptionID]
	if !ok {
		return
	}
	delete(h.firehose, subscriptionID)
	close(sub.queue)
}

func (h *Hub) Subscribe(channel string, handler Handler) (string, error) {
	sub := &subscription{
		id:      uuid.New().String(),
		channel: channel,
		queue:   make(chan any, subscriptionQueueSize),
	}

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[string]*subscription)
	}
	h.subs[channel][sub.id] = sub
	h.mu.Unlock()

	go func() {
		for payload := range sub.queue {
			handler(context.Background(), channel, payload)
		}
	}()

	return sub.id, nil
}

func (h *Hub) Unsubscribe(channel, subscriptionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID := h.subs[channel]
	sub, ok := byID[subscriptionID]
	if !ok {
		return nil
	}
	delete(byID, subscriptionID)
	if len(byID) == 0 {
		delete(h.subs, channel)
	}
	close(sub.queue)
	return nil
}

func (h *Hub) Publish(ctx context.Context, channel string, payload any) error {
	h.mu.RLock()
	byID := h.subs[channel]
	targets := make([]*subscription, 0, len(byID))
	for _, sub := range byID {
		targets = append(targets, sub)
	}
	firehoseTargets := make([]*subscription, 0, len(h.firehose))
	for _, sub := range h.firehose {
		firehoseTargets = append(firehoseTargets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.queue <- payload:
		default:
			log.Warn("dropping slow broker subscriber", "channel", channel, "subscription_id", sub.id)
			_ = h.Unsubscribe(channel, sub.id)
		}
	}

	for _, sub := range firehoseTargets {
		select {
		case sub.queue <- firehoseEnvelope{channel: channel, payload: payload}:
		default:
			log.Warn("dropping slow broker firehose subscriber", "channel", channel, "subscription_id", sub.id)
			h.UnsubscribeFirehose(sub.id)
		}
	}
	return nil
}

// SendDirect translates a directed message to an event on the target
// agent's conventional channel (spec: send(to_agent, message)).
func (h *Hub) SendDirect(ctx context.Context, toAgent string, message any) error {
	return h.Publish(ctx, AgentChannel(toAgent), message)
}

// SubscriberCount reports how many subscriptions a channel currently has.
// Intended for metrics and tests.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
