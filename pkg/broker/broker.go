// Package broker implements channel-scoped pub/sub delivery for inter-agent
// events and directed messages, plus the agent discovery table that rides on
// top of it.
package broker

import "context"

// Handler processes one delivered payload. It runs on the subscription's own
// goroutine, never on the publisher's, so a slow handler cannot stall Publish
// or any other subscriber. A panic in a handler is not recovered.
type Handler func(ctx context.Context, channel string, payload any)

// Broker is the contract any pub/sub backend must satisfy — the in-process
// Hub, or a shared/distributed implementation fronting multiple processes.
// Callers code against this interface so swapping backends never touches
// the task manager, router, or queue.
type Broker interface {
	// Publish fans payload out to every current subscriber of channel. A
	// channel with no subscribers is a no-op, never an error.
	Publish(ctx context.Context, channel string, payload any) error

	// Subscribe registers handler against channel and returns a
	// subscription id for later Unsubscribe. Order of delivery to this
	// subscription matches the order Publish was called by a single
	// publisher.
	Subscribe(channel string, handler Handler) (string, error)

	// Unsubscribe removes a subscription. Idempotent: unsubscribing an
	// unknown or already-removed id is a no-op.
	Unsubscribe(channel, subscriptionID string) error
}

// Firehose is an optional capability a Broker backend may implement to fan
// in every channel at once, for an operator-facing monitor feed. Not part
// of the Broker contract itself since a federated backend may have no
// single point to tap every channel from.
type Firehose interface {
	SubscribeFirehose(handler Handler) (string, error)
	UnsubscribeFirehose(subscriptionID string)
}

// EventChannel returns the conventional channel name for a typed event, per
// the `events:<type>` normalization (e.g. "task.completed" ->
// "events:task.completed").
func EventChannel(eventType string) string {
	return "events:" + eventType
}

// TaskChannel returns the conventional channel name for per-task status
// updates.
func TaskChannel(taskID string) string {
	return "task:" + taskID
}

// AgentChannel returns the conventional channel a directed message to a
// named agent is translated onto; the target agent is expected to
// subscribe here.
func AgentChannel(agentName string) string {
	return "agent:" + agentName
}
