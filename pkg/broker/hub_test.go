package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

func TestPublishPreservesPerPublisherFIFO(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	var mu sync.Mutex
	var got []int

	_, err := h.Subscribe("events:task.completed", func(ctx context.Context, channel string, payload any) {
		mu.Lock()
		got = append(got, payload.(int))
		mu.Unlock()
	})
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, h.Publish(ctx, "events:task.completed", i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	const subs = 3
	var mu sync.Mutex
	deliveries := make([]int, subs)

	for i := 0; i < subs; i++ {
		idx := i
		_, err := h.Subscribe("events:task.completed", func(ctx context.Context, channel string, payload any) {
			mu.Lock()
			deliveries[idx]++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	require.NoError(t, h.Publish(ctx, "events:task.completed", map[string]string{"task_id": "t1"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, d := range deliveries {
			if d != 1 {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0

	id, err := h.Subscribe("events:x", func(ctx context.Context, channel string, payload any) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, "events:x", 1))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, h.Unsubscribe("events:x", id))
	require.NoError(t, h.Unsubscribe("events:x", id)) // idempotent

	require.NoError(t, h.Publish(ctx, "events:x", 2))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestPublishToChannelWithNoSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	require.NoError(t, h.Publish(context.Background(), "events:nobody-home", "payload"))
}

func TestPublishDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	block := make(chan struct{})
	id, err := h.Subscribe("events:slow", func(ctx context.Context, channel string, payload any) {
		<-block // never returns until the test unblocks it
	})
	require.NoError(t, err)

	for i := 0; i < subscriptionQueueSize+10; i++ {
		require.NoError(t, h.Publish(ctx, "events:slow", i))
	}

	require.Eventually(t, func() bool {
		return h.SubscriberCount("events:slow") == 0
	}, time.Second, time.Millisecond)

	close(block)
	_ = id
}

func TestRegistryDiscoverFiltersStaleEntries(t *testing.T) {
	h := NewHub()
	reg := NewRegistry(h).WithFreshnessHorizon(30 * time.Millisecond)

	reg.Register(context.Background(), a2a.AgentCard{Name: "worker-a"})
	require.True(t, reg.IsFresh("worker-a"))
	require.Len(t, reg.Discover(), 1)

	time.Sleep(50 * time.Millisecond)
	require.False(t, reg.IsFresh("worker-a"))
	require.Empty(t, reg.Discover())

	reg.Heartbeat("worker-a")
	require.True(t, reg.IsFresh("worker-a"))
}

func TestRegistryUnregisterIsIdempotentAndPublishesEvent(t *testing.T) {
	h := NewHub()
	reg := NewRegistry(h)

	var mu sync.Mutex
	var events []string
	_, err := h.Subscribe(EventChannel("agent.registered"), func(ctx context.Context, channel string, payload any) {
		mu.Lock()
		events = append(events, "registered")
		mu.Unlock()
	})
	require.NoError(t, err)
	_, err = h.Subscribe(EventChannel("agent.unregistered"), func(ctx context.Context, channel string, payload any) {
		mu.Lock()
		events = append(events, "unregistered")
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx := context.Background()
	reg.Register(ctx, a2a.AgentCard{Name: "worker-b"})
	reg.Unregister(ctx, "worker-b")
	reg.Unregister(ctx, "worker-b") // idempotent, no duplicate event

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, time.Millisecond)

	_, ok := reg.Get("worker-b")
	require.False(t, ok)
}
