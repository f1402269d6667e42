package broker

// Registry is the agent discovery table the broker owns: register/discover/
// get backed by a plain map, refreshed by periodic heartbeats and pruned by
// a freshness horizon so a crashed agent eventually drops out of discovery
// without an explicit unregister.
import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

// DefaultFreshnessHorizon is how stale a registration's LastSeen may be
// before Discover stops returning it.
const DefaultFreshnessHorizon = 90 * time.Second

type Registry struct {
	mu               sync.RWMutex
	agents           map[string]*a2a.AgentCard
	freshnessHorizon time.Duration
	broker           Broker
}

func NewRegistry(b Broker) *Registry {
	return &Registry{
		agents:           make(map[string]*a2a.AgentCard),
		freshnessHorizon: DefaultFreshnessHorizon,
		broker:           b,
	}
}

// WithFreshnessHorizon overrides the default staleness window.
func (r *Registry) WithFreshnessHorizon(d time.Duration) *Registry {
	r.freshnessHorizon = d
	return r
}

// Register adds or replaces an agent's card and stamps LastSeen, then
// publishes agent.registered.
func (r *Registry) Register(ctx context.Context, card a2a.AgentCard) {
	card.LastSeen = time.Now().UTC()

	r.mu.Lock()
	_, existed := r.agents[card.Name]
	r.agents[card.Name] = &card
	r.mu.Unlock()

	if existed {
		log.Warn("broker registry: replacing existing agent registration", "name", card.Name)
	}
	_ = r.broker.Publish(ctx, EventChannel("agent.registered"), card)
}

// Unregister removes an agent and publishes agent.unregistered. Idempotent.
func (r *Registry) Unregister(ctx context.Context, name string) {
	r.mu.Lock()
	card, ok := r.agents[name]
	if ok {
		delete(r.agents, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	_ = r.broker.Publish(ctx, EventChannel("agent.unregistered"), *card)
}

// Heartbeat refreshes an already-registered agent's LastSeen. A heartbeat
// for an unknown agent is a no-op — the caller must Register first.
func (r *Registry) Heartbeat(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if card, ok := r.agents[name]; ok {
		card.LastSeen = time.Now().UTC()
	}
}

// Discover returns every registration whose LastSeen is within the
// freshness horizon.
func (r *Registry) Discover() []a2a.AgentCard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-r.freshnessHorizon)
	out := make([]a2a.AgentCard, 0, len(r.agents))
	for _, card := range r.agents {
		if card.LastSeen.After(cutoff) {
			out = append(out, *card)
		}
	}
	return out
}

// Get returns a named agent's card, regardless of freshness, and whether it
// is currently registered.
func (r *Registry) Get(name string) (a2a.AgentCard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.agents[name]
	if !ok {
		return a2a.AgentCard{}, false
	}
	return *card, true
}

// IsFresh reports whether a registered agent's LastSeen is within the
// freshness horizon.
func (r *Registry) IsFresh(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.agents[name]
	if !ok {
		return false
	}
	return card.LastSeen.After(time.Now().Add(-r.freshnessHorizon))
}
