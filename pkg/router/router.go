// Package router implements spec 4.4's agent registry & message router: a
// name -> handler table for explicit dispatch, plus an ordered set of
// content-matching rules for when the caller doesn't name a target agent.
package router

import (
	"context"
	"strings"
	"sync"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

// Handler is the agent plug-point: handle(message, skill_id?) -> message.
// This mirrors taskmanager.Handler so a Router can itself be installed as a
// taskmanager.Manager's Handler.
type Handler interface {
	Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error)
}

type explicitAgentKey struct{}

// WithExplicitAgent attaches a caller-named target agent to ctx, so that a
// Router installed as a taskmanager.Manager's Handler still honours spec
// 4.4's explicit-dispatch path even though Manager only ever calls
// Handle(ctx, msg, skillID) with no agent name of its own. The HTTP layer
// resolves the name (e.g. from a request field) and wraps the context
// before calling into the manager.
func WithExplicitAgent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, explicitAgentKey{}, name)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error)

func (f HandlerFunc) Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
	return f(ctx, msg, skillID)
}

// Rule is one content-based dispatch rule: if any of Keywords appears
// (case-insensitively) in the message's first text part, Handler gets the
// message. Rules are tried in registration order; the first match wins.
type Rule struct {
	Name     string
	Keywords []string
	Handler  Handler
}

// Router is itself a Handler: Route applies explicit-dispatch-by-name first,
// then content-based rules, then the fallback.
type Router struct {
	mu       sync.RWMutex
	agents   map[string]Handler
	rules    []Rule
	fallback Handler
}

// NewRouter builds a Router. fallback is invoked when no explicit agent name
// is given and no content rule matches; per spec 4.4 this is a trivial echo
// when the caller doesn't supply one.
func NewRouter(fallback Handler) *Router {
	if fallback == nil {
		fallback = HandlerFunc(func(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
			return *a2a.NewTextMessage("agent", "Echo: "+firstText(msg)), nil
		})
	}
	return &Router{
		agents:   make(map[string]Handler),
		fallback: fallback,
	}
}

// RegisterAgent binds a name to a handler for explicit dispatch. Replacing
// an existing name is allowed (last registration wins).
func (r *Router) RegisterAgent(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = handler
}

// AddRule appends a content-based dispatch rule, tried in the order added.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// Agent returns a registered handler by name, for the HTTP layer's registry
// lookup ahead of an explicit-dispatch call.
func (r *Router) Agent(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.agents[name]
	return h, ok
}

// Handle makes Router a taskmanager.Handler: an explicit agent name carried
// on ctx via WithExplicitAgent short-circuits to that agent; otherwise this
// is content-based-then-fallback dispatch.
func (r *Router) Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
	explicit, _ := ctx.Value(explicitAgentKey{}).(string)
	return r.Route(ctx, msg, skillID, explicit)
}

// Route resolves a handler for msg and invokes it. explicitAgent, when
// non-empty, short-circuits straight to that registered agent; an unknown
// explicit name falls through to content-based dispatch rather than
// failing outright, so a typo'd agent name degrades instead of erroring.
func (r *Router) Route(ctx context.Context, msg a2a.Message, skillID string, explicitAgent string) (a2a.Message, error) {
	if explicitAgent != "" {
		if h, ok := r.Agent(explicitAgent); ok {
			return h.Handle(ctx, msg, skillID)
		}
	}

	if h := r.matchRule(msg); h != nil {
		return h.Handle(ctx, msg, skillID)
	}

	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg, skillID)
	}
	return a2a.Message{}, nil
}

func (r *Router) matchRule(msg a2a.Message) Handler {
	text := firstText(msg)
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return rule.Handler
			}
		}
	}
	return nil
}

func firstText(msg a2a.Message) string {
	for _, part := range msg.Parts {
		if part.Type == a2a.PartTypeText {
			return part.Text
		}
	}
	return ""
}
