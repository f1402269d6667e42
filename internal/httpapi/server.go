// Package httpapi wires the task manager, broker, queue coordinator, and
// auth verifier onto a single fiber/v3 HTTP server: the JSON-RPC front end,
// the worker REST surface, the agent-card/discovery endpoints, and the
// monitor firehose, generalized from the teacher's pkg/service/agent.go.
package httpapi

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/theapemachine/a2a-coordinator/internal/config"
	"github.com/theapemachine/a2a-coordinator/internal/metrics"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/auth"
	"github.com/theapemachine/a2a-coordinator/pkg/broker"
	"github.com/theapemachine/a2a-coordinator/pkg/queue"
	"github.com/theapemachine/a2a-coordinator/pkg/router"
	"github.com/theapemachine/a2a-coordinator/pkg/taskmanager"
)

// loginAttemptsPerMinute and registerAttemptsPerMinute bound how often a
// single remote address may hit /auth/login and /workers/register, per
// client, before getting a 429. Both are brute-force/flood targets: login
// guesses credentials, registration churns worker identities.
const (
	loginAttemptsPerMinute    = 10
	registerAttemptsPerMinute = 30
)

// Deps collects every component the HTTP layer dispatches into. Auth,
// Coordinator and Workers may be nil: auth is then disabled (spec 4.1 "an
// auth-disabled mode must also exist for tests") and the worker/watch
// routes serve 503 until they're configured.
type Deps struct {
	Config      *config.Config
	Metrics     *metrics.Registry
	Card        a2a.AgentCard
	Manager     *taskmanager.Manager
	Router      *router.Router
	Bus         broker.Broker
	AgentRegistry *broker.Registry
	QueueStore  queue.Adapter
	Workers     *queue.WorkerTable
	Coordinator *queue.Coordinator
	Verifier    *auth.Verifier
	OAuth       *auth.OAuthProxy
	Sessions    *auth.SessionTable
}

// Server hosts the fiber app built from Deps.
type Server struct {
	app             *fiber.App
	deps            *Deps
	loginLimiter    *auth.KeyedLimiter
	registerLimiter *auth.KeyedLimiter
}

// NewServer builds the app and registers every route. Start/Shutdown are
// separate so tests can drive the app with fiber's own test utilities
// without binding a real listener.
func NewServer(deps *Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:           deps.Card.Name,
		ServerHeader:      "a2a-coordinator",
		StreamRequestBody: true,
	})

	app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			// SSE connections are long-lived; logging them on every write
			// would drown the access log in noise.
			p := c.Path()
			return p == "/monitor/stream" || p == "/"
		},
	}), healthcheck.NewHealthChecker())

	srv := &Server{
		app:             app,
		deps:            deps,
		loginLimiter:    auth.NewKeyedLimiter(loginAttemptsPerMinute, time.Minute),
		registerLimiter: auth.NewKeyedLimiter(registerAttemptsPerMinute, time.Minute),
	}
	if deps.Verifier != nil {
		app.Use(srv.authMiddleware)
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/.well-known/agent-card.json", s.handleAgentCard)
	s.app.Get("/agents", s.handleDiscoverAgents)
	s.app.Get("/monitor/stream", s.handleMonitorStream)

	s.registerRPC()
	s.registerWorkerRoutes()
	s.registerAuthRoutes()
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Start blocks serving on addr (falls back to Config.HTTP.Addr when empty).
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.deps.Config.HTTP.Addr
	}
	log.Info("httpapi starting", "addr", addr)
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown drains in-flight requests (including SSE streams, which observe
// ctx cancellation) before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app for tests (fiber's httptest-style
// Test method).
func (s *Server) App() *fiber.App {
	return s.app
}
