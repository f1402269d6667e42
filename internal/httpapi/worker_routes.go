package httpapi

// Worker REST surface, spec 4.5: the small HTTP protocol external worker
// processes use to register, claim, and report on AgentTasks, plus codebase
// CRUD and watch-mode control the coordinator backs.

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/queue"
)

func (s *Server) registerWorkerRoutes() {
	s.app.Post("/workers/register", s.handleWorkerRegister)
	s.app.Post("/workers/:id/heartbeat", s.handleWorkerHeartbeat)
	s.app.Post("/workers/:id/unregister", s.handleWorkerUnregister)

	s.app.Get("/tasks", s.handleListClaimableTasks)
	s.app.Put("/tasks/:id/status", s.handleUpdateTaskStatus)
	s.app.Post("/tasks/:id/cancel", s.handleCancelAgentTask)
	s.app.Post("/tasks/:id/output", s.handleTaskOutput)

	s.app.Post("/codebases", s.handleCreateCodebase)
	s.app.Get("/codebases", s.handleListCodebases)
	s.app.Post("/codebases/:id/watch", s.handleStartWatch)
	s.app.Post("/codebases/:id/unwatch", s.handleStopWatch)
}

type workerRegisterRequest struct {
	WorkerID     string   `json:"worker_id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
	Hostname     string   `json:"hostname"`
}

func (s *Server) handleWorkerRegister(c fiber.Ctx) error {
	if !s.registerLimiter.Allow(c.IP()) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many registration attempts"})
	}

	var req workerRegisterRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if s.deps.Workers == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "worker coordination not configured"})
	}
	w := s.deps.Workers.Register(req.WorkerID, req.Name, req.Hostname, req.Capabilities)
	return c.Status(fiber.StatusCreated).JSON(w)
}

func (s *Server) handleWorkerHeartbeat(c fiber.Ctx) error {
	if s.deps.Workers == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "worker coordination not configured"})
	}
	if !s.deps.Workers.Heartbeat(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown worker"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleWorkerUnregister(c fiber.Ctx) error {
	if s.deps.Workers == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "worker coordination not configured"})
	}
	s.deps.Workers.Unregister(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// handleListClaimableTasks implements `GET /tasks?status=pending&worker_id=…`:
// it lists the pending tasks of the codebases bound to worker_id, highest
// priority first, without claiming any of them.
func (s *Server) handleListClaimableTasks(c fiber.Ctx) error {
	if s.deps.QueueStore == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue not configured"})
	}

	workerID := c.Query("worker_id")
	status := c.Query("status", "pending")

	ctx := c.Context()
	if status != "pending" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "only status=pending is supported for listing"})
	}

	claimable, err := s.deps.QueueStore.ListClaimable(ctx, workerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(claimable)
}

type updateStatusRequest struct {
	Status   string `json:"status"`
	WorkerID string `json:"worker_id"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleUpdateTaskStatus(c fiber.Ctx) error {
	if s.deps.QueueStore == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue not configured"})
	}

	var req updateStatusRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, _ := queue.TruncateResult(req.Result, queue.DefaultResultMaxBytes)

	task, err := s.deps.QueueStore.UpdateStatus(c.Context(), c.Params("id"), req.WorkerID, queue.AgentTaskState(req.Status), result, req.Error)
	if err != nil {
		return queueErrorResponse(c, err)
	}

	if s.deps.Bus != nil {
		_ = s.deps.Bus.Publish(context.Background(), "task:"+task.ID, task)
	}
	return c.JSON(task)
}

func (s *Server) handleCancelAgentTask(c fiber.Ctx) error {
	if s.deps.QueueStore == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue not configured"})
	}
	task, err := s.deps.QueueStore.CancelTask(c.Context(), c.Params("id"))
	if err != nil {
		return queueErrorResponse(c, err)
	}
	return c.JSON(task)
}

// handleTaskOutput fans a worker-reported output chunk into the same SSE
// channel the task's own status events ride on, per spec 4.5.
func (s *Server) handleTaskOutput(c fiber.Ctx) error {
	var chunk a2a.TaskOutputChunk
	if err := c.Bind().Body(&chunk); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	chunk.ID = c.Params("id")

	if s.deps.Bus != nil {
		_ = s.deps.Bus.Publish(c.Context(), "task:"+chunk.ID, chunk)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

type createCodebaseRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	WatchIntervalS int    `json:"watchIntervalS,omitempty"`
}

func (s *Server) handleCreateCodebase(c fiber.Ctx) error {
	if s.deps.QueueStore == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue not configured"})
	}

	var req createCodebaseRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	now := time.Now().UTC()
	cb := &queue.Codebase{
		ID:             req.ID,
		Name:           req.Name,
		Path:           req.Path,
		Status:         queue.CodebaseIdle,
		WatchIntervalS: req.WatchIntervalS,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	queue.EnrichCodebase(c.Context(), nil, cb)

	if err := s.deps.QueueStore.CreateCodebase(c.Context(), cb); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(cb)
}

func (s *Server) handleListCodebases(c fiber.Ctx) error {
	if s.deps.QueueStore == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue not configured"})
	}
	cbs, err := s.deps.QueueStore.ListCodebases(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cbs)
}

func (s *Server) handleStartWatch(c fiber.Ctx) error {
	if s.deps.Coordinator == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "watch coordinator not configured"})
	}
	if err := s.deps.Coordinator.StartWatch(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleStopWatch(c fiber.Ctx) error {
	if s.deps.Coordinator == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "watch coordinator not configured"})
	}
	if err := s.deps.Coordinator.StopWatch(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func queueErrorResponse(c fiber.Ctx, err error) error {
	switch err {
	case queue.ErrTaskNotFound, queue.ErrCodebaseNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case queue.ErrNotCancellable, queue.ErrInvalidTransition, queue.ErrClaimConflict:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
