package httpapi

// RPC front end: a single POST / endpoint dispatching the methods in spec
// 4.1. message/send, tasks/get, tasks/cancel and the push-notification pair
// go through pkg/jsonrpc.Server's generic request/response handling;
// message/stream and tasks/resubscribe answer with an SSE stream instead of
// a JSON-RPC result, so they're special-cased ahead of it, following the
// teacher's handleRPC method switch in pkg/service/agent.go.

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/errors"
	"github.com/theapemachine/a2a-coordinator/pkg/jsonrpc"
	"github.com/theapemachine/a2a-coordinator/pkg/router"
)

func (s *Server) registerRPC() {
	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("message/send", s.rpcSendMessage)
	rpcServer.Register("tasks/get", s.rpcGetTask)
	rpcServer.Register("tasks/cancel", s.rpcCancelTask)
	rpcServer.Register("tasks/pushNotification/set", s.rpcSetPushNotification)
	rpcServer.Register("tasks/pushNotification/get", s.rpcGetPushNotification)

	mounted := fiberadaptor.HTTPHandler(rpcServer)

	s.app.Post("/", func(c fiber.Ctx) error {
		switch peekMethod(c.Body()) {
		case "message/stream":
			return s.handleMessageStream(c)
		case "tasks/resubscribe":
			return s.handleResubscribe(c)
		default:
			return mounted(c)
		}
	})
}

// peekMethod extracts a top-level request's method name without fully
// decoding it, so a batch request (a JSON array) or a malformed body simply
// falls through to the generic handler, which reports the proper JSON-RPC
// error.
func peekMethod(body []byte) string {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Method
}

// withExplicitAgent resolves spec 4.4's explicit-dispatch field — an
// optional "agent" key in the request's metadata — onto ctx, ahead of
// calling into the task manager.
func withExplicitAgent(ctx context.Context, metadata map[string]any) context.Context {
	name, _ := metadata["agent"].(string)
	if name == "" {
		return ctx
	}
	return router.WithExplicitAgent(ctx, name)
}

func (s *Server) rpcSendMessage(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
	var params a2a.SendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("message/send: %v", err)
	}

	ctx = withExplicitAgent(ctx, params.Metadata)
	task, reply, rpcErr := s.deps.Manager.SendMessage(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return a2a.SendResult{Task: task, Message: reply}, nil
}

type taskIDParams struct {
	TaskID        string `json:"task_id"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

func (s *Server) rpcGetTask(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
	var params taskIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("tasks/get: %v", err)
	}
	return s.deps.Manager.GetTask(ctx, params.TaskID, params.HistoryLength)
}

func (s *Server) rpcCancelTask(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
	var params a2a.TaskIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("tasks/cancel: %v", err)
	}
	return s.deps.Manager.CancelTask(ctx, params.TaskID)
}

type pushNotificationSetParams struct {
	TaskID                 string                     `json:"task_id"`
	PushNotificationConfig a2a.PushNotificationConfig `json:"pushNotificationConfig"`
}

func (s *Server) rpcSetPushNotification(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
	var params pushNotificationSetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("tasks/pushNotification/set: %v", err)
	}
	return s.deps.Manager.SetPushNotification(ctx, params.TaskID, params.PushNotificationConfig)
}

func (s *Server) rpcGetPushNotification(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
	var params a2a.TaskIDParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.ErrInvalidParams.WithMessagef("tasks/pushNotification/get: %v", err)
	}
	return s.deps.Manager.GetPushNotification(ctx, params.TaskID)
}

// handleMessageStream answers message/stream with an SSE stream of
// TaskStatusUpdateEvent, per spec 4.1/4.2's streaming dispatch loop.
func (s *Server) handleMessageStream(c fiber.Ctx) error {
	var req jsonrpc.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return writeRPCError(c, nil, errors.ErrParseError)
	}

	var params a2a.SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeRPCError(c, req.ID, errors.ErrInvalidParams.WithMessagef("message/stream: %v", err))
	}

	reqCtx := withExplicitAgent(c.Context(), params.Metadata)
	events, rpcErr := s.deps.Manager.StreamMessage(reqCtx, params)
	if rpcErr != nil {
		return writeRPCError(c, req.ID, rpcErr)
	}

	label := params.TaskID
	if label == "" {
		label = "new"
	}
	dispatcher := s.newDispatcher(label)
	handler := func(w http.ResponseWriter, r *http.Request) {
		dispatcher.serve(w, r, events)
	}
	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(c)
}

type resubscribeParams struct {
	TaskID        string `json:"task_id"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

// handleResubscribe answers tasks/resubscribe with an SSE stream resuming
// updates for an existing, already-running task.
func (s *Server) handleResubscribe(c fiber.Ctx) error {
	var req jsonrpc.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return writeRPCError(c, nil, errors.ErrParseError)
	}

	var params resubscribeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeRPCError(c, req.ID, errors.ErrInvalidParams.WithMessagef("tasks/resubscribe: %v", err))
	}

	events, rpcErr := s.deps.Manager.ResubscribeTask(c.Context(), params.TaskID, params.HistoryLength)
	if rpcErr != nil {
		return writeRPCError(c, req.ID, rpcErr)
	}

	dispatcher := s.newDispatcher(params.TaskID)
	handler := func(w http.ResponseWriter, r *http.Request) {
		dispatcher.serve(w, r, events)
	}
	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(c)
}

func (s *Server) newDispatcher(label string) *streamDispatcher {
	heartbeat := secondsToDuration(s.deps.Config.SSE.HeartbeatIntervalSeconds)
	return newStreamDispatcher(heartbeat, s.deps.Metrics, label)
}

func writeRPCError(c fiber.Ctx, id json.RawMessage, err *errors.RpcError) error {
	status := fiber.StatusBadRequest
	if err.Code == errors.ErrInternal.Code {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Error: err})
}
