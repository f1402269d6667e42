package jsonrpc

// A small, self-contained JSON-RPC 2.0 transport: method names are
// registered against handler functions and dispatched over a single HTTP
// endpoint, with batch and notification support per the spec.

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-coordinator/pkg/errors"
)

// HandlerFunc processes a method's raw params and returns a result or an
// RpcError. Returning (nil, nil) serializes as {"result":null}.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *errors.RpcError)

// Server multiplexes JSON-RPC method names to handler functions and serves
// them over HTTP as the single POST / entry point.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewServer() *Server {
	return &Server{handlers: make(map[string]HandlerFunc)}
}

func (s *Server) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, nil, errors.ErrParseError)
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		respondError(w, nil, errors.ErrInvalidRequest)
		return
	}

	if body[0] == '[' {
		s.serveBatch(w, r.Context(), body)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, nil, errors.ErrParseError)
		return
	}

	resp := s.handle(r.Context(), &req)
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) serveBatch(w http.ResponseWriter, ctx context.Context, body []byte) {
	var batch []Request
	if err := json.Unmarshal(body, &batch); err != nil {
		respondError(w, nil, errors.ErrParseError)
		return
	}

	responses := make([]Response, 0, len(batch))
	for i := range batch {
		resp := s.handle(ctx, &batch[i])
		if len(batch[i].ID) != 0 {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(responses)
}

func (s *Server) handle(ctx context.Context, req *Request) Response {
	if req.JSONRPC != Version {
		return newErrorResponse(req.ID, errors.ErrInvalidRequest)
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		return newErrorResponse(req.ID, errors.ErrMethodNotFound.WithMessagef("method not found: %s", req.Method))
	}

	result, rpcErr := h(ctx, req.Params)
	if rpcErr != nil {
		log.Warn("rpc handler error", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		return newErrorResponse(req.ID, rpcErr)
	}

	if result == nil {
		result = json.RawMessage("null")
	}
	return Response{JSONRPC: Version, ID: req.ID, Result: result}
}

func respondError(w http.ResponseWriter, id json.RawMessage, e *errors.RpcError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(newErrorResponse(id, e))
}
