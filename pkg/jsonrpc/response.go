package jsonrpc

import (
	"encoding/json"

	"github.com/theapemachine/a2a-coordinator/pkg/errors"
)

// Response is the single JSON-RPC 2.0 response envelope; every handler
// result and every error the server or a peer client sees rides on this
// type. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

// Error is a wire-compatible alias so callers building a Response by hand
// (e.g. a peer client parsing a raw error object) don't need to import
// pkg/errors directly.
type Error = errors.RpcError

func newErrorResponse(id json.RawMessage, err *errors.RpcError) Response {
	if err == nil {
		err = errors.ErrInternal
	}
	return Response{JSONRPC: Version, ID: id, Error: err}
}
