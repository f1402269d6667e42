package jsonrpc

import "encoding/json"

// Request is a JSON-RPC 2.0 request object. A request with an empty ID is a
// notification: the server processes it but sends no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}
