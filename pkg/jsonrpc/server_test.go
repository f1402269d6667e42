package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-coordinator/pkg/errors"
)

func TestServerRoundTrip(t *testing.T) {
	srv := NewServer()
	srv.Register("echo", func(ctx context.Context, params json.RawMessage) (any, *errors.RpcError) {
		var v string
		if err := json.Unmarshal(params, &v); err != nil {
			return nil, errors.ErrInvalidParams
		}
		return v, nil
	})

	ts, err := newTestServer(srv)
	if err != nil {
		t.Skip("network disabled in environment; skipping test")
	}
	defer ts.Close()

	req := Request{JSONRPC: Version, ID: json.RawMessage(`1`), Method: "echo", Params: json.RawMessage(`"hello"`)}
	body, _ := json.Marshal(req)

	httpResp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var resp Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	require.Nil(t, resp.Error)
	require.Equal(t, "hello", resp.Result)
}

func TestServerUnknownMethod(t *testing.T) {
	srv := NewServer()

	ts, err := newTestServer(srv)
	if err != nil {
		t.Skip("network disabled in environment; skipping test")
	}
	defer ts.Close()

	req := Request{JSONRPC: Version, ID: json.RawMessage(`1`), Method: "does.not.exist"}
	body, _ := json.Marshal(req)

	httpResp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var resp Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, errors.ErrMethodNotFound.Code, resp.Error.Code)
}

func TestServerNotificationHasNoResponseBody(t *testing.T) {
	srv := NewServer()
	called := false
	srv.Register("ping", func(ctx context.Context, params json.RawMessage) (any, *errors.RpcError) {
		called = true
		return nil, nil
	})

	ts, err := newTestServer(srv)
	if err != nil {
		t.Skip("network disabled in environment; skipping test")
	}
	defer ts.Close()

	req := Request{JSONRPC: Version, Method: "ping"}
	body, _ := json.Marshal(req)

	httpResp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	require.Equal(t, http.StatusNoContent, httpResp.StatusCode)
	require.True(t, called)
}

// newTestServer wraps httptest.NewServer but converts the panic thrown when
// the environment forbids listening on sockets into a regular error so the
// caller can gracefully skip the test.
func newTestServer(h http.Handler) (*httptest.Server, error) {
	var srv *httptest.Server
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener not permitted: %v", r)
			}
		}()
		srv = httptest.NewServer(h)
	}()
	return srv, err
}
