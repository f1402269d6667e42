package a2a

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientStreamMessageDecodesSSEFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"id\":\"t1\",\"status\":{\"state\":\"working\"},\"final\":false}\n\n")
		fmt.Fprintf(w, "data: {\"id\":\"t1\",\"status\":{\"state\":\"completed\"},\"final\":true}\n\n")
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ch := make(chan TaskStatusUpdateEvent, 2)

	err := client.StreamMessage(context.Background(), SendParams{TaskID: "t1"}, ch)
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, TaskStateWorking, first.Status.State)
	require.False(t, first.Final)

	second := <-ch
	require.Equal(t, TaskStateCompleted, second.Status.State)
	require.True(t, second.Final)
}

func TestClientGetTaskSurfacesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"task not found"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.GetTask(context.Background(), TaskIDParams{TaskID: "missing"})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, -32000, resp.Error.Code)
}
