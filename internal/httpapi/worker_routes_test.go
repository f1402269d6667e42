package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
	"github.com/theapemachine/a2a-coordinator/pkg/broker"
	"github.com/theapemachine/a2a-coordinator/pkg/queue"
	"github.com/theapemachine/a2a-coordinator/pkg/router"
	"github.com/theapemachine/a2a-coordinator/pkg/store"
	"github.com/theapemachine/a2a-coordinator/pkg/taskmanager"
)

func testServer(t *testing.T) (*Server, *queue.MemoryAdapter, *queue.WorkerTable) {
	t.Helper()

	bus := broker.NewHub()
	qs := queue.NewMemoryAdapter()
	workers := queue.NewWorkerTable()
	rtr := router.NewRouter(taskmanager.NewEchoHandler("echo: "))
	manager := taskmanager.NewManager(store.NewMemoryAdapter(), rtr)

	srv := NewServer(&Deps{
		Card:          a2a.AgentCard{Name: "test-agent"},
		Manager:       manager,
		Router:        rtr,
		Bus:           bus,
		AgentRegistry: broker.NewRegistry(bus),
		QueueStore:    qs,
		Workers:       workers,
	})
	return srv, qs, workers
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	return resp
}

func TestWorkerRegisterHeartbeatUnregister(t *testing.T) {
	srv, _, workers := testServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/workers/register", workerRegisterRequest{
		WorkerID: "w1", Name: "worker-one", Hostname: "host-a",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, ok := workers.Get("w1")
	require.True(t, ok)

	resp = doJSON(t, srv, http.MethodPost, "/workers/w1/heartbeat", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/workers/unknown/heartbeat", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/workers/w1/unregister", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok = workers.Get("w1")
	require.False(t, ok)
}

func TestListClaimableTasksIsWorkerScoped(t *testing.T) {
	srv, qs, _ := testServer(t)
	ctx := t.Context()

	require.NoError(t, qs.CreateCodebase(ctx, &queue.Codebase{ID: "cb1", WorkerID: "w1"}))
	require.NoError(t, qs.CreateTask(ctx, &queue.AgentTask{ID: "t1", CodebaseID: "cb1", Prompt: "do thing"}))

	resp := doJSON(t, srv, http.MethodGet, "/tasks?status=pending&worker_id=w1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []*queue.AgentTask
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	require.Equal(t, "t1", got[0].ID)

	resp = doJSON(t, srv, http.MethodGet, "/tasks?status=pending&worker_id=someone-else", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Empty(t, got)
}

func TestUpdateTaskStatusRejectsUnknownTask(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, srv, http.MethodPut, "/tasks/missing/status", updateStatusRequest{
		Status: string(queue.AgentTaskCompleted), WorkerID: "w1",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTaskStatusTruncatesOversizedResult(t *testing.T) {
	srv, qs, _ := testServer(t)
	ctx := t.Context()

	require.NoError(t, qs.CreateCodebase(ctx, &queue.Codebase{ID: "cb1", WorkerID: "w1"}))
	require.NoError(t, qs.CreateTask(ctx, &queue.AgentTask{ID: "t1", CodebaseID: "cb1"}))

	claimed, err := qs.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, "t1", claimed.ID)

	oversized := bytes.Repeat([]byte("x"), queue.DefaultResultMaxBytes*2)
	resp := doJSON(t, srv, http.MethodPut, "/tasks/t1/status", updateStatusRequest{
		Status:   string(queue.AgentTaskCompleted),
		WorkerID: "w1",
		Result:   string(oversized),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got queue.AgentTask
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Less(t, len(got.Result), len(oversized))
}

func TestCancelTaskConflictMapsTo409(t *testing.T) {
	srv, qs, _ := testServer(t)
	ctx := t.Context()

	require.NoError(t, qs.CreateCodebase(ctx, &queue.Codebase{ID: "cb1", WorkerID: "w1"}))
	require.NoError(t, qs.CreateTask(ctx, &queue.AgentTask{ID: "t1", CodebaseID: "cb1"}))
	_, err := qs.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	_, err = qs.UpdateStatus(ctx, "t1", "w1", queue.AgentTaskCompleted, "done", "")
	require.NoError(t, err)

	resp := doJSON(t, srv, http.MethodPost, "/tasks/t1/cancel", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateAndListCodebases(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/codebases", createCodebaseRequest{
		ID: "cb1", Name: "demo", Path: "/tmp/demo",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/codebases", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cbs []*queue.Codebase
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cbs))
	require.Len(t, cbs, 1)
	require.Equal(t, "cb1", cbs[0].ID)
}

func TestWatchRoutesServiceUnavailableWithoutCoordinator(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/codebases/cb1/watch", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/codebases/cb1/unwatch", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
