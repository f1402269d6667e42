package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthStatusReflectsDisabledVerifier(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, srv, http.MethodGet, "/auth/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body["enabled"])
}

func TestAuthRoutesServiceUnavailableWithoutVerifier(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/auth/login", loginRequest{Username: "a", Password: "b"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthCheckIsAlwaysReachable(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
