package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOAuthProxyPasswordLoginAgainstTokenEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.FormValue("grant_type"))
		require.Equal(t, "alice", r.FormValue("username"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	proxy := NewOAuthProxy("client-id", "client-secret", server.URL, server.URL, nil)
	tok, err := proxy.PasswordLogin(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "at-1", tok.AccessToken)
	require.Equal(t, "rt-1", tok.RefreshToken)
}

func TestOAuthProxyRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		require.Equal(t, "rt-1", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	proxy := NewOAuthProxy("client-id", "client-secret", server.URL, server.URL, nil)
	tok, err := proxy.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", tok.AccessToken)
}
