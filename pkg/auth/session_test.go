package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRevocationListAddAndCheck(t *testing.T) {
	list := NewRevocationList()
	require.False(t, list.IsRevoked("tok-1"))

	list.Add("tok-1")
	require.True(t, list.IsRevoked("tok-1"))

	list.Add("") // no-op, never looked up
	require.False(t, list.IsRevoked(""))
}

func TestRevocationListPruneDropsOldEntries(t *testing.T) {
	list := NewRevocationList()
	list.Add("stale")
	list.revoked["stale"] = time.Now().Add(-time.Hour)

	list.Prune(time.Minute)
	require.False(t, list.IsRevoked("stale"))
}

func TestSessionTableLifecycle(t *testing.T) {
	table := NewSessionTable()
	claims := &Claims{Subject: "user-1", Roles: []string{"admin"}}

	s := table.Start("sess-1", claims)
	require.Equal(t, "user-1", s.Subject)

	require.True(t, table.Touch("sess-1"))
	require.False(t, table.Touch("unknown"))

	got, ok := table.Get("sess-1")
	require.True(t, ok)
	require.Equal(t, "user-1", got.Subject)

	table.End("sess-1")
	_, ok = table.Get("sess-1")
	require.False(t, ok)
}
