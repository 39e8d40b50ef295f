package session_test

import (
	"testing"

	"github.com/rook-studio/rook-sync/internal/permission"
	"github.com/rook-studio/rook-sync/internal/session"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	reg := session.NewRegistry()
	s, err := reg.Create("Test Session", "peer-host")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, "Test Session", s.Name)
	require.Len(t, s.SecretKey, 32)
	require.Equal(t, "peer-host", s.HostID)

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	require.Same(t, s, got)
}

func TestCreateSessionEmptyName(t *testing.T) {
	reg := session.NewRegistry()
	_, err := reg.Create("", "peer-host")
	require.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestCreateSessionUniqueIDsAndKeys(t *testing.T) {
	reg := session.NewRegistry()
	a, err := reg.Create("A", "peer-host")
	require.NoError(t, err)
	b, err := reg.Create("B", "peer-host")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
	require.NotEqual(t, a.SecretKey, b.SecretKey)
}

func TestJoinFromLink(t *testing.T) {
	host := session.NewRegistry()
	s, err := host.Create("Demo", "peer-host")
	require.NoError(t, err)

	link, err := permission.GenerateLink(s.ID, s.SecretKey, permission.RoleCommenter, 24)
	require.NoError(t, err)

	joiner := session.NewRegistry()
	joined, role, err := joiner.JoinFromLink(link, s.SecretKey)
	require.NoError(t, err)
	require.Equal(t, permission.RoleCommenter, role)
	require.Equal(t, s.ID, joined.ID)
	require.Equal(t, s.SecretKey, joined.SecretKey)

	// The joining side reconstructed the session locally.
	got, err := joiner.Get(s.ID)
	require.NoError(t, err)
	require.Same(t, joined, got)
}

func TestJoinFromLinkRejectsBadSignature(t *testing.T) {
	host := session.NewRegistry()
	s, err := host.Create("Demo", "peer-host")
	require.NoError(t, err)

	link, err := permission.GenerateLink(s.ID, s.SecretKey, permission.RoleEditor, 24)
	require.NoError(t, err)

	wrongKey := make([]byte, 32)
	_, _, err = session.NewRegistry().JoinFromLink(link, wrongKey)
	require.ErrorIs(t, err, permission.ErrSignatureMismatch)
}

func TestRemoveSession(t *testing.T) {
	reg := session.NewRegistry()
	s, err := reg.Create("Doomed", "peer-host")
	require.NoError(t, err)

	reg.Remove(s.ID)
	_, err = reg.Get(s.ID)
	require.ErrorIs(t, err, session.ErrNotFound)

	// Idempotent.
	reg.Remove(s.ID)
}
