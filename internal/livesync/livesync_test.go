package livesync_test

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/rook-studio/rook-sync/internal/livesync"
	"github.com/rook-studio/rook-sync/internal/permission"
	"github.com/rook-studio/rook-sync/internal/protocol"
	"github.com/stretchr/testify/require"
)

type nopStore struct{}

func (nopStore) ApplyRemoteLayerUpdate(layerID string, patch json.RawMessage) {}

func (nopStore) ApplyRemoteCommentAdd(protocol.CommentAdd) {}

func (nopStore) ApplyRemoteCommentResolve(string) {}

func newSync(t *testing.T) *livesync.SyncContext {
	t.Helper()
	c := livesync.New(nopStore{}, nil, nil)
	t.Cleanup(c.Close)
	return c
}

func TestLocalPeerIDStableAndWellFormed(t *testing.T) {
	c := newSync(t)
	id := c.LocalPeerID()
	require.Regexp(t, regexp.MustCompile(`^peer-`), id.String())
	require.Equal(t, id, c.LocalPeerID())
	require.Equal(t, id, c.LocalPeerID())
}

func TestCreateSessionFields(t *testing.T) {
	c := newSync(t)
	s, err := c.CreateSession("Test Session")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, "Test Session", s.Name)
	require.NotEmpty(t, s.SecretKey)
}

func TestCreateSessionEmptyName(t *testing.T) {
	c := newSync(t)
	_, err := c.CreateSession("")
	require.Error(t, err)
}

func TestDefaultCapabilitiesAreFalse(t *testing.T) {
	c := newSync(t)
	require.False(t, c.CanEdit())
	require.False(t, c.CanComment())
}

func TestHostGetsEditorRole(t *testing.T) {
	c := newSync(t)
	_, err := c.CreateSession("Mine")
	require.NoError(t, err)
	require.True(t, c.CanEdit())
	require.True(t, c.CanComment())
}

func TestJoinGrantsLinkRoleOnly(t *testing.T) {
	host := newSync(t)
	s, err := host.CreateSession("Shared")
	require.NoError(t, err)

	link, err := host.GenerateInviteLink(s, permission.RoleCommenter, 24)
	require.NoError(t, err)

	guest := newSync(t)
	joined, role, err := guest.JoinSession(link, s.SecretKey)
	require.NoError(t, err)
	require.Equal(t, permission.RoleCommenter, role)
	require.Equal(t, s.ID, joined.ID)
	require.False(t, guest.CanEdit())
	require.True(t, guest.CanComment())
}

func TestSendsNeverPanicWithoutConnection(t *testing.T) {
	c := newSync(t)

	// Before any session exists.
	require.NotPanics(t, func() {
		c.SendLayerUpdate("layer-1", json.RawMessage(`{}`))
		c.SendCursorMove(10, 20)
		c.SendSelectionChange([]string{"layer-1"})
		c.SendCommentAdd(protocol.CommentAdd{ID: "c1", Text: "hm"})
		c.SendCommentResolve("c1")
	})

	// With a session but no connection.
	_, err := c.CreateSession("Offline")
	require.NoError(t, err)
	require.NotPanics(t, func() {
		c.SendLayerUpdate("layer-1", json.RawMessage(`{}`))
		c.SendCursorMove(10, 20)
		c.SendSelectionChange([]string{"layer-1"})
		c.SendCommentAdd(protocol.CommentAdd{ID: "c1", Text: "hm"})
		c.SendCommentResolve("c1")
	})
}

func TestDemoInviteScenario(t *testing.T) {
	c := newSync(t)
	s, err := c.CreateSession("Demo")
	require.NoError(t, err)

	link, err := c.GenerateInviteLink(s, permission.RoleViewer, 24)
	require.NoError(t, err)
	require.Contains(t, link, "rook://sync/")
	require.Contains(t, link, s.ID)

	claims, err := permission.DecodeLink(link, s.SecretKey)
	require.NoError(t, err)
	require.Equal(t, permission.RoleViewer, claims.Role)
	require.Equal(t, s.ID, claims.SessionID)
}

func TestLeaveSessionResetsCapabilities(t *testing.T) {
	c := newSync(t)
	_, err := c.CreateSession("Transient")
	require.NoError(t, err)
	require.True(t, c.CanEdit())

	c.LeaveSession()
	require.False(t, c.CanEdit())
	require.False(t, c.CanComment())

	// Sends after leaving are silent no-ops.
	require.NotPanics(t, func() { c.SendCursorMove(1, 1) })
}
