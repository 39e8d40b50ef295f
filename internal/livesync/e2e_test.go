package livesync_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rook-studio/rook-sync/internal/config"
	"github.com/rook-studio/rook-sync/internal/livesync"
	"github.com/rook-studio/rook-sync/internal/permission"
	"github.com/rook-studio/rook-sync/internal/protocol"
	"github.com/rook-studio/rook-sync/internal/relay"
	"github.com/rook-studio/rook-sync/internal/transport"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	updates  chan string
	comments chan protocol.CommentAdd
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		updates:  make(chan string, 8),
		comments: make(chan protocol.CommentAdd, 8),
	}
}

func (s *recordingStore) ApplyRemoteLayerUpdate(layerID string, patch json.RawMessage) {
	s.updates <- layerID
}

func (s *recordingStore) ApplyRemoteCommentAdd(c protocol.CommentAdd) { s.comments <- c }

func (s *recordingStore) ApplyRemoteCommentResolve(string) {}

type recordingPresence struct {
	joined chan string
}

func (p *recordingPresence) PeerCursorMoved(string, float64, float64) {}
func (p *recordingPresence) PeerSelectionChanged(string, []string)    {}
func (p *recordingPresence) PeerJoined(peerID, role string)           { p.joined <- peerID }
func (p *recordingPresence) PeerLeft(string)                          {}
func (p *recordingPresence) PeerPresence(string, string, string, bool) {}

func fastTransport() *transport.Settings {
	s := transport.DefaultSettings()
	s.HandshakeTimeout = time.Second
	s.ReconnectDelay = 100 * time.Millisecond
	return s
}

func TestLayerUpdateFlowsHostToGuest(t *testing.T) {
	cfg := &config.Config{ListenAddress: ":0", JoinTimeoutSeconds: 2, MaxFrameBytes: 64 * 1024}
	r := relay.New(cfg, nil, nil, nil)
	ts := httptest.NewServer(r.Handler())
	t.Cleanup(func() {
		r.Stop()
		ts.Close()
	})
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sync"

	hostPresence := &recordingPresence{joined: make(chan string, 8)}
	host := livesync.New(newRecordingStore(), hostPresence, &livesync.Settings{
		RelayEndpoint: endpoint,
		Transport:     fastTransport(),
	})
	t.Cleanup(host.Close)

	s, err := host.CreateSession("Shared Doc")
	require.NoError(t, err)
	require.NoError(t, host.Connect(context.Background()))

	link, err := host.GenerateInviteLink(s, permission.RoleEditor, 1)
	require.NoError(t, err)

	guestStore := newRecordingStore()
	guest := livesync.New(guestStore, nil, &livesync.Settings{
		RelayEndpoint: endpoint,
		Transport:     fastTransport(),
	})
	t.Cleanup(guest.Close)

	joined, role, err := guest.JoinSession(link, s.SecretKey)
	require.NoError(t, err)
	require.Equal(t, permission.RoleEditor, role)
	require.Equal(t, s.ID, joined.ID)
	require.NoError(t, guest.Connect(context.Background()))

	// Wait until the relay has told the host about the guest.
	select {
	case peerID := <-hostPresence.joined:
		require.Equal(t, guest.LocalPeerID().String(), peerID)
	case <-time.After(3 * time.Second):
		t.Fatal("host never saw the guest join")
	}

	host.SendLayerUpdate("layer-42", json.RawMessage(`{"x":1}`))

	select {
	case layerID := <-guestStore.updates:
		require.Equal(t, "layer-42", layerID)
	case <-time.After(3 * time.Second):
		t.Fatal("guest never received the layer update")
	}

	host.SendCommentAdd(protocol.CommentAdd{
		ID:     "comment-7",
		Bounds: protocol.Bounds{X: 10, Y: 20, Width: 100, Height: 40},
		Text:   "tighten this corner",
	})

	select {
	case c := <-guestStore.comments:
		require.Equal(t, "comment-7", c.ID)
		require.Equal(t, host.LocalPeerID().String(), c.Author)
	case <-time.After(3 * time.Second):
		t.Fatal("guest never received the comment")
	}
}
