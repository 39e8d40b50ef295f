// Package livesync ties identity, sessions, permissions, transport and
// routing into the SyncContext the editor talks to. One SyncContext is
// constructed per process and passed around explicitly; there are no
// package-level singletons.
package livesync

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/rook-studio/rook-sync/internal/clipboard"
	"github.com/rook-studio/rook-sync/internal/identity"
	"github.com/rook-studio/rook-sync/internal/permission"
	"github.com/rook-studio/rook-sync/internal/protocol"
	"github.com/rook-studio/rook-sync/internal/router"
	"github.com/rook-studio/rook-sync/internal/session"
	"github.com/rook-studio/rook-sync/internal/transport"
)

// Settings configure a SyncContext.
type Settings struct {
	// RelayEndpoint is the websocket URL of the sync relay.
	RelayEndpoint string
	// Transport overrides the connection tunables; nil means defaults.
	Transport *transport.Settings
}

// SyncContext owns the local peer identity, the session registry, the
// permission state and the relay connection.
type SyncContext struct {
	peerID   identity.PeerID
	registry *session.Registry
	perms    *permission.State
	conn     *transport.Conn
	settings *Settings
	store    router.DocumentStore
	presence router.PresenceSink

	mu      sync.RWMutex
	active  *session.Session
	routing *router.Router
}

// New wires up a SyncContext around the document store. presence may be
// nil when the host UI has no presence surface.
func New(store router.DocumentStore, presence router.PresenceSink, settings *Settings) *SyncContext {
	if settings == nil {
		settings = &Settings{}
	}
	c := &SyncContext{
		peerID:   identity.NewPeerID(),
		registry: session.NewRegistry(),
		perms:    permission.NewState(),
		settings: settings,
		store:    store,
		presence: presence,
	}
	c.conn = transport.New(transport.Callbacks{
		OnFrame: c.handleFrame,
		OnOpen:  c.handleOpen,
		OnError: func(err error) {
			log.Printf("WARN: Sync connection error: %v", err)
		},
	}, settings.Transport)
	return c
}

// LocalPeerID returns the stable identifier of this process.
func (c *SyncContext) LocalPeerID() identity.PeerID {
	return c.peerID
}

// Connect starts the relay connection. Idempotent; readiness is
// asynchronous and sends issued in the meantime follow the transport's
// buffering rules.
func (c *SyncContext) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx, c.settings.RelayEndpoint)
}

// CreateSession creates and hosts a new session. The host edits its own
// document, so creation grants the editor role locally.
func (c *SyncContext) CreateSession(name string) (*session.Session, error) {
	s, err := c.registry.Create(name, c.peerID.String())
	if err != nil {
		return nil, err
	}
	c.bind(s, permission.RoleEditor)
	return s, nil
}

// JoinSession validates an invite link against the shared secret and
// binds this peer to the session at the role the link grants.
func (c *SyncContext) JoinSession(link string, secretKey []byte) (*session.Session, permission.Role, error) {
	s, role, err := c.registry.JoinFromLink(link, secretKey)
	if err != nil {
		return nil, 0, err
	}
	c.bind(s, role)
	return s, role, nil
}

// GenerateInviteLink produces a signed, role-scoped, time-limited link
// for a hosted session.
func (c *SyncContext) GenerateInviteLink(s *session.Session, role permission.Role, ttlHours int) (string, error) {
	return permission.GenerateLink(s.ID, s.SecretKey, role, ttlHours)
}

// LeaveSession announces departure and unbinds the active session.
func (c *SyncContext) LeaveSession() {
	c.mu.Lock()
	r := c.routing
	active := c.active
	c.active = nil
	c.routing = nil
	c.mu.Unlock()

	if r != nil {
		r.SendLeave()
	}
	if active != nil {
		c.registry.Remove(active.ID)
	}
	c.perms.Reset()
}

// SendLayerUpdate broadcasts a layer mutation if a session is active
// and the local role permits editing. Never fails.
func (c *SyncContext) SendLayerUpdate(layerID string, patch json.RawMessage) {
	if r := c.router(); r != nil {
		r.SendLayerUpdate(layerID, patch)
	}
}

// SendCursorMove broadcasts the local cursor position. Never fails.
func (c *SyncContext) SendCursorMove(x, y float64) {
	if r := c.router(); r != nil {
		r.SendCursorMove(x, y)
	}
}

// SendSelectionChange broadcasts the local selection. Never fails.
func (c *SyncContext) SendSelectionChange(layerIDs []string) {
	if r := c.router(); r != nil {
		r.SendSelectionChange(layerIDs)
	}
}

// SendCommentAdd broadcasts a new comment if a session is active and
// the local role permits commenting. Never fails.
func (c *SyncContext) SendCommentAdd(comment protocol.CommentAdd) {
	if r := c.router(); r != nil {
		r.SendCommentAdd(comment)
	}
}

// SendCommentResolve broadcasts a comment resolution. Never fails.
func (c *SyncContext) SendCommentResolve(commentID string) {
	if r := c.router(); r != nil {
		r.SendCommentResolve(commentID)
	}
}

// SendPresence broadcasts display identity for remote peer cursors.
func (c *SyncContext) SendPresence(name, color string, active bool) {
	if r := c.router(); r != nil {
		r.SendPresence(name, color, active)
	}
}

// CanEdit reports whether the local peer may mutate layers.
func (c *SyncContext) CanEdit() bool {
	return c.perms.CanEdit()
}

// CanComment reports whether the local peer may comment.
func (c *SyncContext) CanComment() bool {
	return c.perms.CanComment()
}

// CopyToClipboard places text on the system clipboard; used by the UI
// after generating an invite link.
func (c *SyncContext) CopyToClipboard(text string) bool {
	return clipboard.Copy(text)
}

// Close shuts the relay connection down.
func (c *SyncContext) Close() {
	c.conn.Close()
}

func (c *SyncContext) bind(s *session.Session, role permission.Role) {
	c.perms.Grant(role)

	r := router.New(c.peerID, s.ID, c.perms, c.conn, c.store, c.presence)

	c.mu.Lock()
	c.active = s
	c.routing = r
	c.mu.Unlock()

	r.SendJoin(role)
	log.Printf("INFO: Bound to session %s as %s", s.ID, role)
}

func (c *SyncContext) router() *router.Router {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routing
}

func (c *SyncContext) handleFrame(frame []byte) {
	if r := c.router(); r != nil {
		r.HandleFrame(frame)
	}
}

// handleOpen re-announces the active session after every (re)connect so
// the relay rebuilds its membership.
func (c *SyncContext) handleOpen() {
	c.mu.RLock()
	r := c.routing
	c.mu.RUnlock()
	if r == nil {
		return
	}
	if role, ok := c.perms.Role(); ok {
		r.SendJoin(role)
	}
}
