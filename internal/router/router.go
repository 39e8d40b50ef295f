// Package router turns editor actions into wire frames and inbound
// frames into collaborator calls. It owns the permission gate: a send
// the local role does not allow is silently dropped, never an error.
package router

import (
	"encoding/json"
	"log"
	"time"

	"github.com/rook-studio/rook-sync/internal/identity"
	"github.com/rook-studio/rook-sync/internal/permission"
	"github.com/rook-studio/rook-sync/internal/protocol"
)

// Sender is the slice of the transport connection the router needs.
type Sender interface {
	Send(frame []byte, durable bool)
}

// DocumentStore is the externally-owned collaborator that applies
// remote layer mutations. Implementations must not block: dispatch runs
// on the receive goroutine.
type DocumentStore interface {
	ApplyRemoteLayerUpdate(layerID string, patch json.RawMessage)
	ApplyRemoteCommentAdd(comment protocol.CommentAdd)
	ApplyRemoteCommentResolve(commentID string)
}

// PresenceSink receives remote presence, cursor, and membership events.
// All methods are optional in spirit: a nil sink disables them.
type PresenceSink interface {
	PeerCursorMoved(peerID string, x, y float64)
	PeerSelectionChanged(peerID string, layerIDs []string)
	PeerJoined(peerID, role string)
	PeerLeft(peerID string)
	PeerPresence(peerID, name, color string, active bool)
}

// Router binds one peer to one session over one connection.
type Router struct {
	localPeer identity.PeerID
	sessionID string
	perms     *permission.State
	sender    Sender
	store     DocumentStore
	presence  PresenceSink
}

// New creates a router for the given session. store may not be nil;
// presence may be.
func New(localPeer identity.PeerID, sessionID string, perms *permission.State, sender Sender, store DocumentStore, presence PresenceSink) *Router {
	return &Router{
		localPeer: localPeer,
		sessionID: sessionID,
		perms:     perms,
		sender:    sender,
		store:     store,
		presence:  presence,
	}
}

// SendLayerUpdate broadcasts a layer mutation. Requires the editor
// role; without it the call is a no-op. Layer updates are durable:
// they survive a connection outage in the transport's pending queue.
func (r *Router) SendLayerUpdate(layerID string, patch json.RawMessage) {
	if !r.perms.CanEdit() {
		return
	}
	r.send(protocol.TypeLayerUpdate, protocol.LayerUpdate{
		Timestamp: time.Now().UnixMilli(),
		LayerID:   layerID,
		Patch:     patch,
	}, true)
}

// SendCursorMove broadcasts the local cursor position. Presence
// traffic is permitted for every role and dropped when offline.
func (r *Router) SendCursorMove(x, y float64) {
	r.send(protocol.TypeCursorMove, protocol.CursorMove{
		PeerID: r.localPeer.String(),
		X:      x,
		Y:      y,
	}, false)
}

// SendSelectionChange broadcasts the local selection.
func (r *Router) SendSelectionChange(layerIDs []string) {
	r.send(protocol.TypeSelectionChange, protocol.SelectionChange{
		LayerIDs: layerIDs,
	}, false)
}

// SendCommentAdd broadcasts a new comment. Requires the commenter role
// or better; without it the call is a no-op. Comments are content, so
// like layer updates they are sent durably.
func (r *Router) SendCommentAdd(comment protocol.CommentAdd) {
	if !r.perms.CanComment() {
		return
	}
	comment.Author = r.localPeer.String()
	r.send(protocol.TypeCommentAdd, comment, true)
}

// SendCommentResolve broadcasts that a comment is resolved.
func (r *Router) SendCommentResolve(commentID string) {
	if !r.perms.CanComment() {
		return
	}
	r.send(protocol.TypeCommentResolve, protocol.CommentResolve{ID: commentID}, true)
}

// SendJoin announces this peer to the session. Sent durably so a relay
// reached after a reconnect still sees the membership.
func (r *Router) SendJoin(role permission.Role) {
	r.send(protocol.TypeJoin, protocol.Join{
		PeerID: r.localPeer.String(),
		Role:   role.String(),
	}, true)
}

// SendLeave announces departure.
func (r *Router) SendLeave() {
	r.send(protocol.TypeLeave, protocol.Leave{PeerID: r.localPeer.String()}, false)
}

// SendPresence broadcasts display identity and activity.
func (r *Router) SendPresence(name, color string, active bool) {
	r.send(protocol.TypePresence, protocol.Presence{
		PeerID: r.localPeer.String(),
		Name:   name,
		Color:  color,
		Active: active,
	}, false)
}

func (r *Router) send(t protocol.MessageType, payload interface{}, durable bool) {
	env, err := protocol.NewEnvelope(t, r.sessionID, r.localPeer.String(), payload)
	if err != nil {
		log.Printf("ERROR: Failed to build %s envelope: %v", t, err)
		return
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s envelope: %v", t, err)
		return
	}
	r.sender.Send(frame, durable)
}

// HandleFrame dispatches one inbound wire frame. Malformed frames are
// logged and dropped; unknown types are ignored; a frame can never
// alter the local permission state.
func (r *Router) HandleFrame(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Printf("WARN: Dropping malformed frame: %v", err)
		return
	}
	if env.SessionID != r.sessionID {
		log.Printf("WARN: Dropping frame for foreign session %s", env.SessionID)
		return
	}
	if env.SenderPeerID == r.localPeer.String() {
		// Relay fan-out may echo our own frames.
		return
	}

	switch env.Type {
	case protocol.TypeLayerUpdate:
		var p protocol.LayerUpdate
		if !r.unmarshal(env, &p) {
			return
		}
		r.store.ApplyRemoteLayerUpdate(p.LayerID, p.Patch)
	case protocol.TypeCursorMove:
		var p protocol.CursorMove
		if !r.unmarshal(env, &p) {
			return
		}
		if r.presence != nil {
			// The envelope sender is authoritative; the payload peer id
			// is not trusted for attribution.
			r.presence.PeerCursorMoved(env.SenderPeerID, p.X, p.Y)
		}
	case protocol.TypeSelectionChange:
		var p protocol.SelectionChange
		if !r.unmarshal(env, &p) {
			return
		}
		if r.presence != nil {
			r.presence.PeerSelectionChanged(env.SenderPeerID, p.LayerIDs)
		}
	case protocol.TypeCommentAdd:
		var p protocol.CommentAdd
		if !r.unmarshal(env, &p) {
			return
		}
		p.Author = env.SenderPeerID
		r.store.ApplyRemoteCommentAdd(p)
	case protocol.TypeCommentResolve:
		var p protocol.CommentResolve
		if !r.unmarshal(env, &p) {
			return
		}
		r.store.ApplyRemoteCommentResolve(p.ID)
	case protocol.TypeJoin:
		var p protocol.Join
		if !r.unmarshal(env, &p) {
			return
		}
		if r.presence != nil {
			r.presence.PeerJoined(p.PeerID, p.Role)
		}
	case protocol.TypeLeave:
		var p protocol.Leave
		if !r.unmarshal(env, &p) {
			return
		}
		if r.presence != nil {
			r.presence.PeerLeft(p.PeerID)
		}
	case protocol.TypePeerList:
		var p protocol.PeerList
		if !r.unmarshal(env, &p) {
			return
		}
		if r.presence != nil {
			for _, peer := range p.Peers {
				if peer.ID == r.localPeer.String() {
					continue
				}
				r.presence.PeerJoined(peer.ID, peer.Role)
			}
		}
	case protocol.TypePresence:
		var p protocol.Presence
		if !r.unmarshal(env, &p) {
			return
		}
		if r.presence != nil {
			r.presence.PeerPresence(p.PeerID, p.Name, p.Color, p.Active)
		}
	case protocol.TypeError:
		var p protocol.ErrorMessage
		if !r.unmarshal(env, &p) {
			return
		}
		log.Printf("WARN: Relay error for session %s: %s", r.sessionID, p.Message)
	default:
		// Unknown types are future protocol additions.
	}
}

func (r *Router) unmarshal(env protocol.Envelope, into interface{}) bool {
	if err := json.Unmarshal(env.Payload, into); err != nil {
		log.Printf("WARN: Dropping %s frame with bad payload: %v", env.Type, err)
		return false
	}
	return true
}
