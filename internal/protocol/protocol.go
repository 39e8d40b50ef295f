package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// MessageType identifies the payload carried by an envelope.
type MessageType string

const (
	// TypeLayerUpdate carries a mutation of a single document layer.
	TypeLayerUpdate MessageType = "layer-update"
	// TypeCursorMove carries a peer's cursor position.
	TypeCursorMove MessageType = "cursor-move"
	// TypeSelectionChange carries the set of layers a peer has selected.
	TypeSelectionChange MessageType = "selection-change"
	// TypeCommentAdd attaches a comment to a page region.
	TypeCommentAdd MessageType = "comment-add"
	// TypeCommentResolve marks a comment as resolved.
	TypeCommentResolve MessageType = "comment-resolve"
	// TypeJoin announces a peer entering a session.
	TypeJoin MessageType = "join"
	// TypeLeave announces a peer leaving a session.
	TypeLeave MessageType = "leave"
	// TypePeerList carries the current session membership.
	TypePeerList MessageType = "peer-list"
	// TypePresence carries a peer's display info and activity state.
	TypePresence MessageType = "presence"
	// TypeError carries a relay-originated error message.
	TypeError MessageType = "error"
)

// Envelope is the wire frame exchanged over the sync socket: one JSON
// object per websocket text frame.
type Envelope struct {
	Type         MessageType     `json:"type"`
	SessionID    string          `json:"sessionId"`
	SenderPeerID string          `json:"senderPeerId"`
	MsgID        string          `json:"msgId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// LayerUpdate mutates one layer. Patch is opaque to this layer; the
// document store owns its schema.
type LayerUpdate struct {
	Timestamp int64           `json:"timestamp"`
	LayerID   string          `json:"layerId"`
	Patch     json.RawMessage `json:"patch"`
}

// CursorMove reports a peer cursor position in document coordinates.
type CursorMove struct {
	PeerID string  `json:"peerId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// SelectionChange reports the layers a peer currently has selected.
type SelectionChange struct {
	LayerIDs []string `json:"layerIds"`
}

// Bounds is a rectangle in document coordinates.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CommentAdd attaches a comment to a region of a page.
type CommentAdd struct {
	ID        string `json:"id"`
	PageIndex int    `json:"pageIndex"`
	Bounds    Bounds `json:"bounds"`
	Text      string `json:"text"`
	Author    string `json:"author"`
}

// CommentResolve marks an existing comment as resolved.
type CommentResolve struct {
	ID string `json:"id"`
}

// Join is the first frame a peer sends after connecting.
type Join struct {
	PeerID string `json:"peerId"`
	Role   string `json:"role,omitempty"`
}

// Leave announces a departing peer.
type Leave struct {
	PeerID string `json:"peerId"`
}

// PeerInfo describes one session member.
type PeerInfo struct {
	ID       string `json:"id"`
	Role     string `json:"role,omitempty"`
	JoinedAt int64  `json:"joinedAt"`
}

// PeerList carries the full membership of a session.
type PeerList struct {
	Peers []PeerInfo `json:"peers"`
}

// Presence carries a peer's display identity and activity flag.
type Presence struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name,omitempty"`
	Color  string `json:"color,omitempty"`
	Active bool   `json:"active"`
}

// ErrorMessage is sent by the relay when it rejects a frame.
type ErrorMessage struct {
	Message string `json:"message"`
}

// NewEnvelope builds an envelope around the given payload, stamping a
// fresh message id.
func NewEnvelope(t MessageType, sessionID, senderPeerID string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{
		Type:         t,
		SessionID:    sessionID,
		SenderPeerID: senderPeerID,
		MsgID:        NewMsgID(),
		Payload:      raw,
	}, nil
}

// Encode serializes an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire frame. Frames without a type or session id are
// rejected; an unknown type is not an error here so that newer message
// kinds pass through to dispatch, where they are ignored.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	if env.SessionID == "" {
		return Envelope{}, fmt.Errorf("envelope missing session id")
	}
	return env, nil
}

// NewMsgID returns a new sortable message id. ULIDs order by generation
// time per sender, which gives receivers a cheap per-sender ordering
// without a seq/ack exchange.
func NewMsgID() string {
	return ulid.Make().String()
}
