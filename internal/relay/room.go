package relay

import (
	"context"
	"log"
	"sync"

	"github.com/rook-studio/rook-sync/internal/protocol"
)

// relaySenderID is the senderPeerId stamped on relay-originated frames
// such as peer lists.
const relaySenderID = "peer-relay"

// room is the set of members of one session connected to this node.
type room struct {
	sessionID string
	relay     *Relay

	mu      sync.Mutex
	members map[string]*member

	unsubscribe func()
}

func newRoom(sessionID string, r *Relay) *room {
	rm := &room{
		sessionID: sessionID,
		relay:     r,
		members:   make(map[string]*member),
	}
	if r.bridge != nil {
		rm.unsubscribe = r.bridge.Subscribe(context.Background(), sessionID, rm.deliverRemote)
	}
	return rm
}

// add registers a member and announces it: the join frame goes to every
// other member, the refreshed peer list to everyone. Returns false when
// the room is already at the configured member limit.
func (rm *room) add(m *member, joinFrame []byte) bool {
	limit := rm.relay.config.MaxSessionMembers

	rm.mu.Lock()
	if limit > 0 && len(rm.members) >= limit {
		rm.mu.Unlock()
		return false
	}
	rm.members[m.id] = m
	rm.mu.Unlock()

	log.Printf("INFO: Peer %s joined session %s", m.peerID, rm.sessionID)
	rm.broadcast(joinFrame, m.id)
	rm.publish(joinFrame)
	rm.broadcastPeerList()
	return true
}

// refresh handles a repeated join from an already-admitted member,
// which clients send after reconnecting.
func (rm *room) refresh(m *member, env protocol.Envelope) {
	rm.mu.Lock()
	_, known := rm.members[m.id]
	rm.mu.Unlock()
	if known {
		rm.broadcastPeerList()
	}
}

// remove drops a member and announces the departure. Returns the
// remaining member count so the relay can retire empty rooms.
func (rm *room) remove(m *member) int {
	rm.mu.Lock()
	delete(rm.members, m.id)
	remaining := len(rm.members)
	rm.mu.Unlock()

	log.Printf("INFO: Peer %s left session %s", m.peerID, rm.sessionID)
	if env, err := protocol.NewEnvelope(protocol.TypeLeave, rm.sessionID, m.peerID, protocol.Leave{PeerID: m.peerID}); err == nil {
		if frame, err := protocol.Encode(env); err == nil {
			rm.broadcast(frame, m.id)
			rm.publish(frame)
		}
	}
	rm.broadcastPeerList()
	return remaining
}

// relayFrame fans a member's frame out to the rest of the room and to
// other nodes. The relay never inspects payloads.
func (rm *room) relayFrame(from *member, frame []byte) {
	rm.broadcast(frame, from.id)
	rm.publish(frame)
}

// deliverRemote fans in a frame published by another relay node.
func (rm *room) deliverRemote(frame []byte) {
	rm.broadcast(frame, "")
}

// broadcast sends a frame to every member except the given one.
func (rm *room) broadcast(frame []byte, exceptID string) {
	rm.mu.Lock()
	targets := make([]*member, 0, len(rm.members))
	for id, m := range rm.members {
		if id == exceptID {
			continue
		}
		targets = append(targets, m)
	}
	rm.mu.Unlock()

	for _, m := range targets {
		m.send(frame)
	}
}

func (rm *room) broadcastPeerList() {
	rm.mu.Lock()
	peers := make([]protocol.PeerInfo, 0, len(rm.members))
	for _, m := range rm.members {
		peers = append(peers, m.info())
	}
	rm.mu.Unlock()

	env, err := protocol.NewEnvelope(protocol.TypePeerList, rm.sessionID, relaySenderID, protocol.PeerList{Peers: peers})
	if err != nil {
		log.Printf("ERROR: Failed to build peer list for session %s: %v", rm.sessionID, err)
		return
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Printf("ERROR: Failed to encode peer list for session %s: %v", rm.sessionID, err)
		return
	}
	rm.broadcast(frame, "")
}

func (rm *room) publish(frame []byte) {
	if rm.relay.bridge != nil {
		rm.relay.bridge.Publish(context.Background(), rm.sessionID, frame)
	}
}

// retire releases the room's bridge subscription.
func (rm *room) retire() {
	if rm.unsubscribe != nil {
		rm.unsubscribe()
	}
}

// closeAll disconnects every member, used during relay shutdown.
func (rm *room) closeAll() {
	rm.mu.Lock()
	targets := make([]*member, 0, len(rm.members))
	for _, m := range rm.members {
		targets = append(targets, m)
	}
	rm.mu.Unlock()

	for _, m := range targets {
		m.close()
	}
}
