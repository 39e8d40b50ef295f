// Package identity provides the stable local peer identifier used to
// attribute every outbound sync frame.
package identity

import (
	"crypto/rand"
	"encoding/hex"
)

// PeerID identifies one participant process for its lifetime.
type PeerID string

// Prefix is the fixed peer id prefix; remote peers rely on it when
// classifying presence entries.
const Prefix = "peer-"

// NewPeerID generates a collision-resistant peer id of the form
// peer-<32 hex chars>. Entropy failure is unrecoverable: a process that
// cannot identify itself cannot participate.
func NewPeerID() PeerID {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("identity: system entropy unavailable: " + err.Error())
	}
	return PeerID(Prefix + hex.EncodeToString(buf))
}

func (p PeerID) String() string {
	return string(p)
}
