package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const bridgeKeyPrefix = "rook:session:"

// bridgeMessage wraps a wire frame with the publishing node's id so a
// node can skip its own publications when they fan back in.
type bridgeMessage struct {
	Node  string          `json:"node"`
	Frame json.RawMessage `json:"frame"`
}

// Bridge fans session frames across relay nodes through Redis pub/sub,
// so peers of one session may connect to different relays.
type Bridge struct {
	client *redis.Client
	nodeID string
}

// NewBridge connects to Redis and verifies the connection.
func NewBridge(ctx context.Context, addr, nodeID string) (*Bridge, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Bridge{client: client, nodeID: nodeID}, nil
}

// Publish sends a frame to every other node serving the session.
func (b *Bridge) Publish(ctx context.Context, sessionID string, frame []byte) {
	payload, err := json.Marshal(bridgeMessage{Node: b.nodeID, Frame: frame})
	if err != nil {
		log.Printf("ERROR: Failed to marshal bridge message: %v", err)
		return
	}
	if err := b.client.Publish(ctx, bridgeKeyPrefix+sessionID, payload).Err(); err != nil {
		log.Printf("WARN: Bridge publish for session %s failed: %v", sessionID, err)
	}
}

// Subscribe delivers frames published for the session by other nodes
// until the returned cancel function is called.
func (b *Bridge) Subscribe(ctx context.Context, sessionID string, deliver func(frame []byte)) func() {
	sub := b.client.Subscribe(ctx, bridgeKeyPrefix+sessionID)
	go func() {
		for msg := range sub.Channel() {
			var bm bridgeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				log.Printf("WARN: Dropping malformed bridge message for session %s: %v", sessionID, err)
				continue
			}
			if bm.Node == b.nodeID {
				continue
			}
			deliver(bm.Frame)
		}
	}()
	return func() {
		if err := sub.Close(); err != nil {
			log.Printf("WARN: Bridge unsubscribe for session %s failed: %v", sessionID, err)
		}
	}
}

// Close releases the Redis connection.
func (b *Bridge) Close() {
	if err := b.client.Close(); err != nil {
		log.Printf("WARN: Closing bridge connection failed: %v", err)
	}
}
