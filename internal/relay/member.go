package relay

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rook-studio/rook-sync/internal/config"
	"github.com/rook-studio/rook-sync/internal/protocol"
)

const (
	writeWait       = 10 * time.Second
	defaultIdleWait = 60 * time.Second
)

// idleWait is how long a member may go without traffic or a pong before
// its connection is considered dead. Configurable so short-lived test
// relays and long-lived production ones can differ.
func idleWait(cfg *config.Config) time.Duration {
	if d := cfg.IdleTimeout(); d > 0 {
		return d
	}
	return defaultIdleWait
}

// member is one websocket connection participating in a session room.
type member struct {
	id       string
	peerID   string
	role     string
	joinedAt time.Time

	conn     *websocket.Conn
	config   *config.Config
	room     *room
	idleWait time.Duration

	outgoing  chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func newMember(conn *websocket.Conn, cfg *config.Config, rm *room, join protocol.Join) *member {
	return &member{
		id:       uuid.New().String(),
		peerID:   join.PeerID,
		role:     join.Role,
		joinedAt: time.Now(),
		conn:     conn,
		config:   cfg,
		room:     rm,
		idleWait: idleWait(cfg),
		outgoing: make(chan []byte, 256),
		quit:     make(chan struct{}),
	}
}

func (m *member) close() {
	m.closeOnce.Do(func() {
		close(m.quit)
		_ = m.conn.Close()
	})
}

// send queues a frame for the member, dropping when its buffer is full
// so one slow reader never stalls the room.
func (m *member) send(frame []byte) {
	select {
	case <-m.quit:
	case m.outgoing <- frame:
	default:
		log.Printf("WARN: Send buffer full for peer %s, dropping frame", m.peerID)
	}
}

// startPumps runs the read and write pumps and blocks until the member
// disconnects.
func (m *member) startPumps() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.writePump()
	}()
	go func() {
		defer wg.Done()
		m.readPump()
	}()
	wg.Wait()
}

func (m *member) readPump() {
	defer m.close()

	m.conn.SetReadLimit(m.config.MaxFrameBytes)
	_ = m.conn.SetReadDeadline(time.Now().Add(m.idleWait))
	m.conn.SetPongHandler(func(string) error {
		return m.conn.SetReadDeadline(time.Now().Add(m.idleWait))
	})

	for {
		messageType, frame, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARN: Unexpected close from peer %s: %v", m.peerID, err)
			}
			return
		}
		_ = m.conn.SetReadDeadline(time.Now().Add(m.idleWait))

		if messageType != websocket.TextMessage {
			log.Printf("WARN: Dropping non-text frame from peer %s", m.peerID)
			continue
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			log.Printf("WARN: Dropping malformed frame from peer %s: %v", m.peerID, err)
			continue
		}
		if env.SessionID != m.room.sessionID {
			log.Printf("WARN: Peer %s sent frame for foreign session %s", m.peerID, env.SessionID)
			continue
		}

		switch env.Type {
		case protocol.TypeJoin:
			// Re-joins after a client reconnect refresh the member
			// record; membership itself is unchanged.
			m.room.refresh(m, env)
		case protocol.TypeLeave:
			return
		default:
			m.room.relayFrame(m, frame)
		}
	}
}

func (m *member) writePump() {
	ticker := time.NewTicker((m.idleWait * 9) / 10)
	defer func() {
		ticker.Stop()
		m.close()
	}()
	for {
		select {
		case <-m.quit:
			return
		case frame := <-m.outgoing:
			_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WARN: Failed to write to peer %s: %v", m.peerID, err)
				return
			}
		case <-ticker.C:
			_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *member) info() protocol.PeerInfo {
	return protocol.PeerInfo{
		ID:       m.peerID,
		Role:     m.role,
		JoinedAt: m.joinedAt.Unix(),
	}
}
