// Package relay implements the sync relay endpoint: it admits
// websocket peers, groups them into per-session rooms, and fans their
// frames out without ever holding a session secret.
package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rook-studio/rook-sync/internal/auth"
	"github.com/rook-studio/rook-sync/internal/config"
	"github.com/rook-studio/rook-sync/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

// Relay is the server side of the sync protocol.
type Relay struct {
	config    *config.Config
	validator auth.Validator
	bridge    *Bridge
	upgrader  websocket.Upgrader
	tlsConfig *tls.Config
	server    *http.Server

	mu    sync.Mutex
	rooms map[string]*room
}

// New creates a Relay. validator may be nil for an open relay; bridge
// may be nil for a single-node deployment; tlsConfig may be nil for
// plain HTTP.
func New(cfg *config.Config, validator auth.Validator, bridge *Bridge, tlsConfig *tls.Config) *Relay {
	r := &Relay{
		config:    cfg,
		validator: validator,
		bridge:    bridge,
		tlsConfig: tlsConfig,
		rooms:     make(map[string]*room),
	}
	r.upgrader = websocket.Upgrader{
		CheckOrigin: r.checkOrigin,
	}
	return r
}

// Handler returns the relay's HTTP handler; the sync endpoint is /sync.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", r.handleSync)
	return mux
}

// Run starts the relay's HTTP server.
func (r *Relay) Run() {
	r.server = &http.Server{
		Addr:      r.config.ListenAddress,
		Handler:   r.Handler(),
		TLSConfig: r.tlsConfig,
	}

	log.Printf("INFO: Sync relay listening on %s", r.config.ListenAddress)
	go func() {
		var err error
		if r.tlsConfig != nil {
			err = r.server.ListenAndServeTLS("", "")
		} else {
			err = r.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: Sync relay failed to start: %v", err)
		}
	}()
}

// Stop gracefully shuts the relay down.
func (r *Relay) Stop() {
	log.Println("INFO: Shutting down sync relay...")
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := r.server.Shutdown(ctx); err != nil {
			log.Printf("WARN: Relay graceful shutdown failed: %v", err)
		}
	}

	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.closeAll()
		rm.retire()
	}
}

func (r *Relay) checkOrigin(req *http.Request) bool {
	if len(r.config.AllowedOrigins) == 0 {
		return true
	}
	origin := req.Header.Get("Origin")
	for _, allowed := range r.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// handleSync admits one peer: optional token gate, upgrade, then a
// mandatory join frame that places the connection in a session room.
func (r *Relay) handleSync(w http.ResponseWriter, req *http.Request) {
	var claims *auth.Claims
	if r.validator != nil {
		token := req.URL.Query().Get("token")
		if token == "" {
			token = req.Header.Get("Authorization")
		}
		var err error
		claims, err = r.validator.Validate(token)
		if err != nil {
			log.Printf("WARN: Rejected connection from %s: %v", req.RemoteAddr, err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("ERROR: Failed to upgrade sync connection: %v", err)
		return
	}

	env, join, frame, err := r.readJoin(conn)
	if err != nil {
		log.Printf("WARN: Handshake failed for %s: %v", conn.RemoteAddr(), err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}
	if claims != nil && !claims.AllowsSession(env.SessionID) {
		log.Printf("WARN: Token for peer %s does not admit session %s", join.PeerID, env.SessionID)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session not permitted"))
		_ = conn.Close()
		return
	}

	rm := r.roomFor(env.SessionID)
	m := newMember(conn, r.config, rm, join)
	if !rm.add(m, frame) {
		log.Printf("WARN: Session %s is full, rejecting peer %s", env.SessionID, join.PeerID)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session full"))
		_ = conn.Close()
		return
	}
	defer r.removeMember(rm, m)

	m.startPumps()
}

type joinError string

func (e joinError) Error() string { return string(e) }

func (r *Relay) readJoin(conn *websocket.Conn) (protocol.Envelope, protocol.Join, []byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(r.config.JoinTimeout())); err != nil {
		return protocol.Envelope{}, protocol.Join{}, nil, err
	}
	messageType, frame, err := conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, protocol.Join{}, nil, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return protocol.Envelope{}, protocol.Join{}, nil, err
	}
	if messageType != websocket.TextMessage {
		return protocol.Envelope{}, protocol.Join{}, nil, joinError("expected text join frame")
	}

	env, err := protocol.Decode(frame)
	if err != nil {
		return protocol.Envelope{}, protocol.Join{}, nil, err
	}
	if env.Type != protocol.TypeJoin {
		return protocol.Envelope{}, protocol.Join{}, nil, joinError("first frame must be a join")
	}
	var join protocol.Join
	if err := json.Unmarshal(env.Payload, &join); err != nil {
		return protocol.Envelope{}, protocol.Join{}, nil, err
	}
	if join.PeerID == "" {
		return protocol.Envelope{}, protocol.Join{}, nil, joinError("join missing peer id")
	}
	return env, join, frame, nil
}

func (r *Relay) roomFor(sessionID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		rm = newRoom(sessionID, r)
		r.rooms[sessionID] = rm
		log.Printf("INFO: Opened room for session %s", sessionID)
	}
	return rm
}

func (r *Relay) removeMember(rm *room, m *member) {
	m.close()
	if rm.remove(m) == 0 {
		r.mu.Lock()
		if current, ok := r.rooms[rm.sessionID]; ok && current == rm {
			delete(r.rooms, rm.sessionID)
		}
		r.mu.Unlock()
		rm.retire()
		log.Printf("INFO: Retired empty room for session %s", rm.sessionID)
	}
}
