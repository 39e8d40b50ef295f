// Package transport manages the single persistent websocket connection
// a client holds to its sync relay.
package transport

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle phase of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Settings are the tunables of the connection.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	ReconnectDelay   time.Duration
	MaxMessageSize   int64
	// SendBuffer is the outbound channel depth; frames beyond it are
	// dropped rather than blocking the caller.
	SendBuffer int
	// PendingBuffer caps the durable frames held while the connection
	// is not open, flushed on the next successful dial.
	PendingBuffer int
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		ReconnectDelay:   5 * time.Second,
		MaxMessageSize:   64 * 1024,
		SendBuffer:       256,
		PendingBuffer:    64,
	}
}

func (s *Settings) pingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// Callbacks are the connection's event hooks. OnFrame receives every
// inbound frame; the remaining hooks report lifecycle events. Any hook
// may be nil.
type Callbacks struct {
	OnFrame func(frame []byte)
	OnOpen  func()
	OnClose func()
	OnError func(err error)
}

// ErrClosed reports an operation on a connection after Close.
var ErrClosed = errors.New("transport connection closed")

// Conn is a persistent client connection with automatic reconnect.
// There is exactly one per SyncContext.
type Conn struct {
	settings  *Settings
	callbacks Callbacks

	mu       sync.Mutex
	state    State
	endpoint string
	ws       *websocket.Conn
	pending  [][]byte

	outgoing  chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

// New creates a disconnected Conn.
func New(callbacks Callbacks, settings *Settings) *Conn {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Conn{
		settings:  settings,
		callbacks: callbacks,
		outgoing:  make(chan []byte, settings.SendBuffer),
		quit:      make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts dialing the relay endpoint and keeps the connection
// alive until Close. It returns immediately; readiness is signalled via
// OnOpen. Calling Connect while already connecting or open is a no-op,
// so there is never more than one underlying socket.
func (c *Conn) Connect(ctx context.Context, endpoint string) error {
	select {
	case <-c.quit:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.endpoint = endpoint
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Send queues a frame for transmission. When the connection is not
// open, durable frames are held for the next dial (bounded) and
// ephemeral frames are dropped; either way the call never fails, so UI
// paths can fire without checking connectivity first.
func (c *Conn) Send(frame []byte, durable bool) {
	select {
	case <-c.quit:
		return
	default:
	}

	c.mu.Lock()
	if c.state != StateOpen {
		if durable && c.state != StateClosing {
			if len(c.pending) < c.settings.PendingBuffer {
				c.pending = append(c.pending, frame)
			} else {
				log.Printf("WARN: Pending queue full, dropping durable frame")
			}
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case <-c.quit:
	case c.outgoing <- frame:
	default:
		log.Printf("WARN: Send buffer full, dropping frame")
	}
}

// Close tears the connection down, cancels any pending reconnect, and
// fires OnClose exactly once. Safe to call repeatedly.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosing
		close(c.quit)
		if c.ws != nil {
			_ = c.ws.Close()
		}
		c.state = StateDisconnected
		c.pending = nil
		c.mu.Unlock()

		if c.callbacks.OnClose != nil {
			c.callbacks.OnClose()
		}
	})
}

func (c *Conn) run(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: c.settings.HandshakeTimeout}

	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		ws, _, err := dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			log.Printf("WARN: Failed to connect to %s: %v. Retrying in %s...", c.endpoint, err, c.settings.ReconnectDelay)
			c.reportError(err)
			if !c.sleep(ctx, c.settings.ReconnectDelay) {
				return
			}
			continue
		}

		c.mu.Lock()
		select {
		case <-c.quit:
			c.mu.Unlock()
			_ = ws.Close()
			return
		default:
		}
		c.ws = ws
		c.state = StateOpen
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, frame := range pending {
			select {
			case c.outgoing <- frame:
			default:
				log.Printf("WARN: Send buffer full while flushing pending frames")
			}
		}

		log.Printf("INFO: Connected to sync relay at %s", c.endpoint)
		if c.callbacks.OnOpen != nil {
			c.callbacks.OnOpen()
		}

		c.pumpUntilClosed(ws)

		c.mu.Lock()
		c.ws = nil
		closing := false
		select {
		case <-c.quit:
			closing = true
		default:
			c.state = StateConnecting
		}
		c.mu.Unlock()
		if closing {
			return
		}

		log.Printf("WARN: Connection to %s lost. Reconnecting in %s...", c.endpoint, c.settings.ReconnectDelay)
		c.reportError(errors.New("connection lost"))
		if !c.sleep(ctx, c.settings.ReconnectDelay) {
			return
		}
	}
}

// pumpUntilClosed runs the read and write pumps for one dialed socket
// and returns when either side tears it down.
func (c *Conn) pumpUntilClosed(ws *websocket.Conn) {
	readDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(readDone)
		c.readPump(ws)
	}()
	go func() {
		defer wg.Done()
		c.writePump(ws, readDone)
	}()

	wg.Wait()
}

func (c *Conn) readPump(ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(c.settings.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ERROR: Unexpected close from relay: %v", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.settings.PongWait))
		if c.callbacks.OnFrame != nil {
			c.callbacks.OnFrame(frame)
		}
	}
}

func (c *Conn) writePump(ws *websocket.Conn, readDone <-chan struct{}) {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-c.quit:
			_ = ws.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-readDone:
			return
		case frame := <-c.outgoing:
			_ = ws.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("ERROR: Failed to write frame: %v", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) reportError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}

// sleep waits for the reconnect delay, returning false if the
// connection was closed or the context cancelled in the meantime.
func (c *Conn) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.quit:
		return false
	case <-ctx.Done():
		c.Close()
		return false
	case <-timer.C:
		return true
	}
}
