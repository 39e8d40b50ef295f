// Package session manages collaboration sessions: creation by the
// hosting peer and reconstruction by peers joining through an invite
// link. Sessions live in memory for the owning process only; there is
// no shared registry between peers.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rook-studio/rook-sync/internal/permission"
)

const secretKeyLength = 32

// ErrInvalidInput reports a session operation with unusable arguments.
var ErrInvalidInput = errors.New("invalid session input")

// ErrNotFound reports a lookup for a session this process does not hold.
var ErrNotFound = errors.New("session not found")

// Session is one collaborative-editing context bound to a document.
// SecretKey is only ever shared through the signatures it produces.
type Session struct {
	ID        string
	Name      string
	SecretKey []byte
	HostID    string
	CreatedAt time.Time

	// DocumentRef is an opaque handle into the document store; this
	// layer never dereferences it.
	DocumentRef string
}

// Registry holds the sessions known to this process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session hosted by the given peer, with a fresh
// id and secret key. The caller must safeguard the returned key: it is
// the sole proof of authority over the session's invite links.
func (r *Registry) Create(name, hostID string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	key := make([]byte, secretKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	s := &Session{
		ID:        uuid.New().String(),
		Name:      name,
		SecretKey: key,
		HostID:    hostID,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// JoinFromLink verifies an invite link against the shared secret key and
// registers the reconstructed session locally. It returns the session
// and the role the link grants.
func (r *Registry) JoinFromLink(link string, secretKey []byte) (*Session, permission.Role, error) {
	claims, err := permission.DecodeLink(link, secretKey)
	if err != nil {
		return nil, 0, err
	}

	s := &Session{
		ID:        claims.SessionID,
		SecretKey: append([]byte(nil), secretKey...),
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	if existing, ok := r.sessions[s.ID]; ok {
		// Rejoining a known session keeps the original record.
		s = existing
	} else {
		r.sessions[s.ID] = s
	}
	r.mu.Unlock()
	return s, claims.Role, nil
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove tears down a session. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
