package permission

import "sync"

// State tracks the local peer's granted role for the active session.
// It is mutated only by a successful session create or join; inbound
// messages can never elevate it.
type State struct {
	mu      sync.RWMutex
	role    Role
	granted bool
}

// NewState returns a State with no grant. Before any join both
// capability checks answer false.
func NewState() *State {
	return &State{}
}

// Grant records the role obtained from a session create or a verified
// invite link.
func (s *State) Grant(role Role) {
	s.mu.Lock()
	s.role = role
	s.granted = true
	s.mu.Unlock()
}

// Reset clears the grant when the active session is torn down.
func (s *State) Reset() {
	s.mu.Lock()
	s.role = RoleViewer
	s.granted = false
	s.mu.Unlock()
}

// Role returns the granted role and whether any grant exists.
func (s *State) Role() (Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role, s.granted
}

// CanEdit reports whether the local peer may send layer mutations.
func (s *State) CanEdit() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granted && s.role.CanEdit()
}

// CanComment reports whether the local peer may add comments.
func (s *State) CanComment() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granted && s.role.CanComment()
}
