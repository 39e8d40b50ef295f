package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload a client presents when the relay runs with
// an admission secret. SessionIDs scopes the token to specific
// sessions; an empty list admits the peer to any session it can join
// by capability link.
type Claims struct {
	PeerID     string   `json:"peer_id"`
	SessionIDs []string `json:"session_ids,omitempty"`
	jwt.RegisteredClaims
}

// AllowsSession reports whether the token admits the peer to a session.
func (c *Claims) AllowsSession(sessionID string) bool {
	if len(c.SessionIDs) == 0 {
		return true
	}
	for _, id := range c.SessionIDs {
		if id == sessionID {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of claims to avoid sharing state across goroutines.
func (c *Claims) Copy() *Claims {
	if c == nil {
		return nil
	}
	copyClaims := *c
	if len(c.SessionIDs) > 0 {
		copyClaims.SessionIDs = append([]string{}, c.SessionIDs...)
	}
	return &copyClaims
}
