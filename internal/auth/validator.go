package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the expected aud claim of relay admission tokens.
const Audience = "rook-relay"

// Validator validates relay admission tokens and returns parsed claims.
type Validator interface {
	Validate(token string) (*Claims, error)
}

// NewValidator returns an HMAC validator over the configured admission
// secret.
func NewValidator(secret string) (Validator, error) {
	if secret == "" {
		return nil, errors.New("admission secret must not be empty")
	}
	return &hmacValidator{secret: []byte(secret)}, nil
}

type hmacValidator struct {
	secret []byte
}

func (v *hmacValidator) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithAudience(Audience))
	if err != nil {
		return nil, fmt.Errorf("jwt validation failed: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid jwt token")
	}
	if claims.PeerID == "" {
		return nil, errors.New("admission token missing peer_id")
	}
	return claims.Copy(), nil
}
