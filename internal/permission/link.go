package permission

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Invite links have the shape
//
//	rook://sync/<sessionId>?role=<role>&exp=<epochSeconds>&sig=<base64url>
//
// where sig is HMAC-SHA256 over "sessionId|role|exp" keyed by the
// session secret. The byte layout is part of the wire contract: any
// client that derives the same canonical string from the same key
// interoperates.

const linkScheme = "rook"
const linkHost = "sync"

// LinkPrefix is the leading portion of every invite link.
const LinkPrefix = linkScheme + "://" + linkHost + "/"

var (
	// ErrInvalidInput reports a link operation with unusable arguments.
	ErrInvalidInput = errors.New("invalid link input")
	// ErrMalformedLink reports a link whose scheme or shape is wrong.
	ErrMalformedLink = errors.New("malformed permission link")
	// ErrSignatureMismatch reports a link whose signature does not
	// verify against the session secret.
	ErrSignatureMismatch = errors.New("permission link signature mismatch")
	// ErrLinkExpired reports a correctly signed link past its expiry.
	ErrLinkExpired = errors.New("permission link expired")
)

// LinkClaims is the verified content of an invite link.
type LinkClaims struct {
	SessionID string
	Role      Role
	ExpiresAt time.Time
}

// GenerateLink produces a signed, role-scoped invite link for a session.
// ttlHours must be positive; links cannot be issued without an expiry.
func GenerateLink(sessionID string, secretKey []byte, role Role, ttlHours int) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id must not be empty", ErrInvalidInput)
	}
	if len(secretKey) == 0 {
		return "", fmt.Errorf("%w: secret key must not be empty", ErrInvalidInput)
	}
	if ttlHours <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive, got %d", ErrInvalidInput, ttlHours)
	}

	exp := strconv.FormatInt(time.Now().Add(time.Duration(ttlHours)*time.Hour).Unix(), 10)
	sig := sign(secretKey, sessionID, role.String(), exp)

	q := url.Values{}
	q.Set("role", role.String())
	q.Set("exp", exp)
	q.Set("sig", sig)
	return LinkPrefix + url.PathEscape(sessionID) + "?" + q.Encode(), nil
}

// DecodeLink validates a link against the session secret and returns its
// claims. The signature is verified over the raw role and exp fields
// before either is interpreted, so a tampered field surfaces as
// ErrSignatureMismatch rather than as an altered grant.
func DecodeLink(link string, secretKey []byte) (LinkClaims, error) {
	u, err := url.Parse(link)
	if err != nil || u.Scheme != linkScheme || u.Host != linkHost {
		return LinkClaims{}, ErrMalformedLink
	}
	sessionID := strings.TrimPrefix(u.Path, "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		return LinkClaims{}, ErrMalformedLink
	}
	sessionID, err = url.PathUnescape(sessionID)
	if err != nil {
		return LinkClaims{}, ErrMalformedLink
	}

	q := u.Query()
	rawRole := q.Get("role")
	rawExp := q.Get("exp")
	rawSig := q.Get("sig")
	if rawRole == "" || rawExp == "" || rawSig == "" {
		return LinkClaims{}, ErrMalformedLink
	}

	expected := sign(secretKey, sessionID, rawRole, rawExp)
	if !hmac.Equal([]byte(rawSig), []byte(expected)) {
		return LinkClaims{}, ErrSignatureMismatch
	}

	role, err := ParseRole(rawRole)
	if err != nil {
		// Signed by the right key but unintelligible: treat as malformed.
		return LinkClaims{}, ErrMalformedLink
	}
	expUnix, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil {
		return LinkClaims{}, ErrMalformedLink
	}
	expiresAt := time.Unix(expUnix, 0)
	if time.Now().After(expiresAt) {
		return LinkClaims{}, ErrLinkExpired
	}

	return LinkClaims{SessionID: sessionID, Role: role, ExpiresAt: expiresAt}, nil
}

func sign(secretKey []byte, sessionID, role, exp string) string {
	mac := hmac.New(sha256.New, secretKey)
	_, _ = mac.Write([]byte(sessionID + "|" + role + "|" + exp))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
