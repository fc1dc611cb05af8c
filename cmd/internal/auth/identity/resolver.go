// Package identity maps a transport handshake or HTTP request to a stable user identifier.
//
// Two resolvers exist:
//   - QueryResolver trusts the caller-supplied "userId" (legacy clients, local development).
//   - TokenResolver re-binds identity from a verified access token and ignores "userId".
package identity

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"chitchat/cmd/internal/auth/session"
)

var (
	// ErrNoIdentity is returned when the request carries no identity at all.
	ErrNoIdentity = errors.New("identity: none supplied")

	// ErrInvalidCredential is returned when a supplied credential fails verification.
	ErrInvalidCredential = errors.New("identity: invalid credential")
)

const (
	// QueryParam is the handshake parameter carrying the caller-supplied identity.
	QueryParam = "userId"
	// HeaderUserID is the HTTP header equivalent of QueryParam.
	HeaderUserID = "X-User-ID"

	tokenQueryParam = "token"
	tokenCookie     = "token"

	maxIdentityLen = 128
)

// Identity is the resolved caller.
type Identity struct {
	UserID string
	// SessionID is set when the identity came from a verified token.
	SessionID string
	// Verified is true when identity was bound from a credential rather than trusted.
	Verified bool
}

// Resolver resolves the identity behind a request.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// QueryResolver trusts the identity supplied by the caller.
type QueryResolver struct{}

// Resolve reads userId from the query string, falling back to the X-User-ID header.
func (QueryResolver) Resolve(r *http.Request) (Identity, error) {
	if r == nil {
		return Identity{}, ErrNoIdentity
	}
	uid := strings.TrimSpace(r.URL.Query().Get(QueryParam))
	if uid == "" {
		uid = strings.TrimSpace(r.Header.Get(HeaderUserID))
	}
	if uid == "" {
		return Identity{}, ErrNoIdentity
	}
	if len(uid) > maxIdentityLen {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: uid}, nil
}

// TokenResolver binds identity from a PASETO access token.
type TokenResolver struct {
	Tokens session.AccessTokenManager
	Now    func() time.Time
}

// NewTokenResolver constructs a TokenResolver.
func NewTokenResolver(tokens session.AccessTokenManager) *TokenResolver {
	return &TokenResolver{Tokens: tokens}
}

// Resolve verifies the bearer token from the Authorization header, the token query
// parameter, or the token cookie, in that order.
func (t *TokenResolver) Resolve(r *http.Request) (Identity, error) {
	if t == nil || t.Tokens == nil {
		return Identity{}, errors.New("identity: nil token resolver")
	}
	raw := bearerToken(r)
	if raw == "" {
		return Identity{}, ErrNoIdentity
	}

	now := time.Now().UTC()
	if t.Now != nil {
		now = t.Now()
	}

	claims, err := t.Tokens.Verify(raw, now)
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}
	return Identity{UserID: claims.UserID, SessionID: claims.SessionID, Verified: true}, nil
}

func bearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		const prefix = "bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
	}
	if q := strings.TrimSpace(r.URL.Query().Get(tokenQueryParam)); q != "" {
		return q
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
