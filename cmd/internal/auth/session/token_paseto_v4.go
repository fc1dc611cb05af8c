package session

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// AccessClaims is what chitchat reads from an access token.
type AccessClaims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// AccessTokenManager verifies access tokens and, when holding a secret key, issues them.
type AccessTokenManager interface {
	Issue(userID, sessionID string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

type pasetoManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	public paseto.V4AsymmetricPublicKey
	secret *paseto.V4AsymmetricSecretKey
}

// NewPasetoManager builds a PASETO v4.public manager from cfg.
// A public key alone is enough to verify; Issue then fails with ErrConfig.
func NewPasetoManager(cfg Config) (AccessTokenManager, error) {
	if !cfg.Enabled() {
		return nil, ErrConfig
	}

	m := &pasetoManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}

	if raw := strings.TrimSpace(cfg.SecretKeyHex); raw != "" {
		secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(raw)
		if err != nil {
			return nil, ErrConfig
		}
		m.secret = &secret
		m.public = secret.Public()
	}

	if raw := strings.TrimSpace(cfg.PublicKeyHex); raw != "" {
		public, err := paseto.NewV4AsymmetricPublicKeyFromHex(raw)
		if err != nil {
			return nil, ErrConfig
		}
		// A secret that does not match the configured public key would mint unverifiable tokens.
		if m.secret != nil && m.public.ExportHex() != public.ExportHex() {
			return nil, ErrConfig
		}
		m.public = public
	}

	return m, nil
}

func (m *pasetoManager) Issue(userID, sessionID string, now time.Time) (string, time.Time, error) {
	if m.secret == nil {
		return "", time.Time{}, ErrConfig
	}
	if userID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetString("uid", userID)
	if sessionID != "" {
		tok.SetString("sid", sessionID)
	}

	return tok.V4Sign(*m.secret, nil), exp, nil
}

func (m *pasetoManager) Verify(token string, now time.Time) (AccessClaims, error) {
	// ValidAt covers iat, nbf and exp against the caller's clock rather than time.Now.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || strings.TrimSpace(uid) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	claims := AccessClaims{UserID: uid}
	claims.SessionID, _ = parsed.GetString("sid")
	claims.Issuer, _ = parsed.GetIssuer()
	claims.ExpiresAt, _ = parsed.GetExpiration()
	claims.IssuedAt, _ = parsed.GetIssuedAt()
	return claims, nil
}
