package session

import (
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestManager(t *testing.T, mutate func(*Config)) AccessTokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	if mutate != nil {
		mutate(&cfg)
	}
	mgr, err := NewPasetoManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoManager: %v", err)
	}
	return mgr
}

func TestPaseto_IssueAndVerify(t *testing.T) {
	mgr := newTestManager(t, nil)

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue("user-a", "sess-a", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := mgr.Verify(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-a" || claims.SessionID != "sess-a" || claims.Issuer != "chitchat" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestPaseto_SessionClaimOptional(t *testing.T) {
	mgr := newTestManager(t, nil)

	now := time.Now().UTC()
	tok, _, err := mgr.Issue("user-b", "", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := mgr.Verify(tok, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-b" || claims.SessionID != "" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestPaseto_ExpiredRejected(t *testing.T) {
	mgr := newTestManager(t, func(c *Config) {
		c.AccessTokenTTL = time.Minute
		c.ClockSkew = 0
	})

	issued := time.Now().UTC().Add(-2 * time.Hour)
	tok, _, err := mgr.Issue("user-c", "sess-c", issued)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr.Verify(tok, time.Now().UTC()); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPaseto_WrongIssuerRejected(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey().ExportHex()
	a := newTestManager(t, func(c *Config) { c.SecretKeyHex = secret; c.Issuer = "elsewhere" })
	b := newTestManager(t, func(c *Config) { c.SecretKeyHex = secret })

	now := time.Now().UTC()
	tok, _, err := a.Issue("user-e", "", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPaseto_ForeignKeyRejected(t *testing.T) {
	a := newTestManager(t, nil)
	b := newTestManager(t, nil)

	now := time.Now().UTC()
	tok, _, err := a.Issue("user-d", "sess-d", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok, now); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPaseto_PublicKeyOnlyVerifiesButCannotIssue(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	issuer := newTestManager(t, func(c *Config) { c.SecretKeyHex = secret.ExportHex() })

	cfg := DefaultConfig()
	cfg.PublicKeyHex = secret.Public().ExportHex()
	verifier, err := NewPasetoManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := issuer.Issue("user-f", "", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(tok, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, _, err := verifier.Issue("user-f", "", now); err != ErrConfig {
		t.Fatalf("expected ErrConfig from a verify-only manager, got %v", err)
	}
}

func TestNewPasetoManager_Config(t *testing.T) {
	if _, err := NewPasetoManager(DefaultConfig()); err != ErrConfig {
		t.Fatalf("no key: expected ErrConfig, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.PublicKeyHex = "not-hex"
	if _, err := NewPasetoManager(cfg); err != ErrConfig {
		t.Fatalf("bad public key: expected ErrConfig, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.PublicKeyHex = paseto.NewV4AsymmetricSecretKey().Public().ExportHex()
	if _, err := NewPasetoManager(cfg); err != ErrConfig {
		t.Fatalf("mismatched keys: expected ErrConfig, got %v", err)
	}
}
