package session

import (
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestLoadConfigFromEnv_NoKeyDisablesVerification(t *testing.T) {
	t.Setenv("CHITCHAT_AUTH_PUBLIC_KEY_HEX", "")
	t.Setenv("CHITCHAT_AUTH_SECRET_KEY_HEX", "")
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("expected verification disabled without a key")
	}
}

func TestLoadConfigFromEnv_InvalidTTL(t *testing.T) {
	for _, v := range []string{"-5m", "0s", "later"} {
		t.Setenv("CHITCHAT_AUTH_ACCESS_TTL", v)
		if _, err := LoadConfigFromEnv(); err != ErrConfig {
			t.Fatalf("ttl %q: expected ErrConfig, got %v", v, err)
		}
	}
}

func TestLoadConfigFromEnv_ClockSkew(t *testing.T) {
	t.Setenv("CHITCHAT_AUTH_CLOCK_SKEW", "soon")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for unparsable skew, got %v", err)
	}

	t.Setenv("CHITCHAT_AUTH_CLOCK_SKEW", "0s")
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("zero skew should be accepted: %v", err)
	}
	if cfg.ClockSkew != 0 {
		t.Fatalf("clock skew = %v", cfg.ClockSkew)
	}
}

func TestLoadConfigFromEnv_PublicKeyOnly(t *testing.T) {
	public := paseto.NewV4AsymmetricSecretKey().Public()
	t.Setenv("CHITCHAT_AUTH_PUBLIC_KEY_HEX", public.ExportHex())
	t.Setenv("CHITCHAT_AUTH_SECRET_KEY_HEX", "")
	t.Setenv("CHITCHAT_AUTH_ISSUER", "chitchat-test")
	t.Setenv("CHITCHAT_AUTH_ACCESS_TTL", "10m")
	t.Setenv("CHITCHAT_AUTH_CLOCK_SKEW", "20s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled() {
		t.Fatalf("expected verification enabled")
	}
	if cfg.Issuer != "chitchat-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
}
