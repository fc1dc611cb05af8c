package session

import (
	"os"
	"strings"
	"time"

	"chitchat/cmd/internal/env"
)

// Config controls access-token verification.
type Config struct {
	// Issuer is the expected "iss" claim.
	Issuer string

	// AccessTokenTTL is the lifetime of tokens minted by Issue.
	AccessTokenTTL time.Duration

	// ClockSkew is how far "nbf" and "iat" may lie in our future.
	ClockSkew time.Duration

	// PublicKeyHex is the authentication system's Ed25519 public key.
	PublicKeyHex string

	// SecretKeyHex is only needed to mint tokens locally. When set without PublicKeyHex,
	// the public half is derived from it.
	SecretKeyHex string
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Issuer:         "chitchat",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      30 * time.Second,
	}
}

// Enabled reports whether any key is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.PublicKeyHex) != "" || strings.TrimSpace(c.SecretKeyHex) != ""
}

// LoadConfigFromEnv reads:
//   - CHITCHAT_AUTH_PUBLIC_KEY_HEX
//   - CHITCHAT_AUTH_SECRET_KEY_HEX
//   - CHITCHAT_AUTH_ISSUER
//   - CHITCHAT_AUTH_ACCESS_TTL
//   - CHITCHAT_AUTH_CLOCK_SKEW
//
// With neither key set, token verification is disabled. A malformed duration is
// ErrConfig rather than a silent default.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.Issuer = env.String("CHITCHAT_AUTH_ISSUER", cfg.Issuer)
	cfg.PublicKeyHex = env.String("CHITCHAT_AUTH_PUBLIC_KEY_HEX", "")
	cfg.SecretKeyHex = env.String("CHITCHAT_AUTH_SECRET_KEY_HEX", "")

	var err error
	if cfg.AccessTokenTTL, err = strictDuration("CHITCHAT_AUTH_ACCESS_TTL", cfg.AccessTokenTTL, false); err != nil {
		return Config{}, err
	}
	if cfg.ClockSkew, err = strictDuration("CHITCHAT_AUTH_CLOCK_SKEW", cfg.ClockSkew, true); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func strictDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, ErrConfig
	}
	return d, nil
}
