package app

import (
	"fmt"
	"strings"
	"time"

	"chitchat/cmd/internal/env"
)

// Store kinds accepted by CHITCHAT_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// StoreKind selects message persistence. Empty means postgres when DatabaseURL is
	// set and memory otherwise.
	StoreKind   string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	MediaDir string

	// NATSURL enables the persistence-completion relay when set.
	NATSURL string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:  env.String("CHITCHAT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  env.String("CHITCHAT_LOG_LEVEL", "info"),
		LogFormat: env.String("CHITCHAT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: env.Duration("CHITCHAT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       env.Duration("CHITCHAT_HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      env.Duration("CHITCHAT_HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       env.Duration("CHITCHAT_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: env.Int("CHITCHAT_HTTP_MAX_HEADER_BYTES", 1<<20),

		StoreKind:   strings.ToLower(env.String("CHITCHAT_STORE", "")),
		DatabaseURL: env.String("CHITCHAT_DATABASE_URL", ""),
		DBMaxConns:  env.Int32("CHITCHAT_DB_MAX_CONNS", 10),
		DBMinConns:  env.Int32("CHITCHAT_DB_MIN_CONNS", 0),
		SQLitePath:  env.String("CHITCHAT_SQLITE_PATH", "./data/chitchat.db"),

		MediaDir: env.String("CHITCHAT_MEDIA_DIR", "./data/media"),

		NATSURL: env.String("CHITCHAT_NATS_URL", ""),

		ReadinessRequireDB: env.Bool("CHITCHAT_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   env.CSV("CHITCHAT_CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:*"),
		CORSAllowCredentials: env.Bool("CHITCHAT_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    env.Int("CHITCHAT_CORS_MAX_AGE", 600),
	}

	if cfg.StoreKind == "" {
		cfg.StoreKind = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreKind = StorePostgres
		}
	}

	switch cfg.StoreKind {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("config: CHITCHAT_STORE=postgres requires CHITCHAT_DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown CHITCHAT_STORE %q", cfg.StoreKind)
	}

	return cfg, nil
}
