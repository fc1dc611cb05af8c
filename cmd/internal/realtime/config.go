package realtime

import (
	"time"

	"chitchat/cmd/internal/env"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// GatewayConfig holds websocket gateway knobs.
type GatewayConfig struct {
	// DevInsecure disables origin verification in websocket.Accept. Local development only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout  time.Duration
	SendQueueSize int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig returns secure-by-default settings.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   env.CSV("", wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// GatewayConfigFromEnv reads CHITCHAT_WS_* variables over the defaults.
func GatewayConfigFromEnv() GatewayConfig {
	d := DefaultGatewayConfig()
	cfg := GatewayConfig{
		DevInsecure:      env.Bool("CHITCHAT_WS_DEV_INSECURE", false),
		OriginRequired:   env.Bool("CHITCHAT_WS_ORIGIN_REQUIRED", d.OriginRequired),
		AllowedOrigins:   env.CSV("CHITCHAT_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		WriteTimeout:     env.Duration("CHITCHAT_WS_WRITE_TIMEOUT", d.WriteTimeout),
		SendQueueSize:    env.Int("CHITCHAT_WS_SEND_QUEUE", d.SendQueueSize),
		HeartbeatEvery:   env.Duration("CHITCHAT_WS_HEARTBEAT_INTERVAL", d.HeartbeatEvery),
		HeartbeatTimeout: env.Duration("CHITCHAT_WS_HEARTBEAT_TIMEOUT", d.HeartbeatTimeout),
		RateEvents:       env.Int("CHITCHAT_WS_RATE_EVENTS", d.RateEvents),
		RateWindow:       env.Duration("CHITCHAT_WS_RATE_WINDOW", d.RateWindow),
	}
	return cfg.normalized()
}

func (c GatewayConfig) normalized() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}
