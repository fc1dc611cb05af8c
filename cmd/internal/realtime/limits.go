package realtime

import "time"

const (
	// Max bytes per inbound websocket frame. Clients have nothing to send, so this stays small.
	maxFrameBytes = 4 << 10 // 4 KiB

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Stray inbound frames allowed per window before the connection is closed.
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)
