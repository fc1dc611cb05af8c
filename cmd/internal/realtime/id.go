package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"chitchat/cmd/internal/ids"
	v1 "chitchat/shared/contracts/realtime/v1"
)

// NewSessionID returns a ULID used as websocket session id.
// Falls back to random hex when the ULID source fails.
func NewSessionID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return randomHex(13)
	}
	return id
}

// newEnvelope stamps a server-originated envelope with a fresh id and the current time.
func newEnvelope(typ string, payload any) (v1.Envelope, error) {
	return v1.NewEnvelope(typ, randomHex(10), time.Now().UTC(), payload)
}

// randomHex returns 2*n hex chars from crypto/rand, or "" if the source fails.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
