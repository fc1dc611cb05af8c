package realtime

import (
	"iter"
	"log/slog"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// PresenceBroadcaster pushes the full presence set to connections.
// There are no deltas: every update replaces the receiver's set.
type PresenceBroadcaster struct {
	log     *slog.Logger
	metrics *Metrics
}

// NewPresenceBroadcaster constructs a PresenceBroadcaster.
func NewPresenceBroadcaster(log *slog.Logger, metrics *Metrics) *PresenceBroadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceBroadcaster{log: log, metrics: metrics}
}

// BroadcastPresence pushes identities to every connection in targets.
// A full or closed queue drops the update for that connection only.
// It returns the number of connections that accepted the update.
func (b *PresenceBroadcaster) BroadcastPresence(identities []string, targets iter.Seq[*Client]) int {
	env, ok := b.envelope(identities)
	if !ok {
		return 0
	}

	delivered, dropped := 0, 0
	for c := range targets {
		if c.Push(env) {
			delivered++
			continue
		}
		dropped++
		b.log.Debug("presence.drop", "session_id", c.SessionID, "user_id", c.UserID)
	}

	b.metrics.presenceBroadcast(dropped)
	b.log.Debug("presence.broadcast", "online", len(identities), "delivered", delivered, "dropped", dropped)
	return delivered
}

// SendPresence pushes identities to a single connection.
func (b *PresenceBroadcaster) SendPresence(identities []string, c *Client) bool {
	env, ok := b.envelope(identities)
	if !ok {
		return false
	}
	return c.Push(env)
}

func (b *PresenceBroadcaster) envelope(identities []string) (v1.Envelope, bool) {
	if identities == nil {
		identities = []string{}
	}
	env, err := newEnvelope(v1.TypePresenceUpdate, v1.PresenceUpdatePayload{Users: identities})
	if err != nil {
		b.log.Error("presence.encode.fail", "err", err)
		return v1.Envelope{}, false
	}
	return env, true
}
