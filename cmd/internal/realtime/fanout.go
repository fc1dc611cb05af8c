package realtime

import (
	"context"
	"log/slog"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// Outcome tags what happened to a single fanout attempt.
// It feeds logs and metrics only; callers never branch on it.
type Outcome uint8

const (
	// OutcomeRecipientOffline means no handle was registered for the recipient.
	OutcomeRecipientOffline Outcome = iota
	// OutcomeDelivered means the message was queued on the recipient's handle.
	OutcomeDelivered
	// OutcomeDropped means the handle was stale or its queue was full.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDropped:
		return "dropped"
	default:
		return "offline"
	}
}

// Fanout pushes persisted messages to the recipient's live connection.
//
// Delivery is fire-and-forget: an offline recipient gets the message from history on
// next load, so there is no retry and no queue.
type Fanout struct {
	log      *slog.Logger
	registry *Registry
	metrics  *Metrics
}

// NewFanout constructs a Fanout over registry.
func NewFanout(log *slog.Logger, registry *Registry, metrics *Metrics) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{log: log, registry: registry, metrics: metrics}
}

// Deliver pushes m to its recipient if registered. It never fails.
func (f *Fanout) Deliver(ctx context.Context, m v1.Message) Outcome {
	out := f.deliver(ctx, m)
	f.metrics.fanout(out)
	return out
}

func (f *Fanout) deliver(ctx context.Context, m v1.Message) Outcome {
	c, ok := f.registry.Lookup(m.RecipientID)
	if !ok {
		f.log.DebugContext(ctx, "fanout.offline", "message_id", m.ID, "recipient_id", m.RecipientID)
		return OutcomeRecipientOffline
	}

	env, err := newEnvelope(v1.TypeMessageNew, m)
	if err != nil {
		f.log.ErrorContext(ctx, "fanout.encode.fail", "message_id", m.ID, "err", err)
		return OutcomeDropped
	}

	if !c.Push(env) {
		f.log.InfoContext(ctx, "fanout.drop", "message_id", m.ID, "recipient_id", m.RecipientID, "session_id", c.SessionID)
		return OutcomeDropped
	}

	f.log.DebugContext(ctx, "fanout.delivered", "message_id", m.ID, "recipient_id", m.RecipientID, "session_id", c.SessionID)
	return OutcomeDelivered
}

// MessagePersisted is the persistence-completion hook. It is the single call site of
// Deliver in the in-process configuration.
func (f *Fanout) MessagePersisted(ctx context.Context, m v1.Message) {
	f.Deliver(ctx, m)
}
