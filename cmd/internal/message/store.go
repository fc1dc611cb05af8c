// Package message persists two-party chat messages and serves the send/history HTTP API.
//
// Persistence is the system's only durable record: realtime fanout is best-effort and
// an offline recipient reads the message from History on next load.
package message

import (
	"context"
	"errors"
	"strings"
	"time"

	"chitchat/cmd/internal/ids"
	v1 "chitchat/shared/contracts/realtime/v1"
)

const (
	// MaxTextChars is the maximum message text length in runes.
	MaxTextChars = 4000

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

var (
	// ErrInvalidInput is returned when a persist or history request is malformed.
	ErrInvalidInput = errors.New("message: invalid input")

	// ErrNilStore is returned when a store method is called on a nil receiver.
	ErrNilStore = errors.New("message: nil store")
)

// PersistInput describes a message to persist. ID and CreatedAt are assigned by the store.
type PersistInput struct {
	SenderID    string
	RecipientID string
	Text        string
	Media       *v1.Media

	// Now overrides the creation timestamp (tests). Zero means time.Now().
	Now time.Time
}

// HistoryQuery pages a conversation. The newest Limit messages are returned oldest first.
type HistoryQuery struct {
	Limit int
}

// Store persists messages and returns the canonical record.
type Store interface {
	Persist(ctx context.Context, in PersistInput) (v1.Message, error)
	// History returns the conversation between a and b ordered by created_at, id.
	History(ctx context.Context, a, b string, q HistoryQuery) ([]v1.Message, error)
}

// Notifier is told about every persisted message exactly once.
type Notifier interface {
	MessagePersisted(ctx context.Context, m v1.Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, m v1.Message)

// MessagePersisted calls f.
func (f NotifierFunc) MessagePersisted(ctx context.Context, m v1.Message) { f(ctx, m) }

// newRecord validates in and builds the record a store will write.
func newRecord(in PersistInput) (v1.Message, error) {
	sender := strings.TrimSpace(in.SenderID)
	recipient := strings.TrimSpace(in.RecipientID)
	if sender == "" || recipient == "" || sender == recipient {
		return v1.Message{}, ErrInvalidInput
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Media == nil {
		return v1.Message{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	// Microsecond precision survives every backend round trip.
	now = now.UTC().Truncate(time.Microsecond)

	id, err := ids.NewULID(now)
	if err != nil {
		return v1.Message{}, err
	}

	return v1.Message{
		ID:          id,
		SenderID:    sender,
		RecipientID: recipient,
		Text:        text,
		Media:       in.Media,
		CreatedAt:   now,
	}, nil
}

func historyLimit(q HistoryQuery) int {
	switch {
	case q.Limit <= 0:
		return defaultHistoryLimit
	case q.Limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return q.Limit
	}
}

func validPair(a, b string) bool {
	return strings.TrimSpace(a) != "" && strings.TrimSpace(b) != ""
}
