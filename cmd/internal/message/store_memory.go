package message

import (
	"context"
	"slices"
	"sync"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// InMemoryStore is a Store for local development and tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	msgs []v1.Message
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Persist appends a new message.
func (s *InMemoryStore) Persist(ctx context.Context, in PersistInput) (v1.Message, error) {
	if s == nil {
		return v1.Message{}, ErrNilStore
	}
	if err := ctx.Err(); err != nil {
		return v1.Message{}, err
	}

	// Minting and appending share one critical section so slice order stays id order.
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := newRecord(in)
	if err != nil {
		return v1.Message{}, err
	}
	s.msgs = append(s.msgs, m)
	return m, nil
}

// History returns the newest messages exchanged between a and b, oldest first.
func (s *InMemoryStore) History(ctx context.Context, a, b string, q HistoryQuery) ([]v1.Message, error) {
	if s == nil {
		return nil, ErrNilStore
	}
	if !validPair(a, b) {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := historyLimit(q)

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Persist assigns monotonic ULIDs, so append order is (created_at, id) order.
	out := make([]v1.Message, 0, limit)
	for i := len(s.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.msgs[i]
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	slices.Reverse(out)
	return out, nil
}
