package client

import (
	"slices"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// ReconciliationStore holds the messages of the active conversation in arrival order.
//
// A message id is stored at most once no matter how many paths deliver it (push, send
// response, history). It is not safe for concurrent use; Session owns it.
type ReconciliationStore struct {
	counterpart string
	msgs        []v1.Message
	seen        map[string]struct{}
}

func NewReconciliationStore() *ReconciliationStore {
	return &ReconciliationStore{seen: make(map[string]struct{})}
}

// SetActiveCounterpart switches the conversation and clears it, even when id is unchanged.
func (s *ReconciliationStore) SetActiveCounterpart(id string) {
	s.counterpart = id
	s.msgs = nil
	clear(s.seen)
}

// Counterpart returns the active counterpart identity.
func (s *ReconciliationStore) Counterpart() string { return s.counterpart }

// Append inserts m unless a message with the same id is already present.
func (s *ReconciliationStore) Append(m v1.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := s.seen[m.ID]; ok {
		return false
	}
	s.seen[m.ID] = struct{}{}
	s.msgs = append(s.msgs, m)
	return true
}

// Merge appends each message in order and reports how many were new.
func (s *ReconciliationStore) Merge(history []v1.Message) int {
	n := 0
	for _, m := range history {
		if s.Append(m) {
			n++
		}
	}
	return n
}

// Belongs reports whether m is between self and the active counterpart.
func (s *ReconciliationStore) Belongs(m v1.Message, self string) bool {
	if s.counterpart == "" {
		return false
	}
	return (m.SenderID == s.counterpart && m.RecipientID == self) ||
		(m.SenderID == self && m.RecipientID == s.counterpart)
}

func (s *ReconciliationStore) Len() int { return len(s.msgs) }

// Messages returns a copy of the conversation.
func (s *ReconciliationStore) Messages() []v1.Message {
	return slices.Clone(s.msgs)
}
