// Package client is the Go client for chitchat: a reconnecting realtime transport, a typed
// event bus, the HTTP send/history API, and the per-user session that reconciles pushed and
// send-response copies of the same message.
package client

import (
	"context"
	"sync"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// Kind identifies an Event.
type Kind uint8

const (
	KindConnected Kind = iota + 1
	KindConnectError
	KindDisconnected
	KindPresence
	KindMessage
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindConnectError:
		return "connect_error"
	case KindDisconnected:
		return "disconnected"
	case KindPresence:
		return "presence"
	case KindMessage:
		return "message"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Event is one item on the Bus. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind

	// SessionID and UserID are set on KindConnected.
	SessionID string
	UserID    string

	// Users is the full presence set on KindPresence.
	Users []string

	// Message is set on KindMessage.
	Message v1.Message

	// Err is set on KindConnectError, KindDisconnected and KindServerError.
	Err error
}

const subscriberBuffer = 16

type subscriber struct {
	kinds map[Kind]struct{}
	ch    chan Event
	done  chan struct{}
}

func (s *subscriber) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus is a typed publish/subscribe hub for client events.
//
// Publish hands an event to every matching subscriber in turn and waits for each to accept
// it, so a subscriber observes events in publish order.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers for the given kinds, or for every kind when none are given.
// The returned cancel func is idempotent. The channel is never closed; stop reading once
// cancel has been called.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	s := &subscriber{
		kinds: make(map[Kind]struct{}, len(kinds)),
		ch:    make(chan Event, subscriberBuffer),
		done:  make(chan struct{}),
	}
	for _, k := range kinds {
		s.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.done)
		})
	}
	return s.ch, cancel
}

// Publish delivers ev to every subscriber that wants it. It blocks until each has accepted
// the event, has been cancelled, or ctx ends.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		if s.wants(ev.Kind) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
