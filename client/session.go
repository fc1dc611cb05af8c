package client

import (
	"context"
	"log/slog"
	"slices"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// Messenger is the HTTP side of the client. *API implements it.
type Messenger interface {
	Send(ctx context.Context, req SendRequest) (v1.Message, error)
	History(ctx context.Context, counterpart string, limit int) ([]v1.Message, error)
}

// View is a point-in-time copy of session state.
type View struct {
	Self        string
	Counterpart string
	Messages    []v1.Message
	Presence    []string
	Unread      map[string]int
	Connected   bool
}

const sessionQueue = 64

// Session is the client state for one user: the active conversation, unread counters and
// the presence set.
//
// Every mutation, whether it comes from the bus or from a caller, is queued as a closure
// and applied by Run on a single goroutine in the order it was queued.
type Session struct {
	self   string
	api    Messenger
	log    *slog.Logger
	store  *ReconciliationStore
	notify *NotificationDispatcher

	presence  []string
	connected bool

	ops         chan func()
	events      <-chan Event
	unsubscribe func()
}

// NewSession subscribes to bus immediately so no event published before Run starts is lost.
func NewSession(self string, api Messenger, bus *Bus, notify *NotificationDispatcher, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if notify == nil {
		notify = NewNotificationDispatcher(log, nil, nil)
	}
	events, cancel := bus.Subscribe(KindConnected, KindDisconnected, KindPresence, KindMessage)

	return &Session{
		self:        self,
		api:         api,
		log:         log.With("self", self),
		store:       NewReconciliationStore(),
		notify:      notify,
		ops:         make(chan func(), sessionQueue),
		events:      events,
		unsubscribe: cancel,
	}
}

// Run applies queued mutations until ctx ends. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	defer s.unsubscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				select {
				case s.ops <- func() { s.apply(ev) }:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-s.ops:
			op()
		}
	}
}

func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetActiveCounterpart opens the conversation with id: the store is cleared and the unread
// counter for id drops to zero.
func (s *Session) SetActiveCounterpart(ctx context.Context, id string) error {
	return s.do(ctx, func() {
		s.store.SetActiveCounterpart(id)
		s.notify.Reset(id)
	})
}

// Send persists req and appends the canonical record to whichever conversation is active
// when the response arrives.
func (s *Session) Send(ctx context.Context, req SendRequest) (v1.Message, error) {
	m, err := s.api.Send(ctx, req)
	if err != nil {
		return v1.Message{}, err
	}
	err = s.do(ctx, func() {
		if s.store.Counterpart() != req.RecipientID {
			s.log.Debug("client.send.switched", "message_id", m.ID, "recipient_id", req.RecipientID, "active", s.store.Counterpart())
		}
		s.store.Append(m)
	})
	return m, err
}

// LoadHistory fetches the active conversation and merges it. Results are discarded when the
// counterpart changed while the fetch was in flight.
func (s *Session) LoadHistory(ctx context.Context, limit int) (int, error) {
	var counterpart string
	if err := s.do(ctx, func() { counterpart = s.store.Counterpart() }); err != nil {
		return 0, err
	}
	if counterpart == "" {
		return 0, nil
	}

	history, err := s.api.History(ctx, counterpart, limit)
	if err != nil {
		return 0, err
	}

	var added int
	err = s.do(ctx, func() {
		if s.store.Counterpart() != counterpart {
			return
		}
		added = s.store.Merge(history)
	})
	return added, err
}

// IngestPush queues a pushed message as if it had arrived on the bus.
func (s *Session) IngestPush(ctx context.Context, m v1.Message) error {
	return s.do(ctx, func() { s.ingestPush(m) })
}

// View returns a copy of the current state.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.do(ctx, func() {
		v = View{
			Self:        s.self,
			Counterpart: s.store.Counterpart(),
			Messages:    s.store.Messages(),
			Presence:    slices.Clone(s.presence),
			Unread:      s.notify.snapshot(),
			Connected:   s.connected,
		}
	})
	return v, err
}

func (s *Session) ingestPush(m v1.Message) {
	if s.store.Belongs(m, s.self) {
		s.store.Append(m)
	}
	s.notify.OnIncoming(m, s.store.Counterpart(), s.self)
}

func (s *Session) apply(ev Event) {
	switch ev.Kind {
	case KindConnected:
		s.connected = true
	case KindDisconnected:
		s.connected = false
		s.presence = nil
	case KindPresence:
		s.presence = slices.Sorted(slices.Values(ev.Users))
	case KindMessage:
		s.ingestPush(ev.Message)
	}
}
