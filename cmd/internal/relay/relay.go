// Package relay bridges persistence-completion events over NATS so the process that
// persists a message and the process holding the recipient's connection can differ.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chitchat/cmd/internal/message"
	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/nats-io/nats.go"
)

// Subject carries one JSON-encoded v1.Message per persisted message.
const Subject = "chitchat.message.persisted"

// ErrNoURL is returned by Connect when no server URL is configured.
var ErrNoURL = errors.New("relay: empty NATS url")

// Connect dials NATS with reconnects enabled and connection events logged.
func Connect(log *slog.Logger, url string) (*nats.Conn, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrNoURL
	}
	if log == nil {
		log = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("chitchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("relay.disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("relay.reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay connect: %w", err)
	}
	return nc, nil
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher is a message.Notifier that forwards persisted messages to NATS.
type Publisher struct {
	log  *slog.Logger
	conn publisher
}

// NewPublisher constructs a Publisher over conn (usually a *nats.Conn).
func NewPublisher(log *slog.Logger, conn publisher) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{log: log, conn: conn}
}

// MessagePersisted publishes m. Failures are logged; the message is already durable.
func (p *Publisher) MessagePersisted(ctx context.Context, m v1.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		p.log.ErrorContext(ctx, "relay.encode.fail", "message_id", m.ID, "err", err)
		return
	}
	if err := p.conn.Publish(Subject, data); err != nil {
		p.log.WarnContext(ctx, "relay.publish.fail", "message_id", m.ID, "err", err)
		return
	}
	p.log.DebugContext(ctx, "relay.published", "message_id", m.ID)
}

// Subscriber consumes Subject and hands each message to sink.
type Subscriber struct {
	log  *slog.Logger
	sink message.Notifier
}

// NewSubscriber constructs a Subscriber. sink is normally the realtime fanout.
func NewSubscriber(log *slog.Logger, sink message.Notifier) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{log: log, sink: sink}
}

// Start subscribes on nc. The subscription is drained when ctx ends.
func (s *Subscriber) Start(ctx context.Context, nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(Subject, s.handle)
	if err != nil {
		return nil, fmt.Errorf("relay subscribe: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	var m v1.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		s.log.Warn("relay.decode.fail", "err", err)
		return
	}
	if m.ID == "" || m.RecipientID == "" {
		s.log.Warn("relay.decode.incomplete", "message_id", m.ID)
		return
	}
	s.sink.MessagePersisted(context.Background(), m)
}
