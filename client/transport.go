package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20

var (
	// ErrHandshake is returned when the server does not complete the chitchat handshake.
	ErrHandshake = errors.New("client: handshake failed")

	// ErrRejected is returned when the server refuses the upgrade (bad origin or credential).
	ErrRejected = errors.New("client: connection rejected")
)

// ServerError is an error envelope pushed by the server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Dialer opens realtime connections.
type Dialer struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:8080/ws.
	URL string
	// UserID is sent as the userId handshake parameter. Empty connects unidentified.
	UserID string
	// Token, when set, is sent as a bearer credential and takes precedence over UserID server-side.
	Token string
	// Origin is sent as the Origin header when non-empty.
	Origin string

	HTTPClient *http.Client
}

func (d Dialer) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimSpace(d.URL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	if d.UserID != "" {
		q := u.Query()
		q.Set("userId", d.UserID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial connects and waits for the connection_established frame.
func (d Dialer) Dial(ctx context.Context) (*Conn, error) {
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	h := http.Header{}
	if d.Origin != "" {
		h.Set("Origin", d.Origin)
	}
	if d.Token != "" {
		h.Set("Authorization", "Bearer "+d.Token)
	}

	ws, resp, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   h,
		Subprotocols: []string{v1.Subprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	if sp := ws.Subprotocol(); sp != v1.Subprotocol {
		_ = ws.Close(websocket.StatusProtocolError, "subprotocol required")
		return nil, fmt.Errorf("%w: subprotocol %q", ErrHandshake, sp)
	}
	ws.SetReadLimit(maxReadBytes)

	c := &Conn{ws: ws}
	ev, err := c.Next(ctx)
	if err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if ev.Kind != KindConnected {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("%w: first event %s", ErrHandshake, ev.Kind)
	}
	c.SessionID = ev.SessionID
	c.UserID = ev.UserID
	return c, nil
}

// Conn is one live realtime connection.
type Conn struct {
	ws *websocket.Conn

	SessionID string
	UserID    string
}

// Next blocks for the next server event. Frames of unknown type are skipped.
func (c *Conn) Next(ctx context.Context) (Event, error) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return Event{}, err
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Event{}, fmt.Errorf("decode envelope: %w", err)
		}
		if err := env.Validate(); err != nil {
			continue
		}

		ev, err := decodeEvent(env)
		if err != nil {
			return Event{}, err
		}
		return ev, nil
	}
}

// Close closes the connection with a normal closure.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}

func decodeEvent(env v1.Envelope) (Event, error) {
	switch env.Type {
	case v1.TypeConnectionEstablished:
		var p v1.ConnectionEstablishedPayload
		if err := env.Decode(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindConnected, SessionID: p.SessionID, UserID: p.UserID}, nil

	case v1.TypePresenceUpdate:
		var p v1.PresenceUpdatePayload
		if err := env.Decode(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindPresence, Users: p.Users}, nil

	case v1.TypeMessageNew:
		var m v1.Message
		if err := env.Decode(&m); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindMessage, Message: m}, nil

	default:
		var p v1.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: KindServerError, Err: &ServerError{Code: p.Code, Message: p.Message}}, nil
	}
}

// Connector keeps one connection alive and publishes everything it observes on Bus.
//
// Lifecycle events are KindConnected on every successful handshake, KindConnectError on
// every failed attempt and KindDisconnected when a live connection drops.
type Connector struct {
	Dialer Dialer
	Bus    *Bus
	Log    *slog.Logger

	// NewBackOff returns the retry policy for one reconnect cycle. Nil uses an exponential
	// policy that never gives up.
	NewBackOff func() backoff.BackOff
}

// Run blocks until ctx ends or the server permanently rejects the connection.
func (c *Connector) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	for {
		conn, err := c.connect(ctx, log)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = c.Bus.Publish(ctx, Event{Kind: KindConnectError, Err: err})
			return err
		}

		log.Info("client.connected", "session_id", conn.SessionID, "user_id", conn.UserID)
		if err := c.Bus.Publish(ctx, Event{Kind: KindConnected, SessionID: conn.SessionID, UserID: conn.UserID}); err != nil {
			_ = conn.Close()
			return err
		}

		err = c.pump(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Info("client.disconnected", "session_id", conn.SessionID, "err", err)
		if err := c.Bus.Publish(ctx, Event{Kind: KindDisconnected, Err: err}); err != nil {
			return err
		}
	}
}

func (c *Connector) connect(ctx context.Context, log *slog.Logger) (*Conn, error) {
	var conn *Conn
	op := func() error {
		cn, err := c.Dialer.Dial(ctx)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Info("client.connect.fail", "err", err, "retry_in", next)
		_ = c.Bus.Publish(ctx, Event{Kind: KindConnectError, Err: err})
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.backOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Connector) pump(ctx context.Context, conn *Conn) error {
	for {
		ev, err := conn.Next(ctx)
		if err != nil {
			return err
		}
		if err := c.Bus.Publish(ctx, ev); err != nil {
			return err
		}
	}
}

func (c *Connector) backOff() backoff.BackOff {
	if c.NewBackOff != nil {
		return c.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}
