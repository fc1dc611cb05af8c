package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chitchat/cmd/internal/auth/identity"
	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// connState is the lifecycle of one gateway connection.
type connState uint8

const (
	stateConnecting connState = iota
	stateIdentified
	stateLive
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateIdentified:
		return "identified"
	case stateLive:
		return "live"
	default:
		return "closed"
	}
}

// WSGateway is the WebSocket entrypoint for chitchat realtime.
//
// It enforces origin policy, subprotocol selection, heartbeats and rate limits on
// stray client frames. Identified connections are registered for presence and
// fanout; unidentified ones only observe presence.
type WSGateway struct {
	log      *slog.Logger
	cfg      GatewayConfig
	registry *Registry
	resolver identity.Resolver

	originPatterns []string
}

// NewWSGateway constructs a gateway. A nil resolver trusts the userId query parameter.
func NewWSGateway(log *slog.Logger, cfg GatewayConfig, registry *Registry, resolver identity.Resolver) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(log, nil)
	}
	if resolver == nil {
		resolver = identity.QueryResolver{}
	}
	cfg = cfg.normalized()

	return &WSGateway{
		log:            log,
		cfg:            cfg,
		registry:       registry,
		resolver:       resolver,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs it until close.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := enforceOrigin(r, g.cfg.OriginRequired, g.cfg.AllowedOrigins); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := g.resolver.Resolve(r)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrNoIdentity):
		// Unidentified connections are accepted in degraded mode.
	default:
		g.log.Info("ws.reject.identity", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(NewSessionID(time.Now()), id.UserID, g.cfg.SendQueueSize)
	log := g.log.With("session_id", client.SessionID, "user_id", client.UserID)

	state := stateConnecting
	transition := func(next connState) {
		log.Info("ws.state", "from", state.String(), "to", next.String())
		state = next
	}

	if client.UserID != "" {
		transition(stateIdentified)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The handshake ack is queued before the connection becomes visible to the
	// registry, so it is always the first frame the peer reads.
	ack, err := newEnvelope(v1.TypeConnectionEstablished, v1.ConnectionEstablishedPayload{
		SessionID: client.SessionID,
		UserID:    client.UserID,
	})
	if err != nil || !client.Push(ack) {
		log.Error("ws.ack.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "handshake failed")
		return
	}

	if client.UserID != "" {
		g.registry.Register(client.UserID, client)
	} else {
		g.registry.Attach(client)
	}
	transition(stateLive)

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Registry removal happens before client.Close so no pusher sees a half-closed handle.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if client.UserID != "" {
				g.registry.Deregister(client.UserID, client)
			} else {
				g.registry.Detach(client)
			}

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			transition(stateClosed)
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Clients never send application frames. The read loop exists to observe close
	// and to answer stray frames; there is no idle deadline because a silent peer is
	// the normal case and liveness comes from the heartbeat.
	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		typ, err := readFrame(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrBadJSON:
				if !g.strayFrame(client, rl, log, "bad_json", "invalid JSON") {
					shutdown(websocket.StatusPolicyViolation, "rate limited")
					break readLoop
				}
				continue readLoop
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !g.strayFrame(client, rl, log, "unsupported", fmt.Sprintf("unsupported type: %s", typ)) {
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// strayFrame answers an inbound frame with an error envelope.
// It returns false once the connection has exceeded its rate limit.
func (g *WSGateway) strayFrame(client *Client, rl *RateLimiter, log *slog.Logger, code, msg string) bool {
	if !rl.Allow(time.Now()) {
		log.Info("ws.rate_limited")
		trySendError(client, "rate_limited", "too many events")
		return false
	}
	trySendError(client, code, msg)
	return true
}

func trySendError(client *Client, code, msg string) {
	env, err := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = client.Push(env)
}

// ---- frame IO ----

var errBadJSON = errors.New("invalid JSON frame")

// readFrame reads one inbound frame and returns the envelope type it claims.
func readFrame(ctx context.Context, conn *websocket.Conn) (string, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return "", err
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return probe.Type, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, errBadJSON) {
		return readErrBadJSON
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
