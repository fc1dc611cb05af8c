package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"chitchat/client"
	"chitchat/cmd/internal/app"
	"chitchat/cmd/internal/env"
	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/spf13/cobra"
)

type smokeOptions struct {
	baseURL string
	origin  string
	from    string
	to      string
	tokens  []string
	text    string
	timeout time.Duration
	verbose bool
}

var smokeOpts smokeOptions

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Check presence, send and fanout against a running server.",
	Long: `Connects two users, waits until each sees both online, sends one message and
asserts the recipient receives it over the realtime connection and through history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSmoke(cmd.Context(), cmd.OutOrStdout(), smokeOpts)
	},
}

func init() {
	f := smokeCmd.Flags()
	f.StringVar(&smokeOpts.baseURL, "url", app.RuntimeBaseURL(env.String("CHITCHAT_HTTP_ADDR", "0.0.0.0:8080")), "server base URL (http/https)")
	f.StringVar(&smokeOpts.origin, "origin", "http://localhost", "Origin header for the websocket handshake")
	f.StringVar(&smokeOpts.from, "from", "smoke-a", "sender identity")
	f.StringVar(&smokeOpts.to, "to", "smoke-b", "recipient identity")
	f.StringSliceVar(&smokeOpts.tokens, "tokens", nil, "access tokens for --from and --to, in that order (token-mode servers)")
	f.StringVar(&smokeOpts.text, "text", "hello chitchat 👋", "message text")
	f.DurationVar(&smokeOpts.timeout, "timeout", 7*time.Second, "per-step timeout")
	f.BoolVarP(&smokeOpts.verbose, "verbose", "v", false, "verbose output")
}

type smokePeer struct {
	name    string
	session *client.Session
	api     *client.API
}

func runSmoke(parent context.Context, out io.Writer, o smokeOptions) error {
	if err := validateBaseURL(o.baseURL); err != nil {
		return fmt.Errorf("invalid --url: %w", err)
	}
	if err := validateOrigin(o.origin); err != nil {
		return fmt.Errorf("invalid --origin: %w", err)
	}
	if o.from == "" || o.to == "" || o.from == o.to {
		return errors.New("--from and --to must be distinct non-empty identities")
	}

	logOut := io.Discard
	if o.verbose {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, nil))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if len(o.tokens) != 0 && len(o.tokens) != 2 {
		return errors.New("--tokens takes exactly two values")
	}
	var fromToken, toToken string
	if len(o.tokens) == 2 {
		fromToken, toToken = o.tokens[0], o.tokens[1]
	}

	a := startPeer(ctx, log, o, o.from, fromToken)
	b := startPeer(ctx, log, o, o.to, toToken)

	for _, p := range []smokePeer{a, b} {
		if err := waitFor(ctx, o.timeout, p, func(v client.View) bool {
			return slices.Contains(v.Presence, o.from) && slices.Contains(v.Presence, o.to)
		}); err != nil {
			return fmt.Errorf("%s: presence: %w", p.name, err)
		}
	}
	if o.verbose {
		fmt.Fprintf(out, "presence: %s and %s online\n", o.from, o.to)
	}

	if err := a.session.SetActiveCounterpart(ctx, o.to); err != nil {
		return err
	}
	if err := b.session.SetActiveCounterpart(ctx, o.from); err != nil {
		return err
	}

	sendCtx, sendCancel := context.WithTimeout(ctx, o.timeout)
	m, err := a.session.Send(sendCtx, client.SendRequest{RecipientID: o.to, Text: o.text})
	sendCancel()
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if err := waitFor(ctx, o.timeout, b, func(v client.View) bool {
		return slices.ContainsFunc(v.Messages, hasID(m.ID))
	}); err != nil {
		return fmt.Errorf("%s: fanout of %s: %w", b.name, m.ID, err)
	}

	histCtx, histCancel := context.WithTimeout(ctx, o.timeout)
	history, err := b.api.History(histCtx, o.from, 50)
	histCancel()
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if !slices.ContainsFunc(history, hasID(m.ID)) {
		return fmt.Errorf("history: %s missing", m.ID)
	}

	fmt.Fprintf(out, "OK: from=%s to=%s message_id=%s\n", o.from, o.to, m.ID)
	return nil
}

func hasID(id string) func(v1.Message) bool {
	return func(m v1.Message) bool { return m.ID == id }
}

func startPeer(ctx context.Context, log *slog.Logger, o smokeOptions, user, token string) smokePeer {
	log = log.With("peer", user)
	bus := client.NewBus()
	api := &client.API{BaseURL: o.baseURL, UserID: user, Token: token}
	s := client.NewSession(user, api, bus, client.NewNotificationDispatcher(log, nil, client.LogNotifier{Log: log}), log)

	conn := &client.Connector{
		Dialer: client.Dialer{
			URL:    app.WSBaseURL(o.baseURL) + "/ws",
			UserID: user,
			Token:  token,
			Origin: o.origin,
		},
		Bus: bus,
		Log: log,
	}

	go func() { _ = s.Run(ctx) }()
	go func() {
		if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("smoke.connect.fail", "err", err)
		}
	}()

	return smokePeer{name: user, session: s, api: api}
}

// waitFor polls the peer's view until cond holds or timeout elapses.
func waitFor(parent context.Context, timeout time.Duration, p smokePeer, cond func(client.View) bool) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	t := time.NewTicker(25 * time.Millisecond)
	defer t.Stop()

	for {
		v, err := p.session.View(ctx)
		if err != nil {
			return err
		}
		if cond(v) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}
