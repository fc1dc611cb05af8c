// Package app wires the chitchat server runtime: config, logging, persistence, HTTP routes,
// and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chitchat/cmd/internal/auth/identity"
	"chitchat/cmd/internal/auth/session"
	"chitchat/cmd/internal/message"
	"chitchat/cmd/internal/realtime"
	"chitchat/cmd/internal/relay"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the chitchat server runtime: it owns HTTP server wiring and realtime dependencies.
type App struct {
	cfg Config
	log Logger

	store Store
	ready func(ctx context.Context) error

	metrics  *prometheus.Registry
	registry *realtime.Registry
	fanout   *realtime.Fanout
	ws       *realtime.WSGateway

	messages *message.Handler
	media    *message.DiskMediaStore

	nats *nats.Conn
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rtMetrics := realtime.NewMetrics(reg)
	registry := realtime.NewRegistry(log, rtMetrics)
	fanout := realtime.NewFanout(log, registry, rtMetrics)

	resolver, err := newResolver(log)
	if err != nil {
		return nil, err
	}

	st, ready, msgStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    st,
		ready:    ready,
		metrics:  reg,
		registry: registry,
		fanout:   fanout,
		ws:       realtime.NewWSGateway(log, realtime.GatewayConfigFromEnv(), registry, resolver),
	}

	opts := []message.HandlerOption{}

	if cfg.MediaDir != "" {
		media, err := message.NewDiskMediaStore(cfg.MediaDir, "/media")
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		a.media = media
		opts = append(opts, message.WithMediaStore(media))
	}

	// Exactly one path reaches Fanout per persisted message: directly, or through the relay.
	var notifier message.Notifier = fanout
	if cfg.NATSURL != "" {
		nc, err := relay.Connect(log, cfg.NATSURL)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		a.nats = nc
		notifier = relay.NewPublisher(log, nc)
		log.Info("relay.enabled", "subject", relay.Subject)
	}
	opts = append(opts, message.WithNotifier(notifier))

	a.messages, err = message.NewHandler(log, msgStore, resolver, opts...)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	rt := routes{
		log:      a.log,
		cfg:      a.cfg,
		metrics:  a.metrics,
		ready:    a.ready,
		ws:       a.ws,
		messages: a.messages,
	}
	if a.media != nil {
		rt.media = a.media.Handler()
	}
	registerHTTP(mux, rt)

	return WithRequestLogging(mux, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	if a.nats != nil {
		if _, err := relay.NewSubscriber(a.log, a.fanout).Start(ctx, a.nats); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"ws_url", WSBaseURL(RuntimeBaseURL(a.cfg.HTTPAddr))+"/ws",
		"store", a.cfg.StoreKind,
		"relay", a.nats != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.Close(shutdownCtx)
		return err
	}

	a.Close(shutdownCtx)
	a.log.Info("server.stopped")
	return nil
}

// Close releases the relay connection and store resources (pool etc).
func (a *App) Close(ctx context.Context) {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.log.Error("relay.close.fail", "err", err)
		}
		a.nats = nil
	}
	if err := a.store.Close(ctx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newResolver picks token mode when a PASETO key is configured and trusts userId otherwise.
func newResolver(log Logger) (identity.Resolver, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if !sessCfg.Enabled() {
		log.Warn("identity.mode", "mode", "query", "note", "caller-supplied userId is trusted")
		return identity.QueryResolver{}, nil
	}

	tokens, err := session.NewPasetoManager(sessCfg)
	if err != nil {
		return nil, err
	}
	log.Info("identity.mode", "mode", "token", "issuer", sessCfg.Issuer)
	return identity.NewTokenResolver(tokens), nil
}

// newStore builds the configured message store and its lifecycle/readiness hooks.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, func(context.Context) error, message.Store, error) {
	switch cfg.StoreKind {
	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}

		// Ownership model:
		// - app owns pool lifecycle
		// - PostgresStore.Close() is a no-op
		msgStore, err := message.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		log.Info("db.enabled.postgres_store")
		ready := func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) }
		return dbStore{pool: pool, msgStore: msgStore}, ready, msgStore, nil

	case StoreSQLite:
		msgStore, err := message.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
		return sqliteStore{msgStore}, msgStore.Ping, msgStore, nil

	default:
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, message.NewInMemoryStore(), nil
	}
}

type dbStore struct {
	pool     *pgxpool.Pool
	msgStore *message.PostgresStore
}

func (s dbStore) Close(_ context.Context) error {
	if s.msgStore != nil {
		_ = s.msgStore.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type sqliteStore struct {
	*message.SQLiteStore
}

func (s sqliteStore) Close(_ context.Context) error {
	return s.SQLiteStore.Close()
}
