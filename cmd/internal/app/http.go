package app

import (
	"context"
	"net/http"
	"time"

	"chitchat/cmd/internal/message"
	"chitchat/cmd/internal/realtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routes struct {
	log     Logger
	cfg     Config
	metrics *prometheus.Registry

	// ready reports backing-store health; nil means no store to check.
	ready func(ctx context.Context) error

	ws       *realtime.WSGateway
	messages *message.Handler
	media    http.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.ready == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rt.ready(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(rt.metrics, promhttp.HandlerOpts{Registry: rt.metrics}))
	}

	if rt.messages != nil {
		api := http.NewServeMux()
		rt.messages.Register(api)
		mux.Handle("/api/", WithCORS(WithSecurityHeaders(api), rt.cfg, rt.log))
	}

	if rt.media != nil {
		mux.Handle("/media/", rt.media)
	}

	mux.Handle("/ws", rt.ws)
}
