package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the realtime collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Online             prometheus.Gauge
	Connections        prometheus.Gauge
	PresenceBroadcasts prometheus.Counter
	PresenceDrops      prometheus.Counter
	Fanout             *prometheus.CounterVec
}

// NewMetrics creates the realtime collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chitchat",
			Subsystem: "presence",
			Name:      "online",
			Help:      "Identities with a registered live connection.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chitchat",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Live websocket connections, identified or not.",
		}),
		PresenceBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "presence",
			Name:      "broadcasts_total",
			Help:      "Presence broadcasts triggered by registry mutations.",
		}),
		PresenceDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "presence",
			Name:      "dropped_total",
			Help:      "Per-connection presence pushes dropped under backpressure.",
		}),
		Fanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chitchat",
			Subsystem: "fanout",
			Name:      "total",
			Help:      "Message fanout attempts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Online, m.Connections, m.PresenceBroadcasts, m.PresenceDrops, m.Fanout)
	}
	return m
}

func (m *Metrics) setOnline(n int) {
	if m == nil {
		return
	}
	m.Online.Set(float64(n))
}

func (m *Metrics) setConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(n))
}

func (m *Metrics) presenceBroadcast(dropped int) {
	if m == nil {
		return
	}
	m.PresenceBroadcasts.Inc()
	if dropped > 0 {
		m.PresenceDrops.Add(float64(dropped))
	}
}

func (m *Metrics) fanout(o Outcome) {
	if m == nil {
		return
	}
	m.Fanout.WithLabelValues(o.String()).Inc()
}
