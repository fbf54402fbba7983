// Package metrics exposes a NOMAD session's operational counters and
// gauges as Prometheus collectors, replacing ad-hoc stats structs with
// something a real deployment can scrape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "nomad"
	subsystem = "session"
)

const (
	labelReason = "reason"
	labelFrame  = "frame_type"
)

// Collector holds every NOMAD Prometheus metric. A nil *Collector is
// valid everywhere it is consumed: every method is a safe no-op on a
// nil receiver, so hosts that don't care about metrics can pass nil
// into Open/Accept without guarding every call site themselves.
type Collector struct {
	ActiveSessions *prometheus.GaugeVec

	HandshakesStarted   prometheus.Counter
	HandshakesCompleted prometheus.Counter
	HandshakesFailed    prometheus.Counter

	// UnknownProtocolVersion counts Handshake Init frames carrying an
	// unsupported protocol_version. This cannot be attributed to a
	// session (none exists yet when the field is read), so it is the
	// one NOMAD counter that is process-global rather than per-session.
	UnknownProtocolVersion prometheus.Counter

	SilentDrops *prometheus.CounterVec

	Retransmits      prometheus.Counter
	RekeysCompleted  prometheus.Counter
	Migrations       prometheus.Counter
	ClosedSessions   *prometheus.CounterVec

	RTT prometheus.Histogram
}

// NewCollector builds a Collector and registers it against reg. If reg
// is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := newMetrics()
	reg.MustRegister(
		c.ActiveSessions,
		c.HandshakesStarted,
		c.HandshakesCompleted,
		c.HandshakesFailed,
		c.UnknownProtocolVersion,
		c.SilentDrops,
		c.Retransmits,
		c.RekeysCompleted,
		c.Migrations,
		c.ClosedSessions,
		c.RTT,
	)
	return c
}

func newMetrics() *Collector {
	return &Collector{
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "active", Help: "Number of sessions currently established, by role.",
		}, []string{"role"}),

		HandshakesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "handshakes_started_total", Help: "Total handshakes initiated or accepted.",
		}),
		HandshakesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "handshakes_completed_total", Help: "Total handshakes that reached Established.",
		}),
		HandshakesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "handshakes_failed_total", Help: "Total handshakes that ended in Failed before Established.",
		}),

		UnknownProtocolVersion: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_protocol_version_total",
			Help:      "Handshake Init frames rejected for an unsupported protocol_version, process-wide.",
		}),

		SilentDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "silent_drops_total", Help: "Datagrams dropped without a host-visible event, by reason.",
		}, []string{labelReason}),

		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "retransmits_total", Help: "Total frame retransmissions across the ack tracker and handshake resend.",
		}),
		RekeysCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "rekeys_completed_total", Help: "Total completed epoch rekeys.",
		}),
		Migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "migrations_total", Help: "Total accepted remote-address migrations.",
		}),
		ClosedSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "closed_total", Help: "Total sessions that reached a terminal phase, by phase.",
		}, []string{"phase"}),

		RTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "rtt_seconds",
			Help:    "Sampled round-trip time per ack, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}

func (c *Collector) IncHandshakeStarted() {
	if c == nil {
		return
	}
	c.HandshakesStarted.Inc()
}

func (c *Collector) IncHandshakeCompleted(role string) {
	if c == nil {
		return
	}
	c.HandshakesCompleted.Inc()
	c.ActiveSessions.WithLabelValues(role).Inc()
}

func (c *Collector) IncHandshakeFailed() {
	if c == nil {
		return
	}
	c.HandshakesFailed.Inc()
}

func (c *Collector) IncUnknownProtocolVersion() {
	if c == nil {
		return
	}
	c.UnknownProtocolVersion.Inc()
}

func (c *Collector) IncSilentDrop(reason string) {
	if c == nil {
		return
	}
	c.SilentDrops.WithLabelValues(reason).Inc()
}

func (c *Collector) IncRetransmit() {
	if c == nil {
		return
	}
	c.Retransmits.Inc()
}

func (c *Collector) IncRekeyCompleted() {
	if c == nil {
		return
	}
	c.RekeysCompleted.Inc()
}

func (c *Collector) IncMigration() {
	if c == nil {
		return
	}
	c.Migrations.Inc()
}

func (c *Collector) IncClosed(role, phase string) {
	if c == nil {
		return
	}
	c.ClosedSessions.WithLabelValues(phase).Inc()
	c.ActiveSessions.WithLabelValues(role).Dec()
}

func (c *Collector) ObserveRTT(seconds float64) {
	if c == nil {
		return
	}
	c.RTT.Observe(seconds)
}
