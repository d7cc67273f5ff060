package drain

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects drain counters. A nil *Metrics records nothing.
type Metrics struct {
	ticks          prometheus.Counter
	ledgerWrites   *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewMetrics registers the drain collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drain",
			Name:      "ticks_total",
			Help:      "Drain ticks applied across all sessions.",
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drain",
			Name:      "ledger_writes_total",
			Help:      "Ledger writes issued by drain sessions.",
		}, []string{"reason", "result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "drain",
			Name:      "active_sessions",
			Help:      "Drain sessions currently open.",
		}),
	}
	reg.MustRegister(m.ticks, m.ledgerWrites, m.activeSessions)
	return m
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) ledgerWrite(reason string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerWrites.WithLabelValues(reason, result).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
