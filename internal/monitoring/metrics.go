// Package monitoring exposes Prometheus metrics for running
// simulations.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/echolabs/echosim/internal/engine"
	"github.com/echolabs/echosim/internal/targeting"
)

// Metrics holds the collectors. It implements engine.EventSink so a
// controller keeps them current as rounds complete.
type Metrics struct {
	activeSessions  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	roundsTotal     prometheus.Counter
	actionsTotal    *prometheus.CounterVec
	failedDecisions prometheus.Counter
	roundDuration   prometheus.Histogram
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "echosim_active_sessions",
			Help: "Number of simulation sessions currently running.",
		}),
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echosim_sessions_total",
			Help: "Finished sessions by stop reason.",
		}, []string{"stop_reason"}),
		roundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "echosim_rounds_total",
			Help: "Completed simulation rounds.",
		}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echosim_actions_total",
			Help: "Applied user actions by type.",
		}, []string{"type"}),
		failedDecisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "echosim_failed_decisions_total",
			Help: "Agent decisions degraded to no-ops.",
		}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echosim_round_duration_seconds",
			Help:    "Wall time of one simulation round.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// SessionStarted marks one more running session.
func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

// RoundStarted implements engine.EventSink.
func (m *Metrics) RoundStarted(string, int, []targeting.Target) {}

// RoundCompleted implements engine.EventSink.
func (m *Metrics) RoundCompleted(_ string, rec engine.RoundRecord) {
	m.roundsTotal.Inc()
	m.failedDecisions.Add(float64(rec.Result.FailedDecisions))
	m.roundDuration.Observe(rec.Result.Duration.Seconds())
	for typ, n := range rec.Result.ActionCounts {
		m.actionsTotal.WithLabelValues(string(typ)).Add(float64(n))
	}
}

// SessionEnded implements engine.EventSink.
func (m *Metrics) SessionEnded(_ string, reason engine.StopReason) {
	m.activeSessions.Dec()
	m.sessionsTotal.WithLabelValues(string(reason)).Inc()
}
