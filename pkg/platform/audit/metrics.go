package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the health of the audit write path. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Written         *prometheus.CounterVec
	Ignored         *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	BreakerState    prometheus.Gauge
}

// NewMetrics registers the audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Written: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrail_audit_records_written_total",
			Help: "Audit records durably written, by action",
		}, []string{"action"}),
		Ignored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrail_audit_records_ignored_total",
			Help: "Audit records that failed to persist and were reported operationally, by reason",
		}, []string{"reason"}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fintrail_audit_persist_duration_seconds",
			Help:    "Time spent appending an audit record",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "fintrail_audit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incWritten(action Action) {
	if m == nil {
		return
	}
	m.Written.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) incIgnored(reason string) {
	if m == nil {
		return
	}
	m.Ignored.WithLabelValues(reason).Inc()
}

func (m *Metrics) observePersist(seconds float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
