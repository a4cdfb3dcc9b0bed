package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP-level Prometheus metrics for the application.
type Metrics struct {
	RequestDuration   *prometheus.HistogramVec
	UsersRegistered   prometheus.Counter
	LoginFailures     *prometheus.CounterVec
	RevocationLatency prometheus.Histogram
}

// New creates and registers the application metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fintrail_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "fintrail_users_registered_total",
			Help: "Total number of users registered",
		}),
		LoginFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrail_login_failures_total",
			Help: "Failed logins by reason",
		}, []string{"reason"}),
		RevocationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fintrail_token_revocation_lookup_seconds",
			Help:    "Latency of token revocation list lookups",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) IncUsersRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

func (m *Metrics) IncLoginFailure(reason string) {
	if m == nil {
		return
	}
	m.LoginFailures.WithLabelValues(reason).Inc()
}
