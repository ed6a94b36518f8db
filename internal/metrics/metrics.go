// Package metrics holds the Prometheus instruments for provider dispatch and
// OAuth token refresh.
//
// A nil *Metrics is valid and records nothing, so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nexus"

// Dispatch outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeBuildError     = "build_error"
	OutcomeTransportError = "transport_error"
	OutcomeBadStatus      = "bad_status"
	OutcomeReadError      = "read_error"
	OutcomeMissingReply   = "missing_reply"
	OutcomeNoStrategy     = "no_strategy"
)

// Refresh outcomes.
const (
	RefreshSuccess        = "success"
	RefreshFailure        = "failure"
	RefreshSkipped        = "skipped"
	RefreshPersistFailure = "persist_failure"
)

type Metrics struct {
	// DispatchRequests counts provider calls. Labels: provider, outcome.
	DispatchRequests *prometheus.CounterVec

	// DispatchDuration measures provider call latency. Labels: provider.
	DispatchDuration *prometheus.HistogramVec

	// TokenRefreshes counts OAuth refresh attempts. Labels: outcome.
	TokenRefreshes *prometheus.CounterVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Chat-completion provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Chat-completion provider call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "token_refresh_total",
			Help:      "OAuth access token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveDispatch(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchRequests.WithLabelValues(provider, outcome).Inc()
	m.DispatchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}
