package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDispatch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDispatch("chatgpt", OutcomeOK, 120*time.Millisecond)
	m.ObserveDispatch("chatgpt", OutcomeBadStatus, time.Second)
	m.ObserveDispatch("chatgpt", OutcomeOK, 80*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchRequests.WithLabelValues("chatgpt", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchRequests.WithLabelValues("chatgpt", OutcomeBadStatus)))
}

func TestObserveRefresh(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRefresh(RefreshFailure)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues(RefreshFailure)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDispatch("gemini", OutcomeOK, time.Millisecond)
		m.ObserveRefresh(RefreshSuccess)
	})
}
