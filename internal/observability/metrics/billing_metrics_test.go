package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBillingMetricsCounts(t *testing.T) {
	m := newBillingMetrics(prometheus.NewRegistry(), Config{Environment: "test"})

	m.ObserveAttempt("pos", OutcomeCommitted, 20*time.Millisecond)
	m.ObserveAttempt("pos", OutcomeRejected, 5*time.Millisecond)
	m.IncRejection("quota_exceeded")
	m.IncRetry()
	m.IncRetry()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.attempts.WithLabelValues("pos", OutcomeCommitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rejections.WithLabelValues("quota_exceeded")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.retries))
}

func TestNilBillingMetricsIsSafe(t *testing.T) {
	var m *BillingMetrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("pos", OutcomeFailed, time.Second)
		m.IncRejection("insufficient_stock")
		m.IncRetry()
		m.IncQuotaWarning()
	})
}
