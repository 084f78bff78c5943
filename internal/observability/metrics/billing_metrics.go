package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeReplayed  = "replayed"
	OutcomeFailed    = "failed"
)

// BillingMetrics tracks the billing commit path.
type BillingMetrics struct {
	attempts    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	retries     prometheus.Counter
	duration    *prometheus.HistogramVec
	quotaWarned prometheus.Counter
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// NewBillingMetricsForRegistry builds billing metrics on a private registry.
func NewBillingMetricsForRegistry(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	return newBillingMetrics(registerer, cfg)
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quotaguard_billing_attempts_total",
		Help:        "Billing attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"channel", "outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quotaguard_billing_rejections_total",
		Help:        "Rejected billing attempts by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "quotaguard_billing_conflict_retries_total",
		Help:        "Billing attempts retried after a lost storage race.",
		ConstLabels: constLabels,
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "quotaguard_billing_attempt_duration_seconds",
		Help:        "Billing attempt latency including retries.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	quotaWarned := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "quotaguard_quota_warnings_total",
		Help:        "Consumptions that crossed the warning threshold.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(attempts, rejections, retries, duration, quotaWarned)

	return &BillingMetrics{
		attempts:    attempts,
		rejections:  rejections,
		retries:     retries,
		duration:    duration,
		quotaWarned: quotaWarned,
	}
}

func (m *BillingMetrics) ObserveAttempt(channel, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(channel, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *BillingMetrics) IncRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *BillingMetrics) IncRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *BillingMetrics) IncQuotaWarning() {
	if m == nil {
		return
	}
	m.quotaWarned.Inc()
}
