package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/billingtest"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	obsmetrics "github.com/smallbiznis/quotaguard/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var testLabels = map[string]string{"service": "quotaguard-test", "env": "test"}

type fixture struct {
	h        *billingtest.Harness
	sched    *Scheduler
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config, mutate ...func(*config.QuotaPolicy)) *fixture {
	t.Helper()
	policy := config.DefaultQuotaPolicy()
	for _, fn := range mutate {
		fn(&policy)
	}
	h := billingtest.New(t, policy)
	registry := prometheus.NewRegistry()

	sched, err := New(Params{
		Log:      zaptest.NewLogger(t),
		GenID:    h.Node,
		Clock:    h.Clock,
		Policy:   h.Policy,
		QuotaSvc: h.Quota,
		AuditSvc: h.Audit,
		Metrics: obsmetrics.NewSchedulerMetricsForRegistry(registry, obsmetrics.Config{
			ServiceName: "quotaguard-test",
			Environment: "test",
		}),
		Config: cfg,
	})
	require.NoError(t, err)
	return &fixture{h: h, sched: sched, registry: registry}
}

func (f *fixture) consume(t *testing.T, customerID snowflake.ID, ml int64) {
	t.Helper()
	_, err := f.h.Quota.TryConsume(context.Background(), customerID, ml, f.h.Node.Generate())
	require.NoError(t, err)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{
		log:     zap.NewNop(),
		genID:   node,
		clock:   clock.NewFakeClock(time.Time{}),
		metrics: obsmetrics.NewSchedulerMetricsForRegistry(registry, obsmetrics.Config{ServiceName: "quotaguard-test", Environment: "test"}),
	}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, getCounterValue(t, registry, "quotaguard_scheduler_job_timeouts_total", withLabels("job", "timeout_job")))
	assert.Equal(t, 1.0, getCounterValue(t, registry, "quotaguard_scheduler_job_errors_total",
		withLabels("job", "timeout_job", "reason", obsmetrics.SchedulerJobReasonDeadlineExceeded)))
}

func TestRunOnceSettlesElapsedDays(t *testing.T) {
	f := newFixture(t, Config{RunOnStart: false})
	ctx := context.Background()
	f.consume(t, snowflake.ID(1001), 600)
	f.consume(t, snowflake.ID(1002), 300)

	f.h.Clock.Advance(24 * time.Hour)
	f.consume(t, snowflake.ID(1001), 100)

	require.NoError(t, f.sched.RunOnce(ctx))

	var past []quotadomain.DailyQuota
	require.NoError(t, f.h.DB.Where("day = ?", "2024-05-01").Find(&past).Error)
	require.Len(t, past, 2)
	for _, q := range past {
		assert.True(t, q.Settled)
		assert.Zero(t, q.ConsumedML)
	}

	today, err := f.h.Quota.Check(ctx, snowflake.ID(1001))
	require.NoError(t, err)
	assert.Equal(t, int64(100), today.ConsumedML)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.h.DB.Where("action = ?", auditdomain.ActionQuotaReset).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), logs[0].ActorType)

	assert.Equal(t, 2.0, getCounterValue(t, f.registry, "quotaguard_scheduler_batch_processed_total",
		withLabels("job", JobQuotaReset, "resource", obsmetrics.ResourceQuotaRecords)))
	assert.Equal(t, 1.0, getCounterValue(t, f.registry, "quotaguard_scheduler_job_runs_total", withLabels("job", JobQuotaPrune)))
}

func TestQuotaResetJobDrainsInBatches(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 1})
	for i := 0; i < 3; i++ {
		f.consume(t, snowflake.ID(2000+i), 100)
	}
	f.h.Clock.Advance(24 * time.Hour)

	require.NoError(t, f.sched.QuotaResetJob(context.Background()))

	var unsettled int64
	require.NoError(t, f.h.DB.Model(&quotadomain.DailyQuota{}).Where("settled = ?", false).Count(&unsettled).Error)
	assert.Zero(t, unsettled)
}

func TestRunOnceSkipsNoActivity(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.sched.RunOnce(context.Background()))

	var count int64
	require.NoError(t, f.h.DB.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPruneRemovesExpiredUntouchedRecords(t *testing.T) {
	f := newFixture(t, Config{}, func(p *config.QuotaPolicy) {
		p.RetentionDays = 3
	})
	ctx := context.Background()
	_, err := f.h.Quota.GetOrCreateToday(ctx, snowflake.ID(3001))
	require.NoError(t, err)
	f.consume(t, snowflake.ID(3002), 200)

	f.h.Clock.Advance(5 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	var remaining []quotadomain.DailyQuota
	require.NoError(t, f.h.DB.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, snowflake.ID(3002), remaining[0].CustomerID)
	assert.True(t, remaining[0].Settled)
}

func TestDisabledJobIsSkipped(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobQuotaPrune}})
	f.consume(t, snowflake.ID(4001), 100)
	f.h.Clock.Advance(24 * time.Hour)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	var q quotadomain.DailyQuota
	require.NoError(t, f.h.DB.Where("customer_id = ?", snowflake.ID(4001)).First(&q).Error)
	assert.False(t, q.Settled)
}

func TestCronSpecs(t *testing.T) {
	tests := []struct {
		name      string
		resetTime string
		delay     time.Duration
		reset     string
		prune     string
		wantErr   bool
	}{
		{name: "midnight", resetTime: "00:00", delay: time.Hour, reset: "0 0 * * *", prune: "0 1 * * *"},
		{name: "wraps past midnight", resetTime: "23:30", delay: time.Hour, reset: "30 23 * * *", prune: "30 0 * * *"},
		{name: "custom delay", resetTime: "06:15", delay: 20 * time.Minute, reset: "15 6 * * *", prune: "35 6 * * *"},
		{name: "invalid", resetTime: "25:00", delay: time.Hour, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset, prune, err := cronSpecs(tt.resetTime, tt.delay)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.reset, reset)
			assert.Equal(t, tt.prune, prune)
		})
	}
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, Config{RunOnStart: false})
	require.NoError(t, f.sched.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))
	// Stopping twice is harmless.
	require.NoError(t, f.sched.Stop(ctx))
}

func TestStartRegistersCoincidingSpecs(t *testing.T) {
	f := newFixture(t, Config{PruneDelay: 24 * time.Hour})
	require.NoError(t, f.sched.Start(context.Background()))
	t.Cleanup(func() { _ = f.sched.Stop(context.Background()) })

	f.sched.mu.Lock()
	entries := f.sched.cron.Entries()
	f.sched.mu.Unlock()
	assert.Len(t, entries, 3)
}

func TestIsJobEnabled(t *testing.T) {
	assert.True(t, Config{}.isJobEnabled(JobQuotaReset))
	cfg := Config{EnabledJobs: []string{" QUOTA_RESET "}}
	assert.True(t, cfg.isJobEnabled(JobQuotaReset))
	assert.False(t, cfg.isJobEnabled(JobQuotaPrune))
}

func withLabels(kv ...string) map[string]string {
	labels := make(map[string]string, len(testLabels)+len(kv)/2)
	for k, v := range testLabels {
		labels[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}
	return labels
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

type mockPusher struct {
	mock.Mock
}

func (p *mockPusher) Push(ctx context.Context) error {
	return p.Called(ctx).Error(0)
}

func TestRunOncePushesMetricsPerJob(t *testing.T) {
	f := newFixture(t, Config{})
	pusher := &mockPusher{}
	// A failing push is logged and does not fail the run.
	pusher.On("Push", mock.Anything).Return(assert.AnError).Twice()
	f.sched.pusher = pusher

	require.NoError(t, f.sched.RunOnce(context.Background()))
	pusher.AssertExpectations(t)
	pusher.AssertNumberOfCalls(t, "Push", 2)
}
