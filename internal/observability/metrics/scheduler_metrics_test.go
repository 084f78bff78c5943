package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: fmt.Errorf("reset: %w", &pgconn.PgError{Code: "40001"}), want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "db", err: gorm.ErrInvalidTransaction, want: SchedulerJobReasonDB},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	assert.True(t, IsSchedulerErrorRetryable(context.DeadlineExceeded))
	assert.True(t, IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsSchedulerErrorRetryable(errors.New("invalid policy")))
	assert.False(t, IsSchedulerErrorRetryable(nil))
}

func TestSchedulerCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "quotaguard", Environment: "test"})

	m.AddBatchProcessed("quota_reset", ResourceQuotaRecords, 3)
	m.AddBatchProcessed("quota_reset", ResourceQuotaRecords, 0)
	m.IncJobRun("quota_reset")
	m.IncJobError("quota_prune", errors.New("boom"))
	m.SetLastSuccess("quota_reset", time.Unix(1700000000, 0))

	assert.Equal(t, float64(3), testutil.ToFloat64(m.batchProcessed.WithLabelValues("quota_reset", ResourceQuotaRecords)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobRuns.WithLabelValues("quota_reset")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobErrors.WithLabelValues("quota_prune", SchedulerJobReasonUnknown)))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.lastSuccess.WithLabelValues("quota_reset")))
}
