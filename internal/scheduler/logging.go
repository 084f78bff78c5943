package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/quotaguard/internal/observability/context"
	obslogger "github.com/smallbiznis/quotaguard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quotaguard/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one pass of a job across its batches.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	records   int64
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int64) {
	if r != nil && count > 0 {
		r.records += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.failures++
	}
}

func (r *jobRun) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
	}, extra...)
}

// ensureJobRun reuses a run already on ctx so nested jobs report under the
// outer run. owner is true only for the caller that created it.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run, true
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	obslogger.WithContext(ctx, s.log).Info("scheduler.job.start",
		run.fields(zap.Int("batch_size", run.batchSize))...)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := run.fields(
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int64("processed_count", run.records),
		zap.Int("error_count", run.failures),
	)
	log := obslogger.WithContext(ctx, s.log)
	if run.failures > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	obslogger.WithContext(ctx, s.log).Error(msg, append([]zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	}, fields...)...)
}
