package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	obslogger "github.com/smallbiznis/quotaguard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quotaguard/internal/observability/metrics"
	"github.com/smallbiznis/quotaguard/internal/pushmetrics"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobQuotaReset = "quota_reset"
	JobQuotaPrune = "quota_prune"

	// catchUpSpec re-runs the reset between boundaries so a changed
	// resetTime or a missed tick is settled within the hour.
	catchUpSpec = "@hourly"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.QuotaPolicyHolder
	QuotaSvc quotadomain.Service
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Pusher   pushmetrics.Pusher           `optional:"true"`
	Config   Config                       `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.QuotaPolicyHolder
	quotaSvc quotadomain.Service
	auditSvc auditdomain.Service
	metrics  *obsmetrics.SchedulerMetrics
	pusher   pushmetrics.Pusher

	mu   sync.Mutex
	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil || p.QuotaSvc == nil || p.AuditSvc == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		quotaSvc: p.QuotaSvc,
		auditSvc: p.AuditSvc,
		metrics:  m,
		pusher:   p.Pusher,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	defer s.pushMetrics(parent, name)

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		s.metrics.SetLastSuccess(name, s.clock.Now())
		return nil
	}

	// A deadline is a soft timeout: the remaining rows wait for the next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		obslogger.WithContext(ctx, s.log).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) pushMetrics(ctx context.Context, job string) {
	if s.pusher == nil {
		return
	}
	if err := s.pusher.Push(context.WithoutCancel(ctx)); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("metrics push failed", zap.String("job", job), zap.Error(err))
	}
}

// RunOnce settles elapsed quota days and then prunes expired records.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.cfg.isJobEnabled(JobQuotaReset) {
		err = errors.Join(err, s.runJob(parent, JobQuotaReset, s.cfg.BatchSize, s.cfg.JobTimeout, s.QuotaResetJob))
	}
	if s.cfg.isJobEnabled(JobQuotaPrune) {
		err = errors.Join(err, s.runJob(parent, JobQuotaPrune, s.cfg.BatchSize, s.cfg.JobTimeout, s.QuotaPruneJob))
	}
	return err
}

// QuotaResetJob settles every elapsed quota day, one batch per transaction.
func (s *Scheduler) QuotaResetJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobQuotaReset, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var total quotadomain.ResetResult
	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := s.quotaSvc.ResetElapsed(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.quota_reset.failed", JobQuotaReset, err, zap.Int("batch", batch))
			return err
		}
		run.AddProcessed(result.Records)
		s.metrics.AddBatchProcessed(JobQuotaReset, obsmetrics.ResourceQuotaRecords, int(result.Records))
		s.metrics.AddBatchProcessed(JobQuotaReset, obsmetrics.ResourceQuotaConsumptions, int(result.Consumptions))
		total.Records += result.Records
		total.Consumptions += result.Consumptions
		if result.Records < int64(s.cfg.BatchSize) {
			break
		}
	}

	if total.Records > 0 {
		targetID := "daily_quotas"
		_ = s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionQuotaReset, "quota", &targetID, map[string]any{
			"records":      total.Records,
			"consumptions": total.Consumptions,
			"scope":        "scheduled",
		})
	}
	return nil
}

// QuotaPruneJob deletes never-consumed records older than the retention window.
func (s *Scheduler) QuotaPruneJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobQuotaPrune, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := s.quotaSvc.PruneExpired(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.quota_prune.failed", JobQuotaPrune, err, zap.Int("batch", batch))
			return err
		}
		run.AddProcessed(result.Records)
		s.metrics.AddBatchProcessed(JobQuotaPrune, obsmetrics.ResourceQuotaRecords, int(result.Records))
		s.metrics.AddBatchProcessed(JobQuotaPrune, obsmetrics.ResourceQuotaWarnings, int(result.Warnings))
		if result.Records < int64(s.cfg.BatchSize) {
			break
		}
	}
	return nil
}

// Start registers the reset at the policy's reset time, a catch-up reset and
// the prune job on a cron in the policy timezone.
func (s *Scheduler) Start(ctx context.Context) error {
	policy := s.policy.Get()
	resetSpec, pruneSpec, err := cronSpecs(policy.ResetTime, s.cfg.PruneDelay)
	if err != nil {
		return err
	}

	cronLog := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(policy.Location()),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	reset := func() { s.runScheduled(ctx, JobQuotaReset, s.QuotaResetJob) }
	prune := func() { s.runScheduled(ctx, JobQuotaPrune, s.QuotaPruneJob) }
	// Specs may coincide (a 24h prune delay lands on the reset boundary), so
	// every job gets its own entry.
	jobs := []struct {
		spec string
		fn   func()
	}{
		{resetSpec, reset},
		{catchUpSpec, reset},
		{pruneSpec, prune},
	}
	for _, job := range jobs {
		if _, err := c.AddFunc(job.spec, job.fn); err != nil {
			return fmt.Errorf("schedule %q: %w", job.spec, err)
		}
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()

	s.log.Info("scheduler started",
		zap.String("reset_spec", resetSpec),
		zap.String("prune_spec", pruneSpec),
		zap.String("timezone", policy.Location().String()),
	)

	if s.cfg.RunOnStart {
		go func() {
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("scheduler startup run failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop halts the cron and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, name string, fn func(context.Context) error) {
	if !s.cfg.isJobEnabled(name) {
		return
	}
	if err := s.runJob(ctx, name, s.cfg.BatchSize, s.cfg.JobTimeout, fn); err != nil {
		// Retried on the next tick.
		s.log.Warn("scheduler run failed", zap.String("job", name), zap.Error(err))
	}
}

// cronSpecs builds five-field specs for the reset boundary and the prune
// run delay after it.
func cronSpecs(resetTime string, pruneDelay time.Duration) (string, string, error) {
	hour, minute, err := config.ParseClock(resetTime)
	if err != nil {
		return "", "", err
	}
	reset := time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC)
	prune := reset.Add(pruneDelay)
	return fmt.Sprintf("%d %d * * *", reset.Minute(), reset.Hour()),
		fmt.Sprintf("%d %d * * *", prune.Minute(), prune.Hour()),
		nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
