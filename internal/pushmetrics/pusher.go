package pushmetrics

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/smallbiznis/quotaguard/internal/config"
	"go.uber.org/zap"
)

const defaultPushTimeout = 5 * time.Second

// Pusher flushes batch-job metrics to a Prometheus Pushgateway. The
// scheduler may run as a short-lived process that is never scraped.
type Pusher interface {
	Push(ctx context.Context) error
}

// NewPusher builds a pusher from config. Misconfiguration is logged and
// disables pushing rather than blocking the jobs.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Pushgateway.Enabled {
		return nil
	}

	endpoint := strings.TrimSpace(cfg.Pushgateway.Endpoint)
	if endpoint == "" {
		logger.Warn("pushgateway disabled", zap.Error(errors.New("pushgateway endpoint is required")))
		return nil
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		logger.Warn("pushgateway disabled", zap.Error(err))
		return nil
	}

	job := strings.TrimSpace(cfg.Pushgateway.Job)
	if job == "" {
		job = cfg.AppName + "-scheduler"
	}
	return NewPushgatewayPusher(endpoint, job, prometheus.DefaultGatherer, map[string]string{
		"environment": strings.TrimSpace(cfg.Environment),
	})
}

// PushgatewayPusher replaces the job's metric group on every push.
type PushgatewayPusher struct {
	endpoint string
	job      string
	gatherer prometheus.Gatherer
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, gatherer prometheus.Gatherer, grouping map[string]string) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		gatherer: gatherer,
		grouping: grouping,
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context) error {
	if p == nil || p.gatherer == nil {
		return nil
	}
	if strings.TrimSpace(p.endpoint) == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(p.gatherer)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return pusher.PushContext(ctx)
}
