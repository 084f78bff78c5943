package scheduler

import (
	"strings"
	"time"
)

// Config controls scheduler batch sizes and timeouts. Trigger times come
// from the quota policy.
type Config struct {
	BatchSize   int
	MaxBatches  int
	JobTimeout  time.Duration
	PruneDelay  time.Duration
	RunOnStart  bool
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		BatchSize:  500,
		MaxBatches: 1000,
		JobTimeout: 5 * time.Minute,
		PruneDelay: time.Hour,
		RunOnStart: true,
	}
}

func ProvideConfig() Config {
	return DefaultConfig()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaults.MaxBatches
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.PruneDelay <= 0 {
		c.PruneDelay = defaults.PruneDelay
	}
	return c
}

func (c Config) isJobEnabled(job string) bool {
	// Empty means every job runs.
	if len(c.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range c.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), job) {
			return true
		}
	}
	return false
}
