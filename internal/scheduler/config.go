package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/invoiceengine/internal/config"
)

// Config controls how often tenants are invoiced and how many run at once.
type Config struct {
	RunInterval time.Duration
	Concurrency int
	JobTimeout  time.Duration
	// Tenants limits runs to these tenant ids. Empty means every tenant.
	Tenants []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: config.DefaultSchedulerInterval,
		Concurrency: 4,
		JobTimeout:  10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.Interval,
		Concurrency: cfg.Scheduler.Concurrency,
		JobTimeout:  cfg.Scheduler.LockTTL,
		Tenants:     cfg.Scheduler.Tenants,
	}
}

func (c Config) allowsTenant(id string) bool {
	if len(c.Tenants) == 0 {
		return true
	}
	for _, allowed := range c.Tenants {
		if strings.TrimSpace(allowed) == id {
			return true
		}
	}
	return false
}
