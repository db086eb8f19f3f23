package scheduler

import (
	"time"
)

// Config controls the pending-purchase sweep interval and batch sizing.
type Config struct {
	RunInterval time.Duration
	PendingAge  time.Duration
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 5 * time.Minute,
		PendingAge:  10 * time.Minute,
		BatchSize:   50,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PendingAge <= 0 {
		c.PendingAge = defaults.PendingAge
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
