package worker

import (
	"errors"
	"time"
)

var (
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	// ErrRunnerRequired is returned when no backfill runner is provided
	ErrRunnerRequired = errors.New("backfill runner is required")
)

// Config contains worker-specific settings
type Config struct {
	// Concurrency is the number of tasks processed in parallel
	Concurrency int `yaml:"concurrency" default:"10"`
	// MetricsInterval is how often queue depth gauges refresh
	MetricsInterval time.Duration `yaml:"metricsInterval" default:"30s"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}

// SetDefaults fills zero values with production defaults
func (c *Config) SetDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 10
	}

	if c.MetricsInterval == 0 {
		c.MetricsInterval = 30 * time.Second
	}
}
