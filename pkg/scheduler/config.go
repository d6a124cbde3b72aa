// Package scheduler registers the periodic tenant discovery sweep with
// Asynq and uses Redis leader election so only one replica schedules.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when the discovery schedule is not a
	// valid cron expression or @every interval
	ErrInvalidSchedule = errors.New("invalid discovery schedule")
	// ErrNegativeDays is returned when the configured day span is negative
	ErrNegativeDays = errors.New("days must not be negative")
	// ErrNegativeBatchSize is returned when the batch size is negative
	ErrNegativeBatchSize = errors.New("batch size must not be negative")
)

// Config defines scheduler configuration
type Config struct {
	// Schedule is a cron expression or @every interval for the discovery sweep
	Schedule string `yaml:"schedule" default:"@every 1h"`
	// Days is the trailing day span each sweep rebuilds (0 uses the backfill default)
	Days int `yaml:"days" default:"0"`
	// BatchSize caps tenants per sweep (0 uses the backfill default)
	BatchSize int `yaml:"batchSize" default:"0"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if err := validateSchedule(c.Schedule); err != nil {
		return err
	}

	if c.Days < 0 {
		return ErrNegativeDays
	}

	if c.BatchSize < 0 {
		return ErrNegativeBatchSize
	}

	return nil
}

// SetDefaults fills zero values with production defaults
func (c *Config) SetDefaults() {
	if c.Schedule == "" {
		c.Schedule = "@every 1h"
	}
}

// validateSchedule accepts the two schedule forms Asynq understands:
// "@every <duration>" and standard 5-field cron expressions.
func validateSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}

	if strings.HasPrefix(schedule, "@every ") {
		if _, err := time.ParseDuration(strings.TrimPrefix(schedule, "@every ")); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, schedule, err)
		}

		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, schedule, err)
	}

	return nil
}
