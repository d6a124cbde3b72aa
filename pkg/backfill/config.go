package backfill

import (
	"fmt"

	"github.com/sumhouse/sumhouse/pkg/rollup"
)

// Config tunes the orchestrator.
type Config struct {
	// MaxBackfillDays is the hard ceiling for any backfill window;
	// larger requests are clamped, never rejected
	MaxBackfillDays int `yaml:"maxBackfillDays" default:"90"`
	// DefaultDays is the window used when a request does not name one
	DefaultDays int `yaml:"defaultDays" default:"30"`
	// BatchSize caps how many tenants one discovery run processes
	BatchSize int `yaml:"batchSize" default:"10"`
	// PersonJoin selects how events resolve person identity:
	// "overrides" joins the override mapping, "direct" trusts event rows
	PersonJoin string `yaml:"personJoin" default:"overrides"`
	// QuerySettings are appended as a SETTINGS clause to insert queries
	QuerySettings map[string]string `yaml:"querySettings"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch rollup.PersonJoinMode(c.PersonJoin) {
	case rollup.PersonJoinOverrides, rollup.PersonJoinDirect, "":
	default:
		return fmt.Errorf("unknown personJoin mode %q", c.PersonJoin)
	}

	return nil
}

// SetDefaults fills in zero values
func (c *Config) SetDefaults() {
	if c.MaxBackfillDays == 0 {
		c.MaxBackfillDays = 90
	}

	if c.DefaultDays == 0 {
		c.DefaultDays = 30
	}

	if c.BatchSize == 0 {
		c.BatchSize = 10
	}

	if c.PersonJoin == "" {
		c.PersonJoin = string(rollup.PersonJoinOverrides)
	}
}

// PersonJoinMode returns the configured identity-join strategy.
func (c *Config) PersonJoinMode() rollup.PersonJoinMode {
	return rollup.PersonJoinMode(c.PersonJoin)
}
