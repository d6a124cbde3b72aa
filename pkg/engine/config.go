// Package engine runs every rollup service in a single process for small
// deployments: queue consumer, discovery scheduler, and trigger listener.
package engine

import (
	"github.com/sumhouse/sumhouse/pkg/backfill"
	"github.com/sumhouse/sumhouse/pkg/clickhouse"
	r "github.com/sumhouse/sumhouse/pkg/redis"
	"github.com/sumhouse/sumhouse/pkg/scheduler"
	"github.com/sumhouse/sumhouse/pkg/teams"
	"github.com/sumhouse/sumhouse/pkg/trigger"
	"github.com/sumhouse/sumhouse/pkg/worker"
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Dependencies
	Redis      r.Config          `yaml:"redis"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Teams      teams.Config      `yaml:"teams"`

	// Component settings
	Backfill  backfill.Config  `yaml:"backfill"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Trigger   trigger.Config   `yaml:"trigger"`
	Worker    worker.Config    `yaml:"worker"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}

	if err := c.Teams.Validate(); err != nil {
		return err
	}

	if err := c.Backfill.Validate(); err != nil {
		return err
	}

	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	return c.Worker.Validate()
}
