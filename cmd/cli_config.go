package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/sumhouse/sumhouse/pkg/backfill"
	"github.com/sumhouse/sumhouse/pkg/clickhouse"
	"github.com/sumhouse/sumhouse/pkg/partition"
	r "github.com/sumhouse/sumhouse/pkg/redis"
	"github.com/sumhouse/sumhouse/pkg/teams"
)

// CLIConfig represents minimal configuration for one-shot CLI commands
type CLIConfig struct {
	// Logging level
	Logging string `yaml:"logging" default:"error"`

	// ClickHouse configuration
	ClickHouse clickhouse.Config `yaml:"clickhouse"`

	// Teams store configuration
	Teams teams.Config `yaml:"teams"`

	// Backfill tuning
	Backfill backfill.Config `yaml:"backfill"`

	// Redis configuration (optional, only needed for queue stats in list)
	Redis r.Config `yaml:"redis,omitempty"`
}

// Validate validates the CLI configuration
func (c *CLIConfig) Validate() error {
	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}

	if err := c.Teams.Validate(); err != nil {
		return err
	}

	return c.Backfill.Validate()
}

// LoadCLIConfig loads CLI configuration from a YAML file
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = "config.yaml"
	}

	config := &CLIConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults or environment variables
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

// cliToolchain bundles everything a one-shot command needs, plus the
// dry-run recorder when requested.
type cliToolchain struct {
	orchestrator *backfill.Orchestrator
	partitions   *partition.Manager
	store        *teams.PostgresStore
	dryRun       *clickhouse.DryRunClient

	chClient clickhouse.ClientInterface
}

// newCLIToolchain connects ClickHouse and Postgres and builds the
// orchestrator. With dryRun the executor records mutating statements
// instead of running them; reads still hit the store.
func newCLIToolchain(ctx context.Context, cfg *CLIConfig, dryRun bool) (*cliToolchain, error) {
	chClient, err := clickhouse.Setup(ctx, logger, &cfg.ClickHouse)
	if err != nil {
		return nil, err
	}

	tc := &cliToolchain{chClient: chClient}

	executor := chClient
	if dryRun {
		tc.dryRun = clickhouse.NewDryRunClient(logger, chClient)
		executor = tc.dryRun
	}

	store, err := teams.NewPostgresStore(ctx, logger, &cfg.Teams)
	if err != nil {
		_ = chClient.Stop()
		return nil, fmt.Errorf("connect teams store: %w", err)
	}

	tc.store = store

	partitions := partition.NewManager(logger, executor, &cfg.ClickHouse)
	tc.partitions = partitions

	orchestrator, err := backfill.NewOrchestrator(logger, executor, partitions, store, &cfg.Backfill)
	if err != nil {
		tc.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	tc.orchestrator = orchestrator

	return tc, nil
}

// Close releases the toolchain's connections.
func (tc *cliToolchain) Close() {
	if tc.store != nil {
		tc.store.Close()
	}

	if tc.chClient != nil {
		if err := tc.chClient.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop ClickHouse client")
		}
	}
}

// reportPlan prints recorded statements after a dry run.
func (tc *cliToolchain) reportPlan() {
	if tc.dryRun == nil {
		return
	}

	planned := tc.dryRun.Planned()

	fmt.Printf("Dry run: %d statements planned\n", len(planned))

	for i, stmt := range planned {
		fmt.Printf("%3d. %s\n", i+1, stmt)
	}
}
