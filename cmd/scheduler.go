package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sumhouse/sumhouse/pkg/scheduler"
)

//nolint:gochecknoglobals // cobra commands are package-level by convention
var schedulerCfgFile string

//nolint:gochecknoglobals // cobra commands are package-level by convention
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Start the discovery scheduler",
	Long: `Start the scheduler that periodically enqueues the tenant discovery sweep.

The scheduler elects a leader through Redis so that only one replica
registers the periodic task; followers stand by and take over when the
leader goes away.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true

		return runScheduler()
	},
}

//nolint:gochecknoinits // cobra commands are registered in init by convention
func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().StringVar(&schedulerCfgFile, "config", "scheduler.yaml", "config file path")
}

func loadSchedulerConfigFromFile(path string) (*scheduler.AppConfig, error) {
	config := &scheduler.AppConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func runScheduler() error {
	config, err := loadSchedulerConfigFromFile(schedulerCfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logrus.ParseLevel(config.Logging)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Logging, err)
	}

	log := logrus.New()
	log.SetLevel(level)

	app := scheduler.NewApplication(log, config)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down scheduler")

	return app.Stop()
}
