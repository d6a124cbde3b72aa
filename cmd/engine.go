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

	"github.com/sumhouse/sumhouse/pkg/engine"
)

//nolint:gochecknoglobals // cobra commands are package-level by convention
var engineCfgFile string

//nolint:gochecknoglobals // cobra commands are package-level by convention
var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Start all rollup services in one process",
	Long: `Start the scheduler, worker, and trigger listener together.

This is the single-binary deployment for small installations. Larger
deployments run "sumhouse scheduler" and "sumhouse worker" separately so
each can scale on its own.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true

		return runEngine()
	},
}

//nolint:gochecknoinits // cobra commands are registered in init by convention
func init() {
	rootCmd.AddCommand(engineCmd)

	engineCmd.Flags().StringVar(&engineCfgFile, "config", "config.yaml", "config file path")
}

func loadEngineConfigFromFile(path string) (*engine.Config, error) {
	config := &engine.Config{}

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

func runEngine() error {
	config, err := loadEngineConfigFromFile(engineCfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logrus.ParseLevel(config.Logging)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.Logging, err)
	}

	log := logrus.New()
	log.SetLevel(level)

	service, err := engine.NewService(log, config)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx := context.Background()
	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down engine")

	return service.Stop()
}
