package scheduler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sumhouse/sumhouse/pkg/observability"
	r "github.com/sumhouse/sumhouse/pkg/redis"
)

// AppConfig is the standalone scheduler process configuration
type AppConfig struct {
	Logging     string `yaml:"logging" default:"info"`
	MetricsAddr string `yaml:"metricsAddr" default:":9092"`

	Redis     r.Config `yaml:"redis"`
	Scheduler Config   `yaml:"scheduler"`
}

// Validate validates the configuration
func (c *AppConfig) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}

	return c.Scheduler.Validate()
}

// Application runs the scheduler as its own process
type Application struct {
	cfg *AppConfig
	log *logrus.Logger

	service Service
}

// NewApplication creates a new scheduler application
func NewApplication(log *logrus.Logger, cfg *AppConfig) *Application {
	return &Application{
		log: log,
		cfg: cfg,
	}
}

// Start initializes and starts the scheduler application
func (a *Application) Start(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	observability.StartMetricsServer(a.log, a.cfg.MetricsAddr)

	service, err := NewService(a.log, &a.cfg.Scheduler, a.cfg.Redis.Options())
	if err != nil {
		return err
	}

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler service: %w", err)
	}

	a.service = service

	a.log.Info("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler application
func (a *Application) Stop() error {
	if a.service != nil {
		return a.service.Stop()
	}

	return nil
}
