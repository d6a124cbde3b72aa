package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sumhouse/sumhouse/pkg/backfill"
	"github.com/sumhouse/sumhouse/pkg/clickhouse"
	"github.com/sumhouse/sumhouse/pkg/observability"
	"github.com/sumhouse/sumhouse/pkg/partition"
	r "github.com/sumhouse/sumhouse/pkg/redis"
	"github.com/sumhouse/sumhouse/pkg/tasks"
	"github.com/sumhouse/sumhouse/pkg/teams"
	"github.com/sumhouse/sumhouse/pkg/trigger"
)

// AppConfig is the standalone worker process configuration
type AppConfig struct {
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9090"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	Redis      r.Config          `yaml:"redis"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Teams      teams.Config      `yaml:"teams"`
	Backfill   backfill.Config   `yaml:"backfill"`
	Trigger    trigger.Config    `yaml:"trigger"`
	Worker     Config            `yaml:"worker"`
}

// Validate validates the configuration
func (c *AppConfig) Validate() error {
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

	return c.Worker.Validate()
}

// Application wires the full worker process: ClickHouse client, team store
// with Redis cache, partition manager, orchestrator, queue consumer, and
// the flag-change trigger listener.
type Application struct {
	cfg *AppConfig
	log *logrus.Logger

	chClient    clickhouse.ClientInterface
	redisClient *redis.Client
	teamStore   *teams.PostgresStore
	queue       *tasks.QueueManager
	trigger     *trigger.Service
	worker      Service

	healthServer *http.Server
	pprofServer  *http.Server
}

// NewApplication creates a new worker application
func NewApplication(log *logrus.Logger, cfg *AppConfig) *Application {
	return &Application{
		log: log,
		cfg: cfg,
	}
}

// Start initializes and starts the worker application
func (a *Application) Start(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	observability.StartMetricsServer(a.log, a.cfg.MetricsAddr)

	if a.cfg.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	if a.cfg.PProfAddr != "" {
		a.startPProf()
	}

	redisOpt := a.cfg.Redis.Options()
	a.redisClient = redis.NewClient(redisOpt)

	chClient, err := clickhouse.NewClient(a.log, &a.cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("create clickhouse client: %w", err)
	}

	if err := chClient.Start(ctx); err != nil {
		return fmt.Errorf("start clickhouse client: %w", err)
	}

	a.chClient = chClient

	teamStore, err := teams.NewPostgresStore(ctx, a.log, &a.cfg.Teams)
	if err != nil {
		return fmt.Errorf("connect teams store: %w", err)
	}

	a.teamStore = teamStore

	cached := teams.NewCachedStore(a.log, teamStore, a.redisClient, a.cfg.Redis.PrefixKey("teams"), a.cfg.Teams.CacheTTL)

	partitions := partition.NewManager(a.log, chClient, &a.cfg.ClickHouse)

	if err := partitions.EnsureCanonicalTables(ctx); err != nil {
		return fmt.Errorf("ensure rollup tables: %w", err)
	}

	orchestrator, err := backfill.NewOrchestrator(a.log, chClient, partitions, cached, &a.cfg.Backfill)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	a.queue = tasks.NewQueueManager(r.NewAsynqRedisOptions(redisOpt))

	workerService, err := NewService(a.log, &a.cfg.Worker, redisOpt, orchestrator, a.queue)
	if err != nil {
		return err
	}

	if err := workerService.Start(ctx); err != nil {
		return fmt.Errorf("start worker service: %w", err)
	}

	a.worker = workerService

	a.trigger = trigger.NewService(a.log, &a.cfg.Trigger, a.queue, cached, a.redisClient)

	if err := a.trigger.Start(ctx); err != nil {
		return fmt.Errorf("start trigger listener: %w", err)
	}

	a.log.Info("Worker started successfully")

	return nil
}

// Stop gracefully shuts down the worker application
func (a *Application) Stop() error {
	a.log.Info("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if stopFunc == nil {
			return
		}
		if err := stopFunc(); err != nil {
			a.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// Trigger first so no new tasks arrive, then the consumer.
	if a.trigger != nil {
		stopService("trigger listener", a.trigger.Stop)
	}

	if a.worker != nil {
		stopService("worker service", a.worker.Stop)
	}

	if a.queue != nil {
		stopService("queue manager", a.queue.Close)
	}

	if a.redisClient != nil {
		stopService("redis client", a.redisClient.Close)
	}

	if a.teamStore != nil {
		a.teamStore.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Stop(); err != nil {
			a.log.WithError(err).Error("Failed to stop ClickHouse client")
			return err
		}
	}

	if a.healthServer != nil {
		stopService("health check server", func() error { return a.healthServer.Shutdown(ctx) })
	}

	if a.pprofServer != nil {
		stopService("pprof server", func() error { return a.pprofServer.Shutdown(ctx) })
	}

	return nil
}

func (a *Application) startHealthCheck() {
	a.log.WithField("addr", a.cfg.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if a.worker != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("READY"))
			return
		}

		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT READY"))
	})

	a.healthServer = &http.Server{
		Addr:              a.cfg.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (a *Application) startPProf() {
	a.log.WithField("addr", a.cfg.PProfAddr).Info("Starting pprof server")

	a.pprofServer = &http.Server{
		Addr:              a.cfg.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := a.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Pprof server failed")
		}
	}()
}
