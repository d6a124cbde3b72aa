package engine

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
	"github.com/sumhouse/sumhouse/pkg/scheduler"
	"github.com/sumhouse/sumhouse/pkg/tasks"
	"github.com/sumhouse/sumhouse/pkg/teams"
	"github.com/sumhouse/sumhouse/pkg/trigger"
	"github.com/sumhouse/sumhouse/pkg/worker"
)

// Service composes the scheduler, worker, and trigger listener over shared
// clients. Each subservice keeps its own lifecycle; the engine only orders
// startup and shutdown.
type Service struct {
	cfg *Config
	log *logrus.Logger

	chClient    clickhouse.ClientInterface
	redisClient *redis.Client
	teamStore   *teams.PostgresStore
	queue       *tasks.QueueManager

	scheduler scheduler.Service
	worker    worker.Service
	trigger   *trigger.Service

	healthServer *http.Server
	pprofServer  *http.Server
}

// NewService creates a new engine service
func NewService(log *logrus.Logger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Service{
		log: log,
		cfg: cfg,
	}, nil
}

// Start initializes and starts all engine components
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Starting engine...")

	observability.StartMetricsServer(s.log, s.cfg.MetricsAddr)

	if s.cfg.HealthCheckAddr != "" {
		s.startHealthCheck()
	}

	if s.cfg.PProfAddr != "" {
		s.startPProf()
	}

	redisOpt := s.cfg.Redis.Options()
	s.redisClient = redis.NewClient(redisOpt)

	chClient, err := clickhouse.NewClient(s.log, &s.cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("create clickhouse client: %w", err)
	}

	if err := chClient.Start(ctx); err != nil {
		return fmt.Errorf("start clickhouse client: %w", err)
	}

	s.chClient = chClient

	teamStore, err := teams.NewPostgresStore(ctx, s.log, &s.cfg.Teams)
	if err != nil {
		return fmt.Errorf("connect teams store: %w", err)
	}

	s.teamStore = teamStore

	cached := teams.NewCachedStore(s.log, teamStore, s.redisClient, s.cfg.Redis.PrefixKey("teams"), s.cfg.Teams.CacheTTL)

	partitions := partition.NewManager(s.log, chClient, &s.cfg.ClickHouse)

	if err := partitions.EnsureCanonicalTables(ctx); err != nil {
		return fmt.Errorf("ensure rollup tables: %w", err)
	}

	orchestrator, err := backfill.NewOrchestrator(s.log, chClient, partitions, cached, &s.cfg.Backfill)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	s.queue = tasks.NewQueueManager(r.NewAsynqRedisOptions(redisOpt))

	schedulerService, err := scheduler.NewService(s.log, &s.cfg.Scheduler, redisOpt)
	if err != nil {
		return fmt.Errorf("create scheduler service: %w", err)
	}

	if err := schedulerService.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler service: %w", err)
	}

	s.scheduler = schedulerService

	workerService, err := worker.NewService(s.log, &s.cfg.Worker, redisOpt, orchestrator, s.queue)
	if err != nil {
		return fmt.Errorf("create worker service: %w", err)
	}

	if err := workerService.Start(ctx); err != nil {
		return fmt.Errorf("start worker service: %w", err)
	}

	s.worker = workerService

	s.trigger = trigger.NewService(s.log, &s.cfg.Trigger, s.queue, cached, s.redisClient)

	if err := s.trigger.Start(ctx); err != nil {
		return fmt.Errorf("start trigger listener: %w", err)
	}

	s.log.Info("Engine started successfully")

	return nil
}

// Stop gracefully shuts down all engine components
func (s *Service) Stop() error {
	s.log.Info("Shutting down engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if stopFunc == nil {
			return
		}
		if err := stopFunc(); err != nil {
			s.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// Scheduler first so no new sweeps are created, trigger next so no new
	// tenant tasks arrive, then the consumer drains.
	if s.scheduler != nil {
		stopService("scheduler service", s.scheduler.Stop)
	}

	if s.trigger != nil {
		stopService("trigger listener", s.trigger.Stop)
	}

	if s.worker != nil {
		stopService("worker service", s.worker.Stop)
	}

	if s.queue != nil {
		stopService("queue manager", s.queue.Close)
	}

	if s.redisClient != nil {
		stopService("redis client", s.redisClient.Close)
	}

	if s.teamStore != nil {
		s.teamStore.Close()
	}

	if s.chClient != nil {
		if err := s.chClient.Stop(); err != nil {
			s.log.WithError(err).Error("Failed to stop ClickHouse client")
			return err
		}
	}

	if s.healthServer != nil {
		stopService("health check server", func() error { return s.healthServer.Shutdown(ctx) })
	}

	if s.pprofServer != nil {
		stopService("pprof server", func() error { return s.pprofServer.Shutdown(ctx) })
	}

	return nil
}

func (s *Service) startHealthCheck() {
	s.log.WithField("addr", s.cfg.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if s.worker != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("READY"))
			return
		}

		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT READY"))
	})

	s.healthServer = &http.Server{
		Addr:              s.cfg.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (s *Service) startPProf() {
	s.log.WithField("addr", s.cfg.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              s.cfg.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := s.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Pprof server failed")
		}
	}()
}
