// Package worker consumes the backfill queue and executes rollup tasks
// through the orchestrator.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	r "github.com/sumhouse/sumhouse/pkg/redis"
	"github.com/sumhouse/sumhouse/pkg/tasks"
)

// Service defines the public interface for the worker service
type Service interface {
	// Start begins consuming the backfill queue
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

type service struct {
	log      logrus.FieldLogger
	cfg      *Config
	redisOpt *redis.Options
	runner   tasks.BackfillRunner
	queue    *tasks.QueueManager

	server *asynq.Server

	done chan struct{}
	wg   sync.WaitGroup
}

// NewService creates a worker that processes backfill tasks with the given
// runner. The queue manager is optional and only feeds queue depth gauges.
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *redis.Options, runner tasks.BackfillRunner, queue *tasks.QueueManager) (Service, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if runner == nil {
		return nil, ErrRunnerRequired
	}

	return &service{
		log:      log.WithField("service", "worker"),
		cfg:      cfg,
		redisOpt: redisOpt,
		runner:   runner,
		queue:    queue,
		done:     make(chan struct{}),
	}, nil
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	handler := tasks.NewHandler(s.log, s.runner)

	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	srv := asynq.NewServer(r.NewAsynqRedisOptions(s.redisOpt), asynq.Config{
		Concurrency: s.cfg.Concurrency,
		Queues: map[string]int{
			tasks.QueueBackfill: 10,
		},
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if runErr := srv.Run(mux); runErr != nil {
			s.log.WithError(runErr).Error("Worker server stopped with error")
		}
	}()

	s.server = srv

	if s.queue != nil {
		s.wg.Add(1)
		go s.pollQueueDepth()
	}

	s.log.WithFields(logrus.Fields{
		"concurrency": s.cfg.Concurrency,
		"queue":       tasks.QueueBackfill,
	}).Info("Worker service started")

	return nil
}

// Stop gracefully shuts down the worker service
func (s *service) Stop() error {
	close(s.done)

	if s.server != nil {
		s.server.Shutdown()
	}

	s.wg.Wait()

	s.log.Info("Worker service stopped")

	return nil
}

// pollQueueDepth refreshes queue depth gauges while the worker runs
func (s *service) pollQueueDepth() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C:
			s.queue.RecordQueueDepth(tasks.QueueBackfill)
		}
	}
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
