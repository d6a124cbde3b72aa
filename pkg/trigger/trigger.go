// Package trigger turns tenant flag-change events into queued backfill
// work. The application owning the teams table publishes an event
// whenever the rollup flag flips; enabling a tenant enqueues a backfill
// task, and every change invalidates the cached team row.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sumhouse/sumhouse/pkg/tasks"
)

// FlagChange is one rollup flag transition for one tenant.
type FlagChange struct {
	TeamID     int64 `json:"team_id"`
	OldEnabled bool  `json:"old_enabled"`
	NewEnabled bool  `json:"new_enabled"`
}

// Enqueuer is the queue slice the trigger needs.
type Enqueuer interface {
	EnqueueTenantBackfill(payload tasks.TenantBackfillPayload, opts ...asynq.Option) error
}

// Invalidator drops cached team rows after a flag change.
type Invalidator interface {
	Invalidate(ctx context.Context, teamID int64)
}

// Service consumes flag-change events, from direct calls or from the
// configured Redis channel.
type Service struct {
	log   logrus.FieldLogger
	cfg   *Config
	queue Enqueuer
	cache Invalidator
	redis *redis.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a trigger service. cache may be nil when no team
// cache is in use; redisClient may be nil to disable the listener.
func NewService(log logrus.FieldLogger, cfg *Config, queue Enqueuer, cache Invalidator, redisClient *redis.Client) *Service {
	cfg.SetDefaults()

	return &Service{
		log:   log.WithField("component", "trigger"),
		cfg:   cfg,
		queue: queue,
		cache: cache,
		redis: redisClient,
	}
}

// HandleFlagChange applies one transition: every change invalidates the
// cached row, and false to true enqueues a tenant backfill.
func (s *Service) HandleFlagChange(ctx context.Context, change FlagChange) error {
	log := s.log.WithFields(logrus.Fields{
		"team_id": change.TeamID,
		"old":     change.OldEnabled,
		"new":     change.NewEnabled,
	})

	if change.OldEnabled == change.NewEnabled {
		log.Debug("Ignoring flag event without a transition")

		return nil
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, change.TeamID)
	}

	if !change.NewEnabled {
		log.Info("Rollups disabled for tenant")

		return nil
	}

	err := s.queue.EnqueueTenantBackfill(tasks.TenantBackfillPayload{
		TeamID:     change.TeamID,
		Days:       s.cfg.Days,
		Trigger:    tasks.TriggerFlagChange,
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, tasks.ErrTaskAlreadyQueued) {
			log.Debug("Backfill already queued for tenant")

			return nil
		}

		return err
	}

	log.Info("Enqueued tenant backfill after flag enable")

	return nil
}

// Start subscribes to the flag-change channel and consumes events until
// Stop. With no Redis client the service only serves direct calls.
func (s *Service) Start(ctx context.Context) error {
	if s.redis == nil {
		s.log.Debug("No Redis client, flag-change listener disabled")

		return nil
	}

	listenCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	pubsub := s.redis.Subscribe(listenCtx, s.cfg.Channel)

	// Confirm the subscription before declaring the service started.
	if _, err := pubsub.Receive(listenCtx); err != nil {
		cancel()

		return err
	}

	s.log.WithField("channel", s.cfg.Channel).Info("Listening for tenant flag changes")

	go s.consume(listenCtx, pubsub)

	return nil
}

func (s *Service) consume(ctx context.Context, pubsub *redis.PubSub) {
	defer close(s.done)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close flag-change subscription")
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var change FlagChange

			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.log.WithError(err).WithField("payload", msg.Payload).Warn("Ignoring malformed flag-change event")

				continue
			}

			if err := s.HandleFlagChange(ctx, change); err != nil {
				s.log.WithError(err).WithField("team_id", change.TeamID).Error("Failed to handle flag change")
			}
		}
	}
}

// Stop terminates the listener.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	return nil
}
