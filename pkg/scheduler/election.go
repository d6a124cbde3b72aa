package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sumhouse/sumhouse/pkg/observability"
)

const (
	leaderKey     = "sumhouse:scheduler:leader"
	leaseTTL      = 10 * time.Second
	renewInterval = 3 * time.Second
)

// LeaderElector coordinates scheduler replicas through a Redis lease so that
// only one instance registers periodic tasks at a time.
type LeaderElector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool

	// PromotedChan signals when this instance acquires the lease.
	PromotedChan() <-chan struct{}
	// DemotedChan signals when this instance loses the lease.
	DemotedChan() <-chan struct{}
}

type elector struct {
	log        logrus.FieldLogger
	redis      *redis.Client
	instanceID string

	isLeader bool
	mu       sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup

	promoted chan struct{}
	demoted  chan struct{}
}

// NewLeaderElector creates an elector identified by a random instance ID.
// The caller owns the lifecycle; Stop relinquishes the lease if held.
func NewLeaderElector(log logrus.FieldLogger, redisOpt *redis.Options) LeaderElector {
	return &elector{
		log:        log.WithField("component", "election"),
		redis:      redis.NewClient(redisOpt),
		instanceID: uuid.New().String(),
		done:       make(chan struct{}),
		promoted:   make(chan struct{}, 1),
		demoted:    make(chan struct{}, 1),
	}
}

func (e *elector) Start(ctx context.Context) error {
	e.log.WithField("instance_id", e.instanceID).Info("Starting leader election")

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

func (e *elector) Stop() error {
	e.log.Info("Stopping leader election")
	close(e.done)

	e.relinquish(context.Background())

	e.wg.Wait()

	if err := e.redis.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close Redis client")
	}

	e.log.Info("Leader election stopped")

	return nil
}

func (e *elector) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	// First attempt happens immediately so a fresh deployment does not sit
	// leaderless for a full renew interval.
	for {
		e.observe(ctx)

		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// observe runs one election round and emits promotion/demotion transitions.
func (e *elector) observe(ctx context.Context) {
	wasLeader := e.IsLeader()
	acquired := e.tryAcquire(ctx)

	switch {
	case acquired && !wasLeader:
		e.setLeader(true)
		e.log.WithField("instance_id", e.instanceID).Info("Promoted to leader")

		select {
		case e.promoted <- struct{}{}:
		default:
		}

	case !acquired && wasLeader:
		e.setLeader(false)
		e.log.WithField("instance_id", e.instanceID).Info("Demoted from leader")

		select {
		case e.demoted <- struct{}{}:
		default:
		}
	}
}

// tryAcquire attempts to take or renew the lease. Returns whether this
// instance holds the lease after the attempt.
func (e *elector) tryAcquire(ctx context.Context) bool {
	ok, err := e.redis.SetNX(ctx, leaderKey, e.instanceID, leaseTTL).Result()
	if err != nil {
		e.log.WithError(err).Warn("Leader election attempt failed")
		return false
	}

	if ok {
		return true
	}

	owner, err := e.redis.Get(ctx, leaderKey).Result()
	if err != nil {
		e.log.WithError(err).Warn("Failed to read leader key")
		return false
	}

	if owner != e.instanceID {
		return false
	}

	// Still the owner, push the lease forward.
	if err := e.redis.Expire(ctx, leaderKey, leaseTTL).Err(); err != nil {
		e.log.WithError(err).Warn("Failed to renew leader lease")
		return false
	}

	return true
}

// relinquish deletes the lease if this instance owns it so a follower can
// take over without waiting for expiry.
func (e *elector) relinquish(ctx context.Context) {
	if !e.IsLeader() {
		return
	}

	owner, err := e.redis.Get(ctx, leaderKey).Result()
	if err == nil && owner == e.instanceID {
		if err := e.redis.Del(ctx, leaderKey).Err(); err != nil {
			e.log.WithError(err).Warn("Failed to release leader lease")
		}
	}

	e.setLeader(false)
}

func (e *elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader
}

func (e *elector) setLeader(leader bool) {
	e.mu.Lock()
	e.isLeader = leader
	e.mu.Unlock()

	if leader {
		observability.SchedulerLeader.Set(1)
	} else {
		observability.SchedulerLeader.Set(0)
	}
}

func (e *elector) PromotedChan() <-chan struct{} {
	return e.promoted
}

func (e *elector) DemotedChan() <-chan struct{} {
	return e.demoted
}
