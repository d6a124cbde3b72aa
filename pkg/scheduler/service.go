package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	r "github.com/sumhouse/sumhouse/pkg/redis"
	"github.com/sumhouse/sumhouse/pkg/tasks"
)

// scheduledTaskPrefix scopes reconciliation and cleanup to entries owned by
// this service. Tenant backfill tasks share the prefix but are enqueued
// directly, never registered as scheduler entries.
const scheduledTaskPrefix = "rollup:backfill:"

var (
	// ErrScheduleRegistrationFailed is returned when scheduled entries could not be registered
	ErrScheduleRegistrationFailed = errors.New("failed to register scheduled tasks")
	// ErrUnknownScheduledTask is returned for task types this service does not schedule
	ErrUnknownScheduledTask = errors.New("unknown scheduled task type")
)

// Service registers the periodic discovery sweep with Asynq. All replicas
// participate in leader election; only the leader holds scheduler entries.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
}

type service struct {
	log logrus.FieldLogger
	cfg *Config

	scheduler *asynq.Scheduler
	inspector *asynq.Inspector
	elector   LeaderElector

	mu               sync.Mutex
	owned            map[string]string // task type -> entry ID registered by this instance
	schedulerRunning bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewService creates the scheduler service
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *redis.Options) (Service, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	asynqRedis := r.NewAsynqRedisOptions(redisOpt)

	scheduler := asynq.NewScheduler(asynqRedis, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.InfoLevel,
	})

	return &service{
		log:       log.WithField("service", "scheduler"),
		cfg:       cfg,
		scheduler: scheduler,
		inspector: asynq.NewInspector(asynqRedis),
		elector:   NewLeaderElector(log, redisOpt),
		owned:     make(map[string]string),
		done:      make(chan struct{}),
	}, nil
}

// Start begins leader election and schedule maintenance
func (s *service) Start(ctx context.Context) error {
	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("start leader election: %w", err)
	}

	s.wg.Add(1)
	go s.handleLeaderElection(ctx)

	s.wg.Add(1)
	go s.runPeriodicMaintenance()

	s.log.WithField("schedule", s.cfg.Schedule).Info("Scheduler service started (participating in leader election)")

	return nil
}

// Stop gracefully shuts down the scheduler service
func (s *service) Stop() error {
	close(s.done)

	if err := s.elector.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop leader elector")
	}

	// Shutdown clears this instance's entries from Redis. A promoted
	// follower reconciles and recreates them immediately.
	s.scheduler.Shutdown()

	if err := s.inspector.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close inspector")
	}

	s.wg.Wait()

	s.log.Info("Scheduler service stopped")

	return nil
}

func (s *service) IsLeader() bool {
	return s.elector.IsLeader()
}

// handleLeaderElection reacts to promotion and demotion events. The cron
// runner starts once and stays alive across demotions; demotion empties the
// entry registry instead of stopping the runner.
func (s *service) handleLeaderElection(ctx context.Context) {
	defer s.wg.Done()

	promoted := s.elector.PromotedChan()
	demoted := s.elector.DemotedChan()

	for {
		select {
		case <-s.done:
			return

		case <-ctx.Done():
			return

		case <-promoted:
			s.log.Info("Promoted to scheduler leader")
			s.ensureSchedulerRunning()

			if err := s.reconcileSchedules(); err != nil {
				s.log.WithError(err).Error("Failed to reconcile schedules after promotion")
			}

		case <-demoted:
			s.log.Info("Demoted from scheduler leader")
			s.unregisterOwned()
		}
	}
}

func (s *service) ensureSchedulerRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedulerRunning {
		return
	}

	s.schedulerRunning = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.scheduler.Run(); err != nil {
			s.log.WithError(err).Error("Scheduler stopped with error")
		}
	}()
}

// reconcileSchedules converges registered scheduler entries on the desired
// set, skipping entries this instance already owns with an unchanged spec.
func (s *service) reconcileSchedules() error {
	desired := s.desiredTasks()
	existing := s.existingEntries()

	var (
		stats reconcileStats
		errs  []error
	)

	for taskType, schedule := range desired {
		switch s.reconcileTask(taskType, schedule, existing[taskType], &errs) {
		case taskReconcileRegistered:
			stats.registered++
		case taskReconcileUpdated:
			stats.updated++
		case taskReconcileSkipped:
			stats.skipped++
		case taskReconcileFailed:
		}
	}

	stats.removed = s.removeObsoleteEntries(desired, existing)

	s.log.WithFields(logrus.Fields{
		"total_desired": len(desired),
		"registered":    stats.registered,
		"updated":       stats.updated,
		"skipped":       stats.skipped,
		"removed":       stats.removed,
		"errors":        len(errs),
	}).Info("Schedule reconciliation complete")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %d of %d entries", ErrScheduleRegistrationFailed, len(errs), len(desired))
	}

	return nil
}

// reconcileStats holds counts for one reconciliation pass
type reconcileStats struct {
	registered int
	updated    int
	skipped    int
	removed    int
}

type taskReconcileResult int

const (
	taskReconcileRegistered taskReconcileResult = iota
	taskReconcileUpdated
	taskReconcileSkipped
	taskReconcileFailed
)

// desiredTasks maps the task types this service schedules to their specs
func (s *service) desiredTasks() map[string]string {
	return map[string]string{
		tasks.TypeBatchDiscovery: s.cfg.Schedule,
	}
}

// existingEntries returns visible scheduler entries under our prefix,
// keyed by task type. Entries registered by a previous leader remain
// visible until its heartbeat expires.
func (s *service) existingEntries() map[string]*asynq.SchedulerEntry {
	found := make(map[string]*asynq.SchedulerEntry)

	entries, err := s.inspector.SchedulerEntries()
	if err != nil {
		s.log.WithError(err).Warn("Failed to list scheduler entries, will register all tasks")
		return found
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Task.Type(), scheduledTaskPrefix) {
			found[entry.Task.Type()] = entry
		}
	}

	return found
}

func (s *service) reconcileTask(taskType, schedule string, existing *asynq.SchedulerEntry, errs *[]error) taskReconcileResult {
	if existing != nil {
		if existing.Spec == schedule && existing.ID == s.ownedEntryID(taskType) {
			s.log.WithFields(logrus.Fields{
				"task_type": taskType,
				"schedule":  schedule,
			}).Debug("Skipping unchanged scheduled task")

			return taskReconcileSkipped
		}

		// Spec changed or the entry belongs to a previous leader. Foreign
		// entries cannot be unregistered from here; they expire with their
		// owner's heartbeat and the unique window absorbs the overlap.
		_ = s.scheduler.Unregister(existing.ID)
	}

	if err := s.registerScheduledTask(taskType, schedule); err != nil {
		s.log.WithError(err).WithField("task_type", taskType).Error("Failed to register scheduled task")
		*errs = append(*errs, err)

		return taskReconcileFailed
	}

	if existing == nil {
		return taskReconcileRegistered
	}

	return taskReconcileUpdated
}

// registerScheduledTask registers one entry with the cron runner
func (s *service) registerScheduledTask(taskType, schedule string) error {
	task, err := s.buildScheduledTask(taskType)
	if err != nil {
		return err
	}

	uniqueWindow := calculateUniqueWindow(schedule)

	entryID, err := s.scheduler.Register(schedule, task,
		asynq.Queue(tasks.QueueBackfill),
		asynq.Unique(uniqueWindow),
		asynq.MaxRetry(2),
	)
	if err != nil {
		return fmt.Errorf("register %s with schedule %s: %w", taskType, schedule, err)
	}

	s.setOwnedEntry(taskType, entryID)

	s.log.WithFields(logrus.Fields{
		"task_type":     taskType,
		"schedule":      schedule,
		"unique_window": uniqueWindow.String(),
		"entry_id":      entryID,
	}).Info("Registered scheduled task")

	return nil
}

// buildScheduledTask materializes the payload for a scheduled task type.
// Asynq clones the payload on every firing, so span and batch size are
// fixed at registration time; zero values defer to backfill defaults.
func (s *service) buildScheduledTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case tasks.TypeBatchDiscovery:
		payload, err := json.Marshal(tasks.BatchDiscoveryPayload{
			Days:      s.cfg.Days,
			BatchSize: s.cfg.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal discovery payload: %w", err)
		}

		return asynq.NewTask(taskType, payload), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheduledTask, taskType)
	}
}

// removeObsoleteEntries unregisters entries under our prefix that are no
// longer desired. Returns the number removed.
func (s *service) removeObsoleteEntries(desired map[string]string, existing map[string]*asynq.SchedulerEntry) int {
	removed := 0

	for taskType, entry := range existing {
		if _, ok := desired[taskType]; ok {
			continue
		}

		if err := s.scheduler.Unregister(entry.ID); err == nil {
			s.log.WithField("task_type", taskType).Info("Removed obsolete scheduled task")
			removed++
		}

		s.clearOwnedEntry(taskType)
	}

	return removed
}

// unregisterOwned drops every entry this instance registered. Called on
// demotion so a demoted replica stops firing the sweep.
func (s *service) unregisterOwned() {
	s.mu.Lock()
	owned := s.owned
	s.owned = make(map[string]string)
	s.mu.Unlock()

	for taskType, entryID := range owned {
		if err := s.scheduler.Unregister(entryID); err != nil {
			s.log.WithError(err).WithField("task_type", taskType).Warn("Failed to unregister scheduled task")
			continue
		}

		s.log.WithField("task_type", taskType).Info("Unregistered scheduled task")
	}
}

// runPeriodicMaintenance re-registers missing entries and removes duplicate
// ones while leader. The interval is randomized so replicas promoted at the
// same moment do not sweep in lockstep.
func (s *service) runPeriodicMaintenance() {
	defer s.wg.Done()

	for {
		intervalBig, _ := rand.Int(rand.Reader, big.NewInt(60))
		timer := time.NewTimer(time.Duration(60+intervalBig.Int64()) * time.Second)

		select {
		case <-s.done:
			timer.Stop()
			return

		case <-timer.C:
			if !s.elector.IsLeader() {
				continue
			}

			s.healMissingEntries()
			s.removeDuplicateEntries()
		}
	}
}

// healMissingEntries re-runs reconciliation when a desired entry has no
// registration, covering registration failures at promotion time.
func (s *service) healMissingEntries() {
	for taskType := range s.desiredTasks() {
		if s.ownedEntryID(taskType) != "" {
			continue
		}

		s.log.WithField("task_type", taskType).Debug("Re-registering missing scheduled task")

		if err := s.reconcileSchedules(); err != nil {
			s.log.WithError(err).Warn("Schedule heal failed")
		}

		return
	}
}

// removeDuplicateEntries keeps this instance's entry per task type and
// unregisters the rest. Unregister succeeds only for entries in this
// instance's registry; foreign duplicates expire on their own.
func (s *service) removeDuplicateEntries() {
	entries, err := s.inspector.SchedulerEntries()
	if err != nil {
		return
	}

	groups := make(map[string][]*asynq.SchedulerEntry, len(entries))

	for _, entry := range entries {
		taskType := entry.Task.Type()
		if strings.HasPrefix(taskType, scheduledTaskPrefix) {
			groups[taskType] = append(groups[taskType], entry)
		}
	}

	for taskType, group := range groups {
		if len(group) < 2 {
			continue
		}

		keep := s.ownedEntryID(taskType)
		if keep == "" {
			keep = group[0].ID
		}

		for _, entry := range group {
			if entry.ID != keep {
				_ = s.scheduler.Unregister(entry.ID)
			}
		}
	}
}

func (s *service) ownedEntryID(taskType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.owned[taskType]
}

func (s *service) setOwnedEntry(taskType, entryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.owned[taskType] = entryID
}

func (s *service) clearOwnedEntry(taskType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.owned, taskType)
}

// calculateUniqueWindow derives the Asynq uniqueness window from the
// schedule. @every intervals get 80% of the interval clamped to [1s, 5m];
// cron expressions get a flat 30 seconds.
func calculateUniqueWindow(schedule string) time.Duration {
	const defaultWindow = 30 * time.Second

	if !strings.HasPrefix(schedule, "@every ") {
		return defaultWindow
	}

	interval, err := time.ParseDuration(strings.TrimPrefix(schedule, "@every "))
	if err != nil {
		return defaultWindow
	}

	uniqueWindow := time.Duration(float64(interval) * 0.8)

	if uniqueWindow < time.Second {
		return time.Second
	}

	if uniqueWindow > 5*time.Minute {
		return 5 * time.Minute
	}

	return uniqueWindow
}
