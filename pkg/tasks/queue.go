package tasks

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sumhouse/sumhouse/pkg/observability"
)

// ErrTaskAlreadyQueued is returned when an identical task is already
// pending or running; callers treat it as a successful no-op.
var ErrTaskAlreadyQueued = errors.New("task already queued")

// QueueManager manages task queuing
type QueueManager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewQueueManager creates a new queue manager
func NewQueueManager(redisOpt *asynq.RedisClientOpt) *QueueManager {
	return &QueueManager{
		client:    asynq.NewClient(*redisOpt),
		inspector: asynq.NewInspector(*redisOpt),
	}
}

// EnqueueTenantBackfill enqueues a tenant backfill task. Tasks are
// deduplicated by payload identity, so re-enqueueing a pending tenant
// returns ErrTaskAlreadyQueued.
func (q *QueueManager) EnqueueTenantBackfill(payload TenantBackfillPayload, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeTenantBackfill, data)

	// Default options
	defaultOpts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(payload.QueueName()),
		asynq.MaxRetry(5),
		asynq.Timeout(2 * time.Hour),
	}

	allOpts := defaultOpts
	allOpts = append(allOpts, opts...)

	if _, err = q.client.Enqueue(task, allOpts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return ErrTaskAlreadyQueued
		}

		return err
	}

	observability.RecordTaskEnqueued(TypeTenantBackfill, payload.Trigger)

	return nil
}

// EnqueueBatchDiscovery enqueues a discovery sweep. At most one sweep is
// queued at a time.
func (q *QueueManager) EnqueueBatchDiscovery(payload BatchDiscoveryPayload, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeBatchDiscovery, data)

	defaultOpts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(payload.QueueName()),
		asynq.MaxRetry(2),
		asynq.Timeout(4 * time.Hour),
	}

	allOpts := defaultOpts
	allOpts = append(allOpts, opts...)

	if _, err = q.client.Enqueue(task, allOpts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return ErrTaskAlreadyQueued
		}

		return err
	}

	observability.RecordTaskEnqueued(TypeBatchDiscovery, TriggerScheduled)

	return nil
}

// IsTaskPendingOrRunning checks if a task is pending or running
func (q *QueueManager) IsTaskPendingOrRunning(queue, taskID string) (bool, error) {
	info, err := q.inspector.GetTaskInfo(queue, taskID)
	if err != nil {
		if strings.Contains(err.Error(), "NOT FOUND") || strings.Contains(err.Error(), "queue not found") || strings.Contains(err.Error(), "task not found") {
			return false, nil
		}

		return false, err
	}

	return info.State == asynq.TaskStatePending ||
		info.State == asynq.TaskStateActive ||
		info.State == asynq.TaskStateRetry, nil
}

// GetQueueStats returns queue statistics
func (q *QueueManager) GetQueueStats(queueName string) (*asynq.QueueInfo, error) {
	return q.inspector.GetQueueInfo(queueName)
}

// RecordQueueDepth refreshes the queue depth gauges for one queue.
// Missing queues (nothing enqueued yet) are reported as empty.
func (q *QueueManager) RecordQueueDepth(queueName string) {
	info, err := q.inspector.GetQueueInfo(queueName)
	if err != nil {
		observability.QueueDepth.WithLabelValues(queueName, "pending").Set(0)
		observability.QueueDepth.WithLabelValues(queueName, "active").Set(0)
		observability.QueueDepth.WithLabelValues(queueName, "retry").Set(0)

		return
	}

	observability.QueueDepth.WithLabelValues(queueName, "pending").Set(float64(info.Pending))
	observability.QueueDepth.WithLabelValues(queueName, "active").Set(float64(info.Active))
	observability.QueueDepth.WithLabelValues(queueName, "retry").Set(float64(info.Retry))
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	return q.client.Close()
}
