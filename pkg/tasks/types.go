// Package tasks provides task queue management using Asynq
package tasks

import (
	"fmt"
	"time"
)

const (
	// TypeTenantBackfill is the task type rebuilding one tenant's rollups
	TypeTenantBackfill = "rollup:backfill:tenant"
	// TypeBatchDiscovery is the scheduled task that finds eligible tenants
	// and backfills them in batches
	TypeBatchDiscovery = "rollup:backfill:discover"
)

// QueueBackfill is the queue all rollup backfill work lands on.
const QueueBackfill = "backfill"

// Trigger labels say how a task entered the queue.
const (
	TriggerFlagChange = "flag_change"
	TriggerScheduled  = "scheduled"
	TriggerManual     = "manual"
)

// TenantBackfillPayload asks for one tenant's rollup tables to be
// rebuilt over the trailing day span.
type TenantBackfillPayload struct {
	TeamID     int64     `json:"team_id"`
	Days       int       `json:"days"` // 0 means the configured default
	Trigger    string    `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UniqueID returns the task identity. Duplicate enqueues of the same
// tenant+span are no-ops while a matching task is pending or running.
func (p TenantBackfillPayload) UniqueID() string {
	return fmt.Sprintf("backfill:tenant:%d:days:%d", p.TeamID, p.Days)
}

// QueueName returns the queue this task belongs on.
func (p TenantBackfillPayload) QueueName() string {
	return QueueBackfill
}

// BatchDiscoveryPayload asks for one discovery sweep over flag-enabled
// tenants.
type BatchDiscoveryPayload struct {
	Days       int       `json:"days"`       // 0 means the configured default
	BatchSize  int       `json:"batch_size"` // 0 means the configured default
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UniqueID keeps at most one discovery sweep in flight.
func (p BatchDiscoveryPayload) UniqueID() string {
	return "backfill:discover"
}

// QueueName returns the queue this task belongs on.
func (p BatchDiscoveryPayload) QueueName() string {
	return QueueBackfill
}
