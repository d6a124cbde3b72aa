package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/sumhouse/sumhouse/pkg/backfill"
	"github.com/sumhouse/sumhouse/pkg/observability"
)

// BackfillRunner is the slice of the orchestrator the task handlers use.
type BackfillRunner interface {
	BackfillTenant(ctx context.Context, teamID int64, days int) (backfill.TenantResult, error)
	DiscoverAndBackfillBatch(ctx context.Context, days, batchSize int) (backfill.BatchResult, error)
}

// Handler executes queued backfill work.
type Handler struct {
	log    logrus.FieldLogger
	runner BackfillRunner
}

// NewHandler creates a task handler.
func NewHandler(log logrus.FieldLogger, runner BackfillRunner) *Handler {
	return &Handler{
		log:    log.WithField("component", "task-handler"),
		runner: runner,
	}
}

// HandleTenantBackfill runs one tenant backfill. Configuration errors
// skip asynq's retry; transient errors are returned for retry.
func (h *Handler) HandleTenantBackfill(ctx context.Context, t *asynq.Task) error {
	var payload TenantBackfillPayload

	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")

		return fmt.Errorf("unmarshal tenant backfill payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.log.WithFields(logrus.Fields{
		"team_id": payload.TeamID,
		"days":    payload.Days,
		"trigger": payload.Trigger,
	})
	log.Info("Starting tenant backfill task")

	startTime := time.Now()

	result, err := h.runner.BackfillTenant(ctx, payload.TeamID, payload.Days)
	if err != nil {
		observability.RecordError("task-handler", "tenant_backfill_error")

		if backfill.IsConfigError(err) {
			log.WithError(err).Warn("Tenant backfill failed with a non-retryable error")

			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		log.WithError(err).Error("Tenant backfill failed")

		return err
	}

	log.WithFields(logrus.Fields{
		"status":   result.Status,
		"reason":   result.Reason,
		"tables":   result.Tables,
		"duration": time.Since(startTime),
	}).Info("Tenant backfill task finished")

	return nil
}

// HandleBatchDiscovery runs one discovery sweep. Per-tenant failures are
// already collected by the orchestrator; only infrastructure failures
// (tenant listing) bubble up for retry.
func (h *Handler) HandleBatchDiscovery(ctx context.Context, t *asynq.Task) error {
	var payload BatchDiscoveryPayload

	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")

		return fmt.Errorf("unmarshal discovery payload: %v: %w", err, asynq.SkipRetry)
	}

	h.log.WithFields(logrus.Fields{
		"days":       payload.Days,
		"batch_size": payload.BatchSize,
	}).Info("Starting discovery sweep")

	result, err := h.runner.DiscoverAndBackfillBatch(ctx, payload.Days, payload.BatchSize)
	if err != nil {
		observability.RecordError("task-handler", "discovery_error")

		if backfill.IsConfigError(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		return err
	}

	completed, skipped, failed := result.Counts()
	h.log.WithFields(logrus.Fields{
		"completed": completed,
		"skipped":   skipped,
		"failed":    failed,
	}).Info("Discovery sweep finished")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *Handler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeTenantBackfill: h.HandleTenantBackfill,
		TypeBatchDiscovery: h.HandleBatchDiscovery,
	}
}
