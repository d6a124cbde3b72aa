package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sumhouse/sumhouse/pkg/backfill"
	"github.com/sumhouse/sumhouse/pkg/teams"
)

type fakeRunner struct {
	tenantResult backfill.TenantResult
	tenantErr    error
	batchResult  backfill.BatchResult
	batchErr     error

	tenantCalls []int64
	batchCalls  int
}

func (f *fakeRunner) BackfillTenant(_ context.Context, teamID int64, _ int) (backfill.TenantResult, error) {
	f.tenantCalls = append(f.tenantCalls, teamID)

	return f.tenantResult, f.tenantErr
}

func (f *fakeRunner) DiscoverAndBackfillBatch(_ context.Context, _, _ int) (backfill.BatchResult, error) {
	f.batchCalls++

	return f.batchResult, f.batchErr
}

func newTestHandler(runner *fakeRunner) *Handler {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewHandler(log, runner)
}

func tenantTask(t *testing.T, payload TenantBackfillPayload) *asynq.Task {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	return asynq.NewTask(TypeTenantBackfill, data)
}

func TestHandleTenantBackfillSuccess(t *testing.T) {
	runner := &fakeRunner{tenantResult: backfill.TenantResult{Status: backfill.StatusCompleted}}
	h := newTestHandler(runner)

	task := tenantTask(t, TenantBackfillPayload{TeamID: 7, Days: 30, Trigger: TriggerFlagChange})
	require.NoError(t, h.HandleTenantBackfill(context.Background(), task))
	assert.Equal(t, []int64{7}, runner.tenantCalls)
}

func TestHandleTenantBackfillConfigErrorSkipsRetry(t *testing.T) {
	runner := &fakeRunner{tenantErr: teams.ErrTeamNotFound}
	h := newTestHandler(runner)

	task := tenantTask(t, TenantBackfillPayload{TeamID: 404})
	err := h.HandleTenantBackfill(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry, "config errors must not be retried")
}

func TestHandleTenantBackfillTransientErrorRetries(t *testing.T) {
	runner := &fakeRunner{tenantErr: errors.New("connection refused")}
	h := newTestHandler(runner)

	task := tenantTask(t, TenantBackfillPayload{TeamID: 7})
	err := h.HandleTenantBackfill(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry, "transient errors must stay retryable")
}

func TestHandleTenantBackfillBadPayload(t *testing.T) {
	h := newTestHandler(&fakeRunner{})

	task := asynq.NewTask(TypeTenantBackfill, []byte("{not json"))
	err := h.HandleTenantBackfill(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleBatchDiscovery(t *testing.T) {
	runner := &fakeRunner{batchResult: backfill.BatchResult{Completed: []int64{1, 2}}}
	h := newTestHandler(runner)

	data, err := json.Marshal(BatchDiscoveryPayload{Days: 30, BatchSize: 10})
	require.NoError(t, err)

	require.NoError(t, h.HandleBatchDiscovery(context.Background(), asynq.NewTask(TypeBatchDiscovery, data)))
	assert.Equal(t, 1, runner.batchCalls)
}

func TestHandleBatchDiscoveryListFailureRetries(t *testing.T) {
	runner := &fakeRunner{batchErr: errors.New("pg down")}
	h := newTestHandler(runner)

	data, err := json.Marshal(BatchDiscoveryPayload{})
	require.NoError(t, err)

	err = h.HandleBatchDiscovery(context.Background(), asynq.NewTask(TypeBatchDiscovery, data))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestRoutes(t *testing.T) {
	h := newTestHandler(&fakeRunner{})
	routes := h.Routes()

	assert.Contains(t, routes, TypeTenantBackfill)
	assert.Contains(t, routes, TypeBatchDiscovery)
}
