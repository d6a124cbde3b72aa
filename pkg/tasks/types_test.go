package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantBackfillPayloadUniqueID(t *testing.T) {
	payload := TenantBackfillPayload{TeamID: 7, Days: 30}
	assert.Equal(t, "backfill:tenant:7:days:30", payload.UniqueID())

	// Same tenant, different span is a distinct task.
	other := TenantBackfillPayload{TeamID: 7, Days: 90}
	assert.NotEqual(t, payload.UniqueID(), other.UniqueID())
}

func TestTenantBackfillPayloadQueue(t *testing.T) {
	assert.Equal(t, "backfill", TenantBackfillPayload{TeamID: 7}.QueueName())
}

func TestBatchDiscoveryPayloadIdentity(t *testing.T) {
	a := BatchDiscoveryPayload{Days: 30, BatchSize: 10}
	b := BatchDiscoveryPayload{Days: 90, BatchSize: 5}

	assert.Equal(t, a.UniqueID(), b.UniqueID(), "only one sweep may be queued at a time")
	assert.Equal(t, "backfill", a.QueueName())
}
