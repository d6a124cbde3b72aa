package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumhouse/sumhouse/internal/testutil"
	"github.com/sumhouse/sumhouse/pkg/tasks"
)

func newTestService(t *testing.T, cfg *Config) *service {
	t.Helper()

	mr := testutil.RedisServer(t)

	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	svc, err := NewService(log, cfg, &redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)

	impl, ok := svc.(*service)
	require.True(t, ok)

	return impl
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "every interval",
			cfg:  Config{Schedule: "@every 1h"},
		},
		{
			name: "cron expression",
			cfg:  Config{Schedule: "*/5 * * * *"},
		},
		{
			name:    "bad interval",
			cfg:     Config{Schedule: "@every bananas"},
			wantErr: ErrInvalidSchedule,
		},
		{
			name:    "bad cron expression",
			cfg:     Config{Schedule: "not a cron"},
			wantErr: ErrInvalidSchedule,
		},
		{
			name:    "empty schedule",
			cfg:     Config{},
			wantErr: ErrInvalidSchedule,
		},
		{
			name:    "negative days",
			cfg:     Config{Schedule: "@every 1h", Days: -1},
			wantErr: ErrNegativeDays,
		},
		{
			name:    "negative batch size",
			cfg:     Config{Schedule: "@every 1h", BatchSize: -1},
			wantErr: ErrNegativeBatchSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	assert.Equal(t, "@every 1h", cfg.Schedule)
	assert.Zero(t, cfg.Days)
	assert.Zero(t, cfg.BatchSize)

	kept := Config{Schedule: "@every 15m"}
	kept.SetDefaults()

	assert.Equal(t, "@every 15m", kept.Schedule)
}

func TestNewServiceRejectsBadSchedule(t *testing.T) {
	mr := testutil.RedisServer(t)

	_, err := NewService(logrus.New(), &Config{Schedule: "@every never"}, &redis.Options{Addr: mr.Addr()})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestBuildScheduledTask(t *testing.T) {
	svc := newTestService(t, &Config{Schedule: "@every 1h", Days: 14, BatchSize: 5})

	task, err := svc.buildScheduledTask(tasks.TypeBatchDiscovery)
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeBatchDiscovery, task.Type())

	var payload tasks.BatchDiscoveryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 14, payload.Days)
	assert.Equal(t, 5, payload.BatchSize)

	_, err = svc.buildScheduledTask("rollup:backfill:unknown")
	assert.ErrorIs(t, err, ErrUnknownScheduledTask)
}

func TestDesiredTasks(t *testing.T) {
	svc := newTestService(t, &Config{Schedule: "@every 30m"})

	desired := svc.desiredTasks()
	require.Len(t, desired, 1)
	assert.Equal(t, "@every 30m", desired[tasks.TypeBatchDiscovery])
}

func TestReconcileTask(t *testing.T) {
	t.Run("registers new entry and records ownership", func(t *testing.T) {
		svc := newTestService(t, &Config{Schedule: "@every 1h"})

		var errs []error
		res := svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", nil, &errs)

		assert.Equal(t, taskReconcileRegistered, res)
		assert.Empty(t, errs)
		assert.NotEmpty(t, svc.ownedEntryID(tasks.TypeBatchDiscovery))
	})

	t.Run("skips owned entry with unchanged spec", func(t *testing.T) {
		svc := newTestService(t, &Config{Schedule: "@every 1h"})

		var errs []error
		svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", nil, &errs)
		ownedID := svc.ownedEntryID(tasks.TypeBatchDiscovery)

		entry := &asynq.SchedulerEntry{ID: ownedID, Spec: "@every 1h"}
		res := svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", entry, &errs)

		assert.Equal(t, taskReconcileSkipped, res)
		assert.Equal(t, ownedID, svc.ownedEntryID(tasks.TypeBatchDiscovery))
	})

	t.Run("replaces entry when spec changed", func(t *testing.T) {
		svc := newTestService(t, &Config{Schedule: "@every 1h"})

		var errs []error
		svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", nil, &errs)
		oldID := svc.ownedEntryID(tasks.TypeBatchDiscovery)

		entry := &asynq.SchedulerEntry{ID: oldID, Spec: "@every 1h"}
		res := svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 2h", entry, &errs)

		assert.Equal(t, taskReconcileUpdated, res)
		assert.Empty(t, errs)
		assert.NotEqual(t, oldID, svc.ownedEntryID(tasks.TypeBatchDiscovery))
	})

	t.Run("registers own entry over a foreign one", func(t *testing.T) {
		svc := newTestService(t, &Config{Schedule: "@every 1h"})

		var errs []error
		entry := &asynq.SchedulerEntry{ID: "previous-leader-entry", Spec: "@every 1h"}
		res := svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", entry, &errs)

		assert.Equal(t, taskReconcileUpdated, res)
		assert.NotEmpty(t, svc.ownedEntryID(tasks.TypeBatchDiscovery))
	})
}

func TestUnregisterOwned(t *testing.T) {
	svc := newTestService(t, &Config{Schedule: "@every 1h"})

	var errs []error
	svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", nil, &errs)
	require.NotEmpty(t, svc.ownedEntryID(tasks.TypeBatchDiscovery))

	svc.unregisterOwned()

	assert.Empty(t, svc.ownedEntryID(tasks.TypeBatchDiscovery))
}

func TestRemoveObsoleteEntries(t *testing.T) {
	svc := newTestService(t, &Config{Schedule: "@every 1h"})

	var errs []error
	svc.reconcileTask(tasks.TypeBatchDiscovery, "@every 1h", nil, &errs)
	ownedID := svc.ownedEntryID(tasks.TypeBatchDiscovery)

	existing := map[string]*asynq.SchedulerEntry{
		tasks.TypeBatchDiscovery: {ID: ownedID, Spec: "@every 1h"},
	}

	removed := svc.removeObsoleteEntries(map[string]string{}, existing)

	assert.Equal(t, 1, removed)
	assert.Empty(t, svc.ownedEntryID(tasks.TypeBatchDiscovery))
}

func TestCalculateUniqueWindow(t *testing.T) {
	tests := []struct {
		schedule string
		want     time.Duration
	}{
		{"@every 30s", 24 * time.Second},
		{"@every 1m", 48 * time.Second},
		{"@every 1h", 5 * time.Minute},
		{"@every 1s", time.Second},
		{"0 * * * *", 30 * time.Second},
		{"@every garbage", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateUniqueWindow(tt.schedule))
		})
	}
}
