package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// TenantBackfillsTotal tracks tenant backfill outcomes
	TenantBackfillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_tenant_backfills_total",
			Help: "Total number of tenant backfill attempts",
		},
		[]string{"status", "reason"}, // status: completed, skipped, failed
	)

	// TenantBackfillDuration measures tenant backfill duration in seconds
	TenantBackfillDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sumhouse_tenant_backfill_duration_seconds",
			Help:    "Tenant backfill duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~30m
		},
		[]string{"status"},
	)

	// TableBackfillsTotal tracks per-table backfill runs
	TableBackfillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_table_backfills_total",
			Help: "Total number of per-table backfill runs",
		},
		[]string{"table", "mode", "status"}, // mode: daily, historical
	)

	// BackfillDaysClamped counts requests whose day span hit the hard ceiling
	BackfillDaysClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sumhouse_backfill_days_clamped_total",
			Help: "Number of backfill requests clamped to the maximum day span",
		},
	)

	// SQLStatementsTotal counts statements executed against ClickHouse
	SQLStatementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_sql_statements_total",
			Help: "Total number of SQL statements executed",
		},
		[]string{"kind", "status"}, // kind: SELECT, INSERT, ALTER, ...; status: success, error
	)

	// SQLStatementDuration measures statement execution time
	SQLStatementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sumhouse_sql_statement_duration_seconds",
			Help:    "SQL statement execution time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
		},
		[]string{"kind"},
	)

	// PartitionDropsTotal counts partition drops per table
	PartitionDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_partition_drops_total",
			Help: "Total number of partition drops issued",
		},
		[]string{"table"},
	)

	// PartitionSwapsTotal counts staging-to-destination partition swaps
	PartitionSwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_partition_swaps_total",
			Help: "Total number of partition replace-from-staging swaps",
		},
		[]string{"table"},
	)

	// TasksEnqueued counts backfill tasks pushed onto the queue
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"task_type", "trigger"}, // trigger: flag_change, scheduled, manual
	)

	// QueueDepth measures number of tasks in queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sumhouse_queue_depth",
			Help: "Number of tasks in queue",
		},
		[]string{"queue", "state"}, // state: pending, active, scheduled, retry
	)

	// TeamCacheHits counts team config cache hits
	TeamCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sumhouse_team_cache_hits_total",
			Help: "Total number of team config cache hits",
		},
	)

	// TeamCacheMisses counts team config cache misses
	TeamCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sumhouse_team_cache_misses_total",
			Help: "Total number of team config cache misses",
		},
	)

	// SchedulerLeader indicates whether this instance holds the scheduler lease
	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sumhouse_scheduler_leader",
			Help: "Whether this instance is the scheduler leader (1=leader)",
		},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumhouse_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordSQLStatement records one executed statement.
func RecordSQLStatement(kind string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	SQLStatementsTotal.WithLabelValues(kind, status).Inc()
	SQLStatementDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTenantBackfill records the outcome of one tenant backfill attempt.
func RecordTenantBackfill(status, reason string, duration time.Duration) {
	TenantBackfillsTotal.WithLabelValues(status, reason).Inc()
	TenantBackfillDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTableBackfill records one per-table backfill run.
func RecordTableBackfill(table, mode, status string) {
	TableBackfillsTotal.WithLabelValues(table, mode, status).Inc()
}

// RecordPartitionDrop records a partition drop.
func RecordPartitionDrop(table string) {
	PartitionDropsTotal.WithLabelValues(table).Inc()
}

// RecordPartitionSwap records a replace-from-staging swap.
func RecordPartitionSwap(table string) {
	PartitionSwapsTotal.WithLabelValues(table).Inc()
}

// RecordTaskEnqueued records a task enqueue.
func RecordTaskEnqueued(taskType, trigger string) {
	TasksEnqueued.WithLabelValues(taskType, trigger).Inc()
}

// RecordTeamCacheHit records a team config cache hit.
func RecordTeamCacheHit() {
	TeamCacheHits.Inc()
}

// RecordTeamCacheMiss records a team config cache miss.
func RecordTeamCacheMiss() {
	TeamCacheMisses.Inc()
}

// RecordError records an error.
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
