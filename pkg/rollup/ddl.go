package rollup

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sumhouse/sumhouse/pkg/sqlbuilder"
)

// DDLOptions tunes table creation for one environment.
type DDLOptions struct {
	// OnCluster propagates the statement across a named cluster.
	OnCluster string

	// Replicated selects the Replicated* engine family.
	Replicated bool

	// ForceUniqueReplicationKey appends a random suffix to the replication
	// path. Staging tables need this: two historical backfills may build
	// staging tables concurrently, and reusing a previous incarnation's
	// replication path would make the new table adopt its leftovers.
	ForceUniqueReplicationKey bool

	// Replace emits CREATE OR REPLACE instead of CREATE IF NOT EXISTS,
	// discarding any previous table of the same name.
	Replace bool

	// TargetName overrides the spec's table name, used for staging tables.
	TargetName string
}

// DropOptions tunes partition drops.
type DropOptions struct {
	OnCluster string
	IfExists  bool
}

// BuildTableDDL renders the create statement for a rollup table. Hourly
// specs keep calendar-day partitions and rely on their TTL to expire old
// rows, so partition counts stay low and day-level swaps keep working.
func BuildTableDDL(spec *TableSpec, opts DDLOptions) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	name := opts.TargetName
	if name == "" {
		name = spec.Name
	}

	columns := make([]sqlbuilder.ColumnDef, 0, 2+len(spec.Dimensions)+len(spec.Aggregates))
	columns = append(columns,
		sqlbuilder.ColumnDef{Name: "period_bucket", Type: "DateTime"},
		sqlbuilder.ColumnDef{Name: "team_id", Type: "UInt64"},
	)

	for _, d := range spec.Dimensions {
		columns = append(columns, sqlbuilder.ColumnDef{Name: d.Name, Type: d.Type})
	}

	for _, a := range spec.Aggregates {
		columns = append(columns, sqlbuilder.ColumnDef{Name: a.Name, Type: a.Type})
	}

	stmt := sqlbuilder.CreateTable{
		Name:        name,
		OnCluster:   opts.OnCluster,
		IfNotExists: !opts.Replace,
		Replace:     opts.Replace,
		Columns:     columns,
		Engine:      tableEngine(name, opts),
		PartitionBy: spec.PartitionBy(),
		OrderBy:     spec.OrderByColumns(),
		TTL:         spec.TTL,
	}

	if spec.StoragePolicy != "" {
		stmt.Settings = map[string]string{"storage_policy": sqlbuilder.Quote(spec.StoragePolicy)}
	}

	return stmt.SQL()
}

func tableEngine(name string, opts DDLOptions) string {
	if !opts.Replicated {
		return "AggregatingMergeTree()"
	}

	path := fmt.Sprintf("/clickhouse/tables/{shard}/{database}/%s", name)
	if opts.ForceUniqueReplicationKey {
		path = fmt.Sprintf("%s_%s", path, uuid.NewString())
	}

	return fmt.Sprintf("ReplicatedAggregatingMergeTree('%s', '{replica}')", path)
}

// BuildDropPartitionDDL renders the drop statement for the partition
// covering a calendar date, or a date plus hour when the granularity is
// hourly. Unrecognized granularities use the daily key format, matching
// PartitionKey's permissive fallback.
func BuildDropPartitionDDL(table, dateOrHour, granularity string, opts DropOptions) (string, error) {
	stmt := sqlbuilder.AlterDropPartition{
		Table:     table,
		OnCluster: opts.OnCluster,
		IfExists:  opts.IfExists,
		Partition: PartitionKey(dateOrHour, granularity),
	}

	return stmt.SQL()
}
