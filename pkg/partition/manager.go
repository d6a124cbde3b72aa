// Package partition manages the physical lifecycle of rollup tables:
// creation, partition drops ahead of rewrites, and the staging swaps that
// move recomputed data into place.
package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sumhouse/sumhouse/pkg/clickhouse"
	"github.com/sumhouse/sumhouse/pkg/observability"
	"github.com/sumhouse/sumhouse/pkg/rollup"
	"github.com/sumhouse/sumhouse/pkg/sqlbuilder"
)

// Manager issues partition DDL against ClickHouse. All table names are
// routed through the cluster config so clustered deployments address
// local tables with ON CLUSTER.
type Manager struct {
	log logrus.FieldLogger
	ch  clickhouse.ClientInterface
	cfg *clickhouse.Config
}

// NewManager creates a partition manager.
func NewManager(log logrus.FieldLogger, ch clickhouse.ClientInterface, cfg *clickhouse.Config) *Manager {
	return &Manager{
		log: log.WithField("component", "partition"),
		ch:  ch,
		cfg: cfg,
	}
}

func (m *Manager) ddlOptions() rollup.DDLOptions {
	return rollup.DDLOptions{
		OnCluster:  m.cfg.Cluster,
		Replicated: m.cfg.Cluster != "",
	}
}

// Cluster returns the configured cluster name, empty for single-node.
func (m *Manager) Cluster() string {
	return m.cfg.Cluster
}

// LocalTable maps a logical table name to the cluster-local one DDL and
// mutations must address.
func (m *Manager) LocalTable(table string) string {
	return m.cfg.LocalTable(table)
}

// EnsureTable creates the table for spec when it does not already exist.
func (m *Manager) EnsureTable(ctx context.Context, spec *rollup.TableSpec) error {
	ddl, err := rollup.BuildTableDDL(spec, m.ddlOptions())
	if err != nil {
		return fmt.Errorf("build DDL for %s: %w", spec.Name, err)
	}

	if err := m.ch.Execute(ctx, ddl, nil); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}

	m.log.WithField("table", spec.Name).Debug("Ensured rollup table exists")

	return nil
}

// EnsureCanonicalTables creates all standard rollup tables.
func (m *Manager) EnsureCanonicalTables(ctx context.Context) error {
	specs, err := rollup.CanonicalTables()
	if err != nil {
		return fmt.Errorf("build canonical table specs: %w", err)
	}

	for _, spec := range specs {
		if err := m.EnsureTable(ctx, spec); err != nil {
			return err
		}
	}

	return nil
}

// DropPartition removes one date partition from table. dateOrHour takes
// "YYYY-MM-DD" or "YYYY-MM-DD H" per the table's granularity.
func (m *Manager) DropPartition(ctx context.Context, table, dateOrHour string, granularity rollup.Granularity, ifExists bool) error {
	ddl, err := rollup.BuildDropPartitionDDL(m.cfg.LocalTable(table), dateOrHour, string(granularity), rollup.DropOptions{
		OnCluster: m.cfg.Cluster,
		IfExists:  ifExists,
	})
	if err != nil {
		return fmt.Errorf("build drop partition DDL for %s: %w", table, err)
	}

	if err := m.ch.Execute(ctx, ddl, nil); err != nil {
		return fmt.Errorf("drop partition %s on %s: %w", rollup.PartitionKey(dateOrHour, string(granularity)), table, err)
	}

	observability.RecordPartitionDrop(table)

	return nil
}

// DropDayPartitions drops every whole-day partition of table covered by
// [start, end). A window ending at midnight does not touch the end day.
func (m *Manager) DropDayPartitions(ctx context.Context, table string, start, end time.Time, ifExists bool) error {
	for _, key := range rollup.DayKeysBetween(start, end) {
		ddl, err := (&sqlbuilder.AlterDropPartition{
			Table:     m.cfg.LocalTable(table),
			OnCluster: m.cfg.Cluster,
			IfExists:  ifExists,
			Partition: key,
		}).SQL()
		if err != nil {
			return fmt.Errorf("build drop partition DDL for %s: %w", table, err)
		}

		if err := m.ch.Execute(ctx, ddl, nil); err != nil {
			return fmt.Errorf("drop partition %s on %s: %w", key, table, err)
		}

		observability.RecordPartitionDrop(table)
	}

	return nil
}

// CreateStagingTable builds a fresh staging twin for spec. The table is
// created with CREATE OR REPLACE so leftovers from an aborted run are
// discarded, and replicated engines get a unique replication key so the
// replaced table's ZooKeeper path is never reused.
func (m *Manager) CreateStagingTable(ctx context.Context, spec *rollup.TableSpec) (string, error) {
	staging := m.cfg.LocalTable(spec.StagingName())

	opts := m.ddlOptions()
	opts.Replace = true
	opts.ForceUniqueReplicationKey = true
	opts.TargetName = staging

	ddl, err := rollup.BuildTableDDL(spec, opts)
	if err != nil {
		return "", fmt.Errorf("build staging DDL for %s: %w", spec.Name, err)
	}

	if err := m.ch.Execute(ctx, ddl, nil); err != nil {
		return "", fmt.Errorf("create staging table %s: %w", staging, err)
	}

	m.log.WithFields(logrus.Fields{
		"table":   spec.Name,
		"staging": staging,
	}).Debug("Created staging table")

	return staging, nil
}

// SwapFromStaging replaces each whole-day partition of the target table
// covered by [start, end) with the matching partition from staging. Days
// the staging table computed no rows for become empty in the target, so
// a swap is also a correction for previously corrupted days.
func (m *Manager) SwapFromStaging(ctx context.Context, spec *rollup.TableSpec, start, end time.Time) error {
	staging := spec.StagingName()

	for _, key := range rollup.DayKeysBetween(start, end) {
		ddl, err := (&sqlbuilder.AlterReplacePartition{
			Table:     m.cfg.LocalTable(spec.Name),
			OnCluster: m.cfg.Cluster,
			Partition: key,
			From:      m.cfg.LocalTable(staging),
		}).SQL()
		if err != nil {
			return fmt.Errorf("build replace partition DDL for %s: %w", spec.Name, err)
		}

		if err := m.ch.Execute(ctx, ddl, nil); err != nil {
			return fmt.Errorf("replace partition %s on %s from %s: %w", key, spec.Name, staging, err)
		}

		observability.RecordPartitionSwap(spec.Name)
	}

	return nil
}

// CleanStagingPartitions drops the window's day partitions from the
// staging table. Best-effort: failures are logged and swallowed so stale
// staging data never blocks the run that follows.
func (m *Manager) CleanStagingPartitions(ctx context.Context, spec *rollup.TableSpec, start, end time.Time) {
	if err := m.DropDayPartitions(ctx, spec.StagingName(), start, end, true); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"staging": spec.StagingName(),
			"start":   start.Format(time.DateOnly),
			"end":     end.Format(time.DateOnly),
		}).Warn("Failed to clean staging partitions")
	}
}

// DropStagingTable removes the staging twin. Failures are logged and
// swallowed; an orphaned staging table is replaced on the next run.
func (m *Manager) DropStagingTable(ctx context.Context, spec *rollup.TableSpec) {
	ddl, err := (&sqlbuilder.DropTable{
		Table:     m.cfg.LocalTable(spec.StagingName()),
		OnCluster: m.cfg.Cluster,
		IfExists:  true,
		Sync:      true,
	}).SQL()
	if err != nil {
		m.log.WithError(err).WithField("staging", spec.StagingName()).Warn("Failed to build staging drop DDL")

		return
	}

	if err := m.ch.Execute(ctx, ddl, nil); err != nil {
		m.log.WithError(err).WithField("staging", spec.StagingName()).Warn("Failed to drop staging table")
	}
}

// TableExists reports whether table is present in the configured database.
func (m *Manager) TableExists(ctx context.Context, table string) (bool, error) {
	return clickhouse.TableExists(ctx, m.ch, m.cfg.Database, table)
}
