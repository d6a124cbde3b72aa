// Package backfill rebuilds pre-aggregated rollup tables for historical
// date ranges. Every entry point is idempotent for a fixed
// (tenant, window, table): partitions are dropped before they are
// rewritten, so repeated runs converge to a single run's contents.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sumhouse/sumhouse/pkg/clickhouse"
	"github.com/sumhouse/sumhouse/pkg/observability"
	"github.com/sumhouse/sumhouse/pkg/partition"
	"github.com/sumhouse/sumhouse/pkg/rollup"
	"github.com/sumhouse/sumhouse/pkg/sqlbuilder"
	"github.com/sumhouse/sumhouse/pkg/teams"
)

// DailyRequest describes one direct (no staging) backfill run.
type DailyRequest struct {
	Spec     *rollup.TableSpec
	Teams    rollup.TeamFilter
	Window   Window
	Timezone string
	// Settings overrides the configured insert-query settings when set
	Settings map[string]string
}

// HistoricalRequest describes one staging-and-swap backfill run.
type HistoricalRequest struct {
	Spec     *rollup.TableSpec
	Teams    rollup.TeamFilter
	Window   Window
	Timezone string
	Settings map[string]string
	// KeepStagingTable leaves the staging twin in place after the swap
	KeepStagingTable bool
}

// Orchestrator sequences partition DDL and insert queries into complete
// backfill runs.
type Orchestrator struct {
	log        logrus.FieldLogger
	ch         clickhouse.ClientInterface
	partitions *partition.Manager
	teams      teams.Store
	cfg        *Config

	// now is replaceable for tests
	now func() time.Time
}

// NewOrchestrator wires a backfill orchestrator.
func NewOrchestrator(log logrus.FieldLogger, ch clickhouse.ClientInterface, partitions *partition.Manager, teamStore teams.Store, cfg *Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	return &Orchestrator{
		log:        log.WithField("component", "backfill"),
		ch:         ch,
		partitions: partitions,
		teams:      teamStore,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

func (o *Orchestrator) querySettings(override map[string]string) map[string]string {
	if override != nil {
		return override
	}

	return o.cfg.QuerySettings
}

// RunDailyBackfill recomputes req.Spec for each calendar day of the
// window, dropping the day's partition before inserting it. A single-day
// window issues exactly two statements.
func (o *Orchestrator) RunDailyBackfill(ctx context.Context, req DailyRequest) error {
	if req.Spec == nil {
		return ErrSpecRequired
	}

	if err := req.Window.Validate(); err != nil {
		return err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	log := o.log.WithFields(logrus.Fields{
		"table":  req.Spec.Name,
		"window": req.Window.String(),
	})
	log.Debug("Starting daily backfill")

	err := req.Window.EachDay(func(dayStart, dayEnd time.Time) error {
		day := dayStart.Format(time.DateOnly)

		// Drop must land before the insert for the same day.
		if err := o.partitions.DropPartition(ctx, req.Spec.Name, day, rollup.GranularityDaily, true); err != nil {
			return err
		}

		dates, err := rollup.NewDateFilterSet(dayStart, dayEnd, timezone, req.Spec.Granularity)
		if err != nil {
			return err
		}

		filters := rollup.BuildFilters(req.Teams, dates, req.Spec.Granularity, o.querySettings(req.Settings))

		insertSQL, err := rollup.BuildInsertSQL(req.Spec, filters, rollup.InsertOptions{
			PersonJoin: o.cfg.PersonJoinMode(),
		})
		if err != nil {
			return err
		}

		if err := o.ch.Execute(ctx, insertSQL, nil); err != nil {
			return fmt.Errorf("insert day %s into %s: %w", day, req.Spec.Name, err)
		}

		return nil
	})
	if err != nil {
		observability.RecordTableBackfill(req.Spec.Name, "daily", "failed")

		return err
	}

	observability.RecordTableBackfill(req.Spec.Name, "daily", "completed")
	log.Debug("Daily backfill completed")

	return nil
}

// RunHourlyHistoricalBackfill recomputes req.Spec through a staging
// table: one insert covers the whole window, then each calendar day is
// swapped into the destination with REPLACE PARTITION. Day drops are end
// exclusive, so a window ending at midnight leaves the end day alone.
func (o *Orchestrator) RunHourlyHistoricalBackfill(ctx context.Context, req HistoricalRequest) error {
	if req.Spec == nil {
		return ErrSpecRequired
	}

	if err := req.Window.Validate(); err != nil {
		return err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	log := o.log.WithFields(logrus.Fields{
		"table":  req.Spec.Name,
		"window": req.Window.String(),
	})
	log.Info("Starting historical backfill")

	staging, err := o.partitions.CreateStagingTable(ctx, req.Spec)
	if err != nil {
		return err
	}

	o.partitions.CleanStagingPartitions(ctx, req.Spec, req.Window.Start, req.Window.End)

	dates, err := rollup.NewDateFilterSet(req.Window.Start, req.Window.End, timezone, req.Spec.Granularity)
	if err != nil {
		return err
	}

	filters := rollup.BuildFilters(req.Teams, dates, req.Spec.Granularity, o.querySettings(req.Settings))

	insertSQL, err := rollup.BuildInsertSQL(req.Spec, filters, rollup.InsertOptions{
		TargetTable: staging,
		PersonJoin:  o.cfg.PersonJoinMode(),
	})
	if err != nil {
		return err
	}

	if err := o.ch.Execute(ctx, insertSQL, nil); err != nil {
		observability.RecordTableBackfill(req.Spec.Name, "historical", "failed")

		return fmt.Errorf("insert window %s into %s: %w", req.Window, staging, err)
	}

	if err := o.partitions.DropDayPartitions(ctx, req.Spec.Name, req.Window.Start, req.Window.End, true); err != nil {
		observability.RecordTableBackfill(req.Spec.Name, "historical", "failed")

		return err
	}

	if err := o.partitions.SwapFromStaging(ctx, req.Spec, req.Window.Start, req.Window.End); err != nil {
		observability.RecordTableBackfill(req.Spec.Name, "historical", "failed")

		return err
	}

	o.partitions.CleanStagingPartitions(ctx, req.Spec, req.Window.Start, req.Window.End)

	if !req.KeepStagingTable {
		o.partitions.DropStagingTable(ctx, req.Spec)
	}

	observability.RecordTableBackfill(req.Spec.Name, "historical", "completed")
	log.Info("Historical backfill completed")

	return nil
}

// BackfillTenant rebuilds both daily rollup tables for one tenant over
// [today−days, today) in the tenant's timezone. The rollup flag is
// re-checked at execution time, and tenants whose destination already
// holds rows for the window are skipped.
func (o *Orchestrator) BackfillTenant(ctx context.Context, teamID int64, days int) (TenantResult, error) {
	started := time.Now()
	result := TenantResult{TeamID: teamID}

	defer func() {
		observability.RecordTenantBackfill(string(result.Status), string(result.Reason), time.Since(started))
	}()

	team, err := o.teams.GetTeam(ctx, teamID)
	if err != nil {
		result.Status = StatusFailed

		return result, err
	}

	if !team.RollupEnabled {
		result.Status = StatusSkipped
		result.Reason = SkipTeamNotEligible

		o.log.WithField("team_id", teamID).Info("Skipping tenant backfill, rollups not enabled")

		return result, nil
	}

	days, err = o.resolveDays(days)
	if err != nil {
		result.Status = StatusFailed

		return result, err
	}

	loc, err := team.Location()
	if err != nil {
		result.Status = StatusFailed

		return result, fmt.Errorf("%w: %v", ErrInvalidTimezone, err)
	}

	window := WindowForDays(o.now(), days, loc)
	result.Window = window

	log := o.log.WithFields(logrus.Fields{
		"team_id":  teamID,
		"days":     days,
		"window":   window.String(),
		"timezone": team.TimezoneOrDefault(),
	})

	existing, err := o.countRows(ctx, rollup.TableStatsDaily, teamID, window, team.TimezoneOrDefault())
	if err != nil {
		result.Status = StatusFailed

		return result, fmt.Errorf("backfill: team %d presence probe window %s: %w", teamID, window, err)
	}

	if existing > 0 {
		result.Status = StatusSkipped
		result.Reason = SkipHasRecentData

		log.WithField("existing_rows", existing).Info("Skipping tenant backfill, window already has data")

		return result, nil
	}

	log.Info("Starting tenant backfill")

	for _, build := range []func(rollup.Granularity) (*rollup.TableSpec, error){rollup.StatsTable, rollup.BouncesTable} {
		spec, specErr := build(rollup.GranularityDaily)
		if specErr != nil {
			result.Status = StatusFailed

			return result, specErr
		}

		runErr := o.RunDailyBackfill(ctx, DailyRequest{
			Spec:     spec,
			Teams:    rollup.TeamsByID(teamID),
			Window:   window,
			Timezone: team.TimezoneOrDefault(),
		})
		if runErr != nil {
			result.Status = StatusFailed

			return result, fmt.Errorf("backfill: team %d table %s window %s: %w", teamID, spec.Name, window, runErr)
		}

		result.Tables = append(result.Tables, spec.Name)
	}

	result.Status = StatusCompleted

	log.Info("Tenant backfill completed")

	return result, nil
}

// resolveDays applies the default and the hard ceiling. Oversized
// requests are clamped, not rejected.
func (o *Orchestrator) resolveDays(days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrDaysOutOfRange, days)
	}

	if days == 0 {
		return o.cfg.DefaultDays, nil
	}

	if days > o.cfg.MaxBackfillDays {
		o.log.WithFields(logrus.Fields{
			"requested": days,
			"max":       o.cfg.MaxBackfillDays,
		}).Warn("Clamping backfill days to configured maximum")
		observability.BackfillDaysClamped.Inc()

		return o.cfg.MaxBackfillDays, nil
	}

	return days, nil
}

// DiscoverAndBackfillBatch backfills up to batchSize flag-enabled
// tenants sequentially. Per-tenant failures are collected in the result
// so one bad tenant never aborts the batch.
func (o *Orchestrator) DiscoverAndBackfillBatch(ctx context.Context, days, batchSize int) (BatchResult, error) {
	result := BatchResult{Failed: make(map[int64]error)}

	if batchSize <= 0 {
		batchSize = o.cfg.BatchSize
	}

	days, err := o.resolveDays(days)
	if err != nil {
		return result, err
	}

	ids, err := o.teams.ListRollupEnabled(ctx, batchSize)
	if err != nil {
		return result, fmt.Errorf("discover rollup-enabled tenants: %w", err)
	}

	o.log.WithFields(logrus.Fields{
		"tenants": len(ids),
		"days":    days,
	}).Info("Starting batch backfill")

	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		tenantResult, tenantErr := o.BackfillTenant(ctx, id, days)
		if tenantErr != nil {
			o.log.WithError(tenantErr).WithField("team_id", id).Error("Tenant backfill failed")
			result.Failed[id] = tenantErr

			continue
		}

		if tenantResult.Skipped() {
			result.Skipped = append(result.Skipped, id)

			continue
		}

		result.Completed = append(result.Completed, id)
	}

	completed, skipped, failed := result.Counts()
	o.log.WithFields(logrus.Fields{
		"completed": completed,
		"skipped":   skipped,
		"failed":    failed,
	}).Info("Batch backfill finished")

	return result, nil
}

// ValidateIntegrity probes row and day counts for every canonical rollup
// table over the tenant's window. Gaps are reported as data, not errors.
func (o *Orchestrator) ValidateIntegrity(ctx context.Context, teamID int64, start, end time.Time) (ValidationReport, error) {
	window := Window{Start: start, End: end}
	report := ValidationReport{TeamID: teamID, Window: window}

	if err := window.Validate(); err != nil {
		return report, err
	}

	team, err := o.teams.GetTeam(ctx, teamID)
	if err != nil {
		return report, err
	}

	report.ExpectedDays = window.Days()

	specs, err := rollup.CanonicalTables()
	if err != nil {
		return report, err
	}

	for _, spec := range specs {
		probeSQL, buildErr := o.probeSQL(spec.Name, teamID, window, team.TimezoneOrDefault())
		if buildErr != nil {
			return report, buildErr
		}

		var tableReport TableReport

		tableReport.Table = spec.Name

		if err := o.ch.QueryRow(ctx, probeSQL, &tableReport.Rows, &tableReport.DaysWithData); err != nil {
			return report, fmt.Errorf("validate %s for team %d window %s: %w", spec.Name, teamID, window, err)
		}

		report.Tables = append(report.Tables, tableReport)
	}

	return report, nil
}

// CleanupCorrupted deletes the tenant's rollup rows in [start, end) from
// both daily tables and turns the tenant's rollup flag off. Manual and
// destructive; in dry-run mode the plan is logged and nothing executes.
func (o *Orchestrator) CleanupCorrupted(ctx context.Context, teamID int64, start, end time.Time, dryRun bool) error {
	window := Window{Start: start, End: end}
	if err := window.Validate(); err != nil {
		return err
	}

	team, err := o.teams.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}

	log := o.log.WithFields(logrus.Fields{
		"team_id": teamID,
		"window":  window.String(),
		"dry_run": dryRun,
	})

	for _, table := range []string{rollup.TableStatsDaily, rollup.TableBouncesDaily} {
		deleteSQL, buildErr := o.deleteSQL(table, teamID, window, team.TimezoneOrDefault())
		if buildErr != nil {
			return buildErr
		}

		if dryRun {
			log.WithField("statement", deleteSQL).Info("Dry run: planned delete")

			continue
		}

		// Mutations are asynchronous; ClickHouse applies them in the
		// background after the statement is accepted.
		if err := o.ch.Execute(ctx, deleteSQL, nil); err != nil {
			return fmt.Errorf("cleanup %s for team %d window %s: %w", table, teamID, window, err)
		}
	}

	if dryRun {
		log.Info("Dry run: would disable rollup flag")

		return nil
	}

	if err := o.teams.SetRollupEnabled(ctx, teamID, false); err != nil {
		return fmt.Errorf("disable rollup flag for team %d: %w", teamID, err)
	}

	log.Warn("Deleted corrupted rollup rows and disabled tenant flag")

	return nil
}

func (o *Orchestrator) rangePredicates(teamID int64, window Window, timezone string) ([]string, error) {
	teamClause, err := rollup.TeamsByID(teamID).Clause("")
	if err != nil {
		return nil, err
	}

	dates, err := rollup.NewDateFilterSet(window.Start, window.End, timezone, rollup.GranularityDaily)
	if err != nil {
		return nil, err
	}

	return append([]string{teamClause}, dates.TargetPredicates("period_bucket")...), nil
}

func (o *Orchestrator) probeSQL(table string, teamID int64, window Window, timezone string) (string, error) {
	where, err := o.rangePredicates(teamID, window, timezone)
	if err != nil {
		return "", err
	}

	query := &sqlbuilder.SelectQuery{
		Columns: []sqlbuilder.SelectColumn{
			sqlbuilder.Col("count()"),
			sqlbuilder.Col("uniqExact(toDate(period_bucket))"),
		},
		From:  sqlbuilder.Table(table, ""),
		Where: where,
	}

	return query.SQL()
}

func (o *Orchestrator) deleteSQL(table string, teamID int64, window Window, timezone string) (string, error) {
	where, err := o.rangePredicates(teamID, window, timezone)
	if err != nil {
		return "", err
	}

	return (&sqlbuilder.AlterDelete{
		Table:     o.partitions.LocalTable(table),
		OnCluster: o.partitions.Cluster(),
		Where:     where,
	}).SQL()
}

func (o *Orchestrator) countRows(ctx context.Context, table string, teamID int64, window Window, timezone string) (uint64, error) {
	probeSQL, err := o.probeSQL(table, teamID, window, timezone)
	if err != nil {
		return 0, err
	}

	var rows, days uint64

	if err := o.ch.QueryRow(ctx, probeSQL, &rows, &days); err != nil {
		return 0, err
	}

	return rows, nil
}
