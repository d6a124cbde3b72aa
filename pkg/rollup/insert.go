package rollup

import (
	"fmt"

	"github.com/sumhouse/sumhouse/pkg/sqlbuilder"
)

// SourceTables names the raw tables the aggregation query reads from.
type SourceTables struct {
	Events          string
	Sessions        string
	PersonOverrides string
}

// DefaultSources returns the production source table names.
func DefaultSources() SourceTables {
	return SourceTables{
		Events:          "web_events",
		Sessions:        "web_sessions",
		PersonOverrides: "person_distinct_id_overrides",
	}
}

func (s SourceTables) withDefaults() SourceTables {
	def := DefaultSources()

	if s.Events == "" {
		s.Events = def.Events
	}

	if s.Sessions == "" {
		s.Sessions = def.Sessions
	}

	if s.PersonOverrides == "" {
		s.PersonOverrides = def.PersonOverrides
	}

	return s
}

// PersonJoinMode selects how person identity is resolved. The mode is an
// explicit parameter on every build call; nothing process-wide decides it.
type PersonJoinMode string

const (
	// PersonJoinOverrides joins the overrides table and prefers the latest
	// non-deleted override for each distinct ID.
	PersonJoinOverrides PersonJoinMode = "overrides"

	// PersonJoinDirect trusts the person ID already stamped on each event
	// and skips the overrides join entirely.
	PersonJoinDirect PersonJoinMode = "direct"
)

// InsertOptions tunes one BuildInsertSQL call.
type InsertOptions struct {
	// TargetTable overrides the destination, used to aim the insert at a
	// staging table. Empty means the spec's own table.
	TargetTable string

	// SelectOnly renders the bare SELECT with no INSERT wrapper, for dry
	// runs and composition into other statements.
	SelectOnly bool

	// PersonJoin defaults to PersonJoinOverrides.
	PersonJoin PersonJoinMode

	// Sources defaults to DefaultSources.
	Sources SourceTables
}

// BuildInsertSQL renders the full aggregation statement for one table spec.
//
// The query has two levels. The inner level joins raw pageview events to a
// per-session summary and to resolved person identities, filtered by the
// widened event window, and collapses to one row per session (per
// dimension combination), keeping the earliest session start. The outer
// level buckets that start time in the requested timezone, narrows to the
// target period and folds the rows into mergeable aggregate states.
//
// The INSERT names the destination columns explicitly, in TableSpec.Columns
// order, so the select list and the table schema stay aligned by position.
func BuildInsertSQL(spec *TableSpec, filters QueryFilters, opts InsertOptions) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	sources := opts.Sources.withDefaults()

	personJoin := opts.PersonJoin
	if personJoin == "" {
		personJoin = PersonJoinOverrides
	}

	inner, err := buildSessionRollup(spec, filters, sources, personJoin)
	if err != nil {
		return "", err
	}

	outer := buildStateRollup(spec, filters, inner)

	if opts.SelectOnly {
		return outer.SQL()
	}

	target := opts.TargetTable
	if target == "" {
		target = spec.Name
	}

	insert := &sqlbuilder.InsertQuery{
		Table:   target,
		Columns: spec.Columns(),
		Select:  outer,
	}

	return insert.SQL()
}

// buildSessionSummary aggregates the raw sessions table down to one row
// per session: its start, entry and exit pages, first-touch attribution
// and geo fields, and the bounce/duration outcome.
func buildSessionSummary(filters QueryFilters, sources SourceTables) (*sqlbuilder.SelectQuery, error) {
	teams, err := filters.Teams.Clause("")
	if err != nil {
		return nil, err
	}

	firstTouch := func(column string) string {
		return fmt.Sprintf("argMin(%s, timestamp)", column)
	}

	return &sqlbuilder.SelectQuery{
		Columns: []sqlbuilder.SelectColumn{
			sqlbuilder.Col("session_id"),
			sqlbuilder.Col("team_id"),
			sqlbuilder.ColAs("min(timestamp)", "session_start"),
			sqlbuilder.ColAs(firstTouch("pathname"), "entry_pathname"),
			sqlbuilder.ColAs("argMax(pathname, timestamp)", "end_pathname"),
			sqlbuilder.ColAs(firstTouch("referring_domain"), "referring_domain"),
			sqlbuilder.ColAs(firstTouch("utm_source"), "utm_source"),
			sqlbuilder.ColAs(firstTouch("utm_medium"), "utm_medium"),
			sqlbuilder.ColAs(firstTouch("utm_campaign"), "utm_campaign"),
			sqlbuilder.ColAs(firstTouch("utm_term"), "utm_term"),
			sqlbuilder.ColAs(firstTouch("utm_content"), "utm_content"),
			sqlbuilder.ColAs(firstTouch("country_code"), "country_code"),
			sqlbuilder.ColAs(firstTouch("region_code"), "region_code"),
			sqlbuilder.ColAs(firstTouch("city_name"), "city_name"),
			sqlbuilder.ColAs("max(is_bounce)", "is_bounce"),
			sqlbuilder.ColAs("max(duration_seconds)", "session_duration"),
		},
		From:    sqlbuilder.Table(sources.Sessions, ""),
		Where:   append(filters.Dates.SessionPredicates("timestamp"), teams),
		GroupBy: []string{"session_id", "team_id"},
	}, nil
}

// buildPersonLookup resolves each distinct ID to its latest non-deleted
// person override, scoped to the same teams as the main query.
func buildPersonLookup(filters QueryFilters, sources SourceTables) (*sqlbuilder.SelectQuery, error) {
	teams, err := filters.Teams.Clause("")
	if err != nil {
		return nil, err
	}

	return &sqlbuilder.SelectQuery{
		Columns: []sqlbuilder.SelectColumn{
			sqlbuilder.Col("team_id"),
			sqlbuilder.Col("distinct_id"),
			sqlbuilder.ColAs("argMax(person_id, version)", "person_id"),
		},
		From:    sqlbuilder.Table(sources.PersonOverrides, ""),
		Where:   []string{teams},
		GroupBy: []string{"team_id", "distinct_id"},
		Having:  []string{"argMax(is_deleted, version) = 0"},
	}, nil
}

// buildSessionRollup is the inner level: events joined to the session
// summary (and, in overrides mode, to resolved persons), grouped by
// session identity plus every dimension.
func buildSessionRollup(spec *TableSpec, filters QueryFilters, sources SourceTables, personJoin PersonJoinMode) (*sqlbuilder.SelectQuery, error) {
	sessions, err := buildSessionSummary(filters, sources)
	if err != nil {
		return nil, err
	}

	teams, err := filters.Teams.Clause("e")
	if err != nil {
		return nil, err
	}

	personExpr := "any(e.person_id)"
	joins := []sqlbuilder.Join{
		{
			Kind:  sqlbuilder.InnerJoin,
			Table: sqlbuilder.Subquery(sessions, "s"),
			On:    []string{"e.team_id = s.team_id", "e.session_id = s.session_id"},
		},
	}

	if personJoin == PersonJoinOverrides {
		persons, perr := buildPersonLookup(filters, sources)
		if perr != nil {
			return nil, perr
		}

		joins = append(joins, sqlbuilder.Join{
			Kind:  sqlbuilder.LeftJoin,
			Table: sqlbuilder.Subquery(persons, "pdi"),
			On:    []string{"e.team_id = pdi.team_id", "e.distinct_id = pdi.distinct_id"},
		})

		// The left join yields an empty distinct_id when no override
		// exists; fall back to the ID stamped on the event.
		personExpr = "any(if(empty(pdi.distinct_id), e.person_id, pdi.person_id))"
	}

	columns := []sqlbuilder.SelectColumn{
		sqlbuilder.ColAs(personExpr, "person_id"),
		sqlbuilder.ColAs("e.session_id", "session_id"),
		sqlbuilder.ColAs("min(s.session_start)", "session_start"),
		sqlbuilder.ColAs("e.team_id", "team_id"),
	}

	groupBy := []string{"e.team_id", "e.session_id"}

	for _, dim := range spec.Dimensions {
		columns = append(columns, sqlbuilder.ColAs(dim.Expr, dim.Name))
		groupBy = append(groupBy, dim.Name)
	}

	for _, agg := range spec.Aggregates {
		if agg.InnerExpr == "" {
			continue
		}

		columns = append(columns, sqlbuilder.ColAs(agg.InnerExpr, agg.InnerName))
	}

	where := []string{"e.event = '$pageview'"}
	where = append(where, filters.Dates.EventPredicates("e.timestamp")...)
	where = append(where, teams)

	return &sqlbuilder.SelectQuery{
		Columns: columns,
		From:    sqlbuilder.Table(sources.Events, "e"),
		Joins:   joins,
		Where:   where,
		GroupBy: groupBy,
	}, nil
}

// buildStateRollup is the outer level: per-session rows bucketed into the
// target period and folded into aggregate states.
func buildStateRollup(spec *TableSpec, filters QueryFilters, inner *sqlbuilder.SelectQuery) *sqlbuilder.SelectQuery {
	bucket := fmt.Sprintf("%s(toTimeZone(session_start, %s))",
		filters.BucketFunc, sqlbuilder.Quote(filters.Dates.Timezone))

	columns := []sqlbuilder.SelectColumn{
		sqlbuilder.ColAs(bucket, "period_bucket"),
		sqlbuilder.Col("team_id"),
	}

	groupBy := []string{"period_bucket", "team_id"}

	for _, dim := range spec.Dimensions {
		columns = append(columns, sqlbuilder.Col(dim.Name))
		groupBy = append(groupBy, dim.Name)
	}

	for _, agg := range spec.Aggregates {
		columns = append(columns, sqlbuilder.ColAs(agg.StateExpr, agg.Name))
	}

	return &sqlbuilder.SelectQuery{
		Columns:  columns,
		From:     sqlbuilder.Subquery(inner, "session_rollup"),
		Where:    filters.Dates.TargetPredicates("period_bucket"),
		GroupBy:  groupBy,
		Settings: filters.Settings(),
	}
}
