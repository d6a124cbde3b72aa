package rollup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFilters(t *testing.T, g Granularity, teams TeamFilter, settings map[string]string) QueryFilters {
	t.Helper()

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	dates, err := NewDateFilterSet(start, start.AddDate(0, 0, 1), "UTC", g)
	require.NoError(t, err)

	return BuildFilters(teams, dates, g, settings)
}

func TestBuildInsertSQLStatsDaily(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO web_stats_daily\n(period_bucket, team_id, "), "insert must open with the explicit column list")
	assert.Contains(t, sql, "uniqState(person_id) AS persons_uniq_state")
	assert.Contains(t, sql, "uniqState(session_id) AS sessions_uniq_state")
	assert.Contains(t, sql, "sumState(toUInt64(pageview_count)) AS pageviews_count_state")

	// Bucketing happens in the requested timezone on the session start.
	assert.Contains(t, sql, "toStartOfDay(toTimeZone(session_start, 'UTC')) AS period_bucket")

	// The outer level narrows to the target period, not the wider windows.
	assert.Contains(t, sql, "period_bucket >= toDateTime('2024-01-15 00:00:00', 'UTC')")
	assert.Contains(t, sql, "period_bucket < toDateTime('2024-01-16 00:00:00', 'UTC')")

	// The inner level joins sessions and person overrides.
	assert.Contains(t, sql, "INNER JOIN (")
	assert.Contains(t, sql, "min(timestamp) AS session_start")
	assert.Contains(t, sql, ") AS s ON e.team_id = s.team_id AND e.session_id = s.session_id")
	assert.Contains(t, sql, "LEFT JOIN (")
	assert.Contains(t, sql, "argMax(person_id, version) AS person_id")
	assert.Contains(t, sql, "HAVING argMax(is_deleted, version) = 0")
	assert.Contains(t, sql, "any(if(empty(pdi.distinct_id), e.person_id, pdi.person_id)) AS person_id")

	assert.Contains(t, sql, "e.event = '$pageview'")
	assert.Contains(t, sql, "min(s.session_start) AS session_start")

	// Every scanned table carries its own team predicate.
	assert.Equal(t, 3, strings.Count(sql, "team_id IN (7)"))
	assert.Contains(t, sql, "e.team_id IN (7)")

	assert.NotContains(t, sql, "SETTINGS")
}

func TestBuildInsertSQLEventWindowWiderThanTarget(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{})
	require.NoError(t, err)

	// Events and sessions are scanned a day earlier than the target so
	// sessions straddling midnight stay attributable.
	assert.Contains(t, sql, "e.timestamp >= toDateTime('2024-01-14 00:00:00', 'UTC')")
	assert.Contains(t, sql, "e.timestamp < toDateTime('2024-01-16 00:00:00', 'UTC')")
	assert.Contains(t, sql, "timestamp >= toDateTime('2024-01-14 00:00:00', 'UTC')")
}

func TestBuildInsertSQLBounces(t *testing.T) {
	spec, err := BouncesTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{})
	require.NoError(t, err)

	assert.Contains(t, sql, "max(s.is_bounce) AS is_bounce")
	assert.Contains(t, sql, "max(s.session_duration) AS session_duration")
	assert.Contains(t, sql, "sumState(toUInt64(is_bounce)) AS bounces_count_state")
	assert.Contains(t, sql, "sumState(toInt64(session_duration)) AS total_session_duration_state")
	assert.Contains(t, sql, "sumState(toUInt64(1)) AS total_session_count_state")
	assert.NotContains(t, sql, "e.pathname AS pathname")
}

func TestBuildInsertSQLSelectOnly(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{SelectOnly: true})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "SELECT"))
	assert.NotContains(t, sql, "INSERT INTO")
}

func TestBuildInsertSQLTargetTable(t *testing.T) {
	spec, err := StatsTable(GranularityHourly)
	require.NoError(t, err)

	filters := testFilters(t, GranularityHourly, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{TargetTable: spec.StagingName()})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO web_stats_hourly_staging\n"))
	assert.Contains(t, sql, "toStartOfHour(toTimeZone(session_start, 'UTC')) AS period_bucket")
}

func TestBuildInsertSQLSettings(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), map[string]string{"max_execution_time": "3600"})

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{})
	require.NoError(t, err)

	assert.Contains(t, sql, "SETTINGS max_execution_time = 3600")
}

func TestBuildInsertSQLDictionaryScope(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsFromDictionary(""), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{})
	require.NoError(t, err)

	assert.Contains(t, sql, "dictHas('web_rollup_teams_dict', e.team_id)")
	assert.Contains(t, sql, "dictHas('web_rollup_teams_dict', team_id)")
	assert.NotContains(t, sql, " IN (")
}

func TestBuildInsertSQLPersonJoinDirect(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{PersonJoin: PersonJoinDirect})
	require.NoError(t, err)

	assert.Contains(t, sql, "any(e.person_id) AS person_id")
	assert.NotContains(t, sql, "pdi")
	assert.NotContains(t, sql, "LEFT JOIN")
}

func TestBuildInsertSQLCustomSources(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

	sql, err := BuildInsertSQL(spec, filters, InsertOptions{
		Sources: SourceTables{Events: "analytics.web_events", Sessions: "analytics.web_sessions"},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM analytics.web_events AS e")
	assert.Contains(t, sql, "FROM analytics.web_sessions")
	assert.Contains(t, sql, "FROM person_distinct_id_overrides")
}

func TestBuildInsertSQLTeamScopeRequired(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	filters := testFilters(t, GranularityDaily, TeamFilter{}, nil)

	_, err = BuildInsertSQL(spec, filters, InsertOptions{})
	require.ErrorIs(t, err, ErrTeamScopeMissing)
}

func TestBuildInsertSQLColumnOrderMatchesSelect(t *testing.T) {
	for _, build := range []func(Granularity) (*TableSpec, error){StatsTable, BouncesTable} {
		spec, err := build(GranularityDaily)
		require.NoError(t, err)

		filters := testFilters(t, GranularityDaily, TeamsByID(7), nil)

		sql, err := BuildInsertSQL(spec, filters, InsertOptions{})
		require.NoError(t, err)

		header := "INSERT INTO " + spec.Name + "\n(" + strings.Join(spec.Columns(), ", ") + ")\n"
		assert.True(t, strings.HasPrefix(sql, header), "column list must match the spec order for %s", spec.Name)

		// Each named column appears in the outer select list, aliased or
		// bare, in the same order as the insert column list.
		body := sql[len(header):]
		fromIdx := strings.Index(body, "\nFROM")
		require.Greater(t, fromIdx, 0)

		outer := body[:fromIdx]
		last := -1

		for _, col := range spec.Columns() {
			idx := strings.Index(outer, " AS "+col)
			if idx < 0 {
				idx = strings.Index(outer, "    "+col)
			}

			require.GreaterOrEqual(t, idx, 0, "column %s missing from outer select of %s", col, spec.Name)
			assert.Greater(t, idx, last, "column %s out of order in %s", col, spec.Name)
			last = idx
		}
	}
}
