package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableSpecValidation(t *testing.T) {
	dims := []Dimension{{Name: "host", Type: "String", Expr: "e.host"}}
	aggs := []Aggregate{{Name: "pageviews_count_state", Type: "AggregateFunction(sum, UInt64)", StateExpr: "sumState(toUInt64(pageview_count))"}}

	tests := []struct {
		name        string
		tableName   string
		granularity string
		dims        []Dimension
		aggs        []Aggregate
		wantErr     error
	}{
		{name: "valid daily", tableName: "web_stats_daily", granularity: "daily", dims: dims, aggs: aggs},
		{name: "valid hourly", tableName: "web_stats_hourly", granularity: "hourly", dims: dims, aggs: aggs},
		{name: "unknown granularity rejected at construction", tableName: "t", granularity: "weekly", dims: dims, aggs: aggs, wantErr: ErrUnknownGranularity},
		{name: "no dimensions", tableName: "t", granularity: "daily", aggs: aggs, wantErr: ErrNoDimensions},
		{name: "no aggregates", tableName: "t", granularity: "daily", dims: dims, wantErr: ErrNoAggregates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewTableSpec(tt.tableName, tt.granularity, tt.dims, tt.aggs)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.tableName, spec.Name)
		})
	}
}

func TestHourlySpecsCarryTTL(t *testing.T) {
	hourly, err := StatsTable(GranularityHourly)
	require.NoError(t, err)
	assert.Equal(t, DefaultHourlyTTL, hourly.TTL)

	daily, err := StatsTable(GranularityDaily)
	require.NoError(t, err)
	assert.Empty(t, daily.TTL)
}

func TestStatsTableShape(t *testing.T) {
	spec, err := StatsTable(GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, TableStatsDaily, spec.Name)

	cols := spec.Columns()
	require.GreaterOrEqual(t, len(cols), 4)
	assert.Equal(t, "period_bucket", cols[0])
	assert.Equal(t, "team_id", cols[1])
	assert.Contains(t, cols, "pathname")
	assert.Contains(t, cols, "entry_pathname")
	assert.Contains(t, cols, "persons_uniq_state")
	assert.Contains(t, cols, "sessions_uniq_state")
	assert.Contains(t, cols, "pageviews_count_state")

	// Aggregate states come last.
	assert.Equal(t, "pageviews_count_state", cols[len(cols)-1])
}

func TestBouncesTableShape(t *testing.T) {
	spec, err := BouncesTable(GranularityDaily)
	require.NoError(t, err)

	assert.Equal(t, TableBouncesDaily, spec.Name)

	cols := spec.Columns()
	assert.NotContains(t, cols, "pathname", "bounce metrics are session scoped; a per-path split would double count sessions")
	assert.Contains(t, cols, "entry_pathname")
	assert.Contains(t, cols, "bounces_count_state")
	assert.Contains(t, cols, "total_session_duration_state")
	assert.Contains(t, cols, "total_session_count_state")
}

func TestStagingName(t *testing.T) {
	spec, err := StatsTable(GranularityHourly)
	require.NoError(t, err)

	assert.Equal(t, "web_stats_hourly_staging", spec.StagingName())
}

func TestOrderByDefaults(t *testing.T) {
	spec, err := BouncesTable(GranularityDaily)
	require.NoError(t, err)

	order := spec.OrderByColumns()
	require.GreaterOrEqual(t, len(order), 2)
	assert.Equal(t, []string{"team_id", "period_bucket"}, order[:2])

	spec.OrderBy = []string{"team_id", "period_bucket"}
	assert.Equal(t, []string{"team_id", "period_bucket"}, spec.OrderByColumns())
}

func TestCanonicalTables(t *testing.T) {
	specs, err := CanonicalTables()
	require.NoError(t, err)
	require.Len(t, specs, 4)

	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}

	assert.ElementsMatch(t, []string{TableStatsDaily, TableStatsHourly, TableBouncesDaily, TableBouncesHourly}, names)
}

func TestPartitionByDefaultsToCalendarDay(t *testing.T) {
	spec, err := StatsTable(GranularityHourly)
	require.NoError(t, err)

	// Hourly tables stay day partitioned; the TTL handles expiry.
	assert.Equal(t, "toYYYYMMDD(period_bucket)", spec.PartitionBy())

	spec.PartitionByHour = true
	assert.Equal(t, "formatDateTime(period_bucket, '%Y%m%d%H')", spec.PartitionBy())
}
