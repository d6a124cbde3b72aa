package sqlbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectQuerySQL(t *testing.T) {
	tests := []struct {
		name     string
		query    *SelectQuery
		contains []string
		wantErr  error
	}{
		{
			name: "simple select",
			query: &SelectQuery{
				Columns: []SelectColumn{Col("team_id"), ColAs("count()", "rows")},
				From:    Table("web_stats_daily", ""),
			},
			contains: []string{"SELECT", "team_id", "count() AS rows", "FROM web_stats_daily"},
		},
		{
			name: "select with where and group by",
			query: &SelectQuery{
				Columns: []SelectColumn{Col("team_id"), ColAs("count()", "rows")},
				From:    Table("web_stats_daily", ""),
				Where:   []string{"team_id = 7", "period_bucket >= toDateTime('2024-01-01 00:00:00', 'UTC')"},
				GroupBy: []string{"team_id"},
			},
			contains: []string{
				"WHERE team_id = 7",
				"AND period_bucket >= toDateTime('2024-01-01 00:00:00', 'UTC')",
				"GROUP BY team_id",
			},
		},
		{
			name: "joins render in declaration order",
			query: &SelectQuery{
				Columns: []SelectColumn{Col("e.team_id")},
				From:    Table("web_events", "e"),
				Joins: []Join{
					{Kind: InnerJoin, Table: Table("web_sessions", "s"), On: []string{"e.session_id = s.session_id", "e.team_id = s.team_id"}},
					{Kind: LeftJoin, Table: Table("person_overrides", "pdi"), On: []string{"e.distinct_id = pdi.distinct_id"}},
				},
			},
			contains: []string{
				"INNER JOIN web_sessions AS s ON e.session_id = s.session_id AND e.team_id = s.team_id",
				"LEFT JOIN person_overrides AS pdi ON e.distinct_id = pdi.distinct_id",
			},
		},
		{
			name: "subquery source is parenthesized and aliased",
			query: &SelectQuery{
				Columns: []SelectColumn{Col("session_id")},
				From: Subquery(&SelectQuery{
					Columns: []SelectColumn{Col("session_id")},
					From:    Table("web_sessions", ""),
				}, "inner"),
			},
			contains: []string{") AS inner"},
		},
		{
			name:    "no columns",
			query:   &SelectQuery{From: Table("t", "")},
			wantErr: ErrNoColumns,
		},
		{
			name:    "no source",
			query:   &SelectQuery{Columns: []SelectColumn{Col("x")}},
			wantErr: ErrEmptyFrom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := tt.query.SQL()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, sql, want)
			}
		})
	}
}

func TestSelectQuerySettingsClause(t *testing.T) {
	q := &SelectQuery{
		Columns: []SelectColumn{Col("1")},
		From:    Table("system.one", ""),
	}

	sql, err := q.SQL()
	require.NoError(t, err)
	assert.NotContains(t, sql, "SETTINGS", "empty settings must not emit a dangling keyword")

	q.Settings = map[string]string{
		"max_execution_time":       "3600",
		"distributed_product_mode": "'global'",
	}

	sql, err = q.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, "SETTINGS distributed_product_mode = 'global', max_execution_time = 3600")
}

func TestInsertQuerySQL(t *testing.T) {
	sel := &SelectQuery{
		Columns: []SelectColumn{Col("period_bucket"), Col("team_id")},
		From:    Table("web_stats_daily", ""),
	}

	ins := &InsertQuery{
		Table:   "web_stats_daily_staging",
		Columns: []string{"period_bucket", "team_id"},
		Select:  sel,
	}

	sql, err := ins.SQL()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO web_stats_daily_staging\n(period_bucket, team_id)")
	assert.Contains(t, sql, "SELECT")

	_, err = (&InsertQuery{Columns: []string{"a"}, Select: sel}).SQL()
	require.ErrorIs(t, err, ErrTableRequired)

	_, err = (&InsertQuery{Table: "t", Select: sel}).SQL()
	require.ErrorIs(t, err, ErrNoColumns)
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20240115", "'20240115'"},
		{"it's", `'it\'s'`},
		{`back\slash`, `'back\\slash'`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in))
	}
}

func TestInInt64(t *testing.T) {
	assert.Equal(t, "e.team_id IN (1, 7, 42)", InInt64("e.team_id", []int64{1, 7, 42}))
	assert.Equal(t, "team_id IN (7)", InInt64("team_id", []int64{7}))
}

func TestFn(t *testing.T) {
	assert.Equal(t, "toYYYYMMDD(period_bucket)", Fn("toYYYYMMDD", "period_bucket"))
	assert.Equal(t, "toDateTime('2024-01-15 00:00:00', 'UTC')", Fn("toDateTime", "'2024-01-15 00:00:00'", "'UTC'"))
}
