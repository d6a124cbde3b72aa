package rollup

import "fmt"

// Canonical rollup table names.
const (
	TableStatsDaily    = "web_stats_daily"
	TableStatsHourly   = "web_stats_hourly"
	TableBouncesDaily  = "web_bounces_daily"
	TableBouncesHourly = "web_bounces_hourly"
)

// DefaultHourlyTTL keeps hourly rollups around for one day; the daily
// tables are the long-term record.
const DefaultHourlyTTL = "period_bucket + INTERVAL 24 HOUR DELETE"

// Dimension is a grouping column carried by a rollup table. Expr computes
// the dimension inside the aggregation query; it references the event rows
// as "e" and the per-session summary as "s".
type Dimension struct {
	Name string
	Type string
	Expr string
}

// Aggregate is an aggregate-state column of a rollup table. InnerExpr, when
// set, computes a per-session metric (aliased InnerName) in the inner level
// of the aggregation query; StateExpr folds the per-session rows into a
// mergeable state at the outer level. An Aggregate with an empty InnerExpr
// consumes a column the inner level already provides.
type Aggregate struct {
	Name      string
	Type      string
	InnerName string
	InnerExpr string
	StateExpr string
}

// TableSpec describes one rollup table: its identity, its column set and
// the expressions that populate it. Specs are immutable once constructed;
// the two canonical kinds are built by StatsTable and BouncesTable.
type TableSpec struct {
	Name        string
	Granularity Granularity
	Dimensions  []Dimension
	Aggregates  []Aggregate

	// OrderBy defaults to team_id, period_bucket, then every dimension.
	OrderBy []string

	// TTL is a raw TTL expression, empty for tables that keep data forever.
	TTL string

	// StoragePolicy selects a non-default storage policy when set.
	StoragePolicy string

	// PartitionByHour partitions the table by hour key instead of the
	// default calendar day. Hourly tables normally stay day partitioned
	// (with a TTL expiring old rows) so that partition counts stay low and
	// staging swaps move whole days.
	PartitionByHour bool
}

// NewTableSpec validates granularity and column sets up front so that a
// misconfigured spec fails at construction, long before any SQL executes.
func NewTableSpec(name, granularity string, dims []Dimension, aggs []Aggregate) (*TableSpec, error) {
	g, err := ParseGranularity(granularity)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}

	spec := &TableSpec{
		Name:        name,
		Granularity: g,
		Dimensions:  dims,
		Aggregates:  aggs,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if g == GranularityHourly {
		spec.TTL = DefaultHourlyTTL
	}

	return spec, nil
}

// Validate checks the spec is complete enough to generate SQL from.
func (s *TableSpec) Validate() error {
	if s.Name == "" {
		return ErrTableNameRequired
	}

	if _, err := ParseGranularity(string(s.Granularity)); err != nil {
		return fmt.Errorf("table %q: %w", s.Name, err)
	}

	if len(s.Dimensions) == 0 {
		return fmt.Errorf("table %q: %w", s.Name, ErrNoDimensions)
	}

	if len(s.Aggregates) == 0 {
		return fmt.Errorf("table %q: %w", s.Name, ErrNoAggregates)
	}

	return nil
}

// Columns returns the table's full column list in insert order:
// period_bucket, team_id, the dimensions, then the aggregate states. Every
// generated INSERT names columns explicitly in exactly this order.
func (s *TableSpec) Columns() []string {
	cols := make([]string, 0, 2+len(s.Dimensions)+len(s.Aggregates))
	cols = append(cols, "period_bucket", "team_id")

	for _, d := range s.Dimensions {
		cols = append(cols, d.Name)
	}

	for _, a := range s.Aggregates {
		cols = append(cols, a.Name)
	}

	return cols
}

// OrderByColumns returns the effective sorting key.
func (s *TableSpec) OrderByColumns() []string {
	if len(s.OrderBy) > 0 {
		return s.OrderBy
	}

	cols := make([]string, 0, 2+len(s.Dimensions))
	cols = append(cols, "team_id", "period_bucket")

	for _, d := range s.Dimensions {
		cols = append(cols, d.Name)
	}

	return cols
}

// PartitionBy returns the table's PARTITION BY expression. Hourly tables
// default to day-level partitions so a day's data swaps as one unit.
func (s *TableSpec) PartitionBy() string {
	if s.PartitionByHour {
		return GranularityHourly.PartitionExpr("period_bucket")
	}

	return GranularityDaily.PartitionExpr("period_bucket")
}

// StagingName returns the name of the staging table paired with this spec.
func (s *TableSpec) StagingName() string {
	return s.Name + "_staging"
}

func sharedDimensions() []Dimension {
	return []Dimension{
		{Name: "host", Type: "String", Expr: "e.host"},
		{Name: "device_type", Type: "LowCardinality(String)", Expr: "e.device_type"},
		{Name: "browser", Type: "LowCardinality(String)", Expr: "e.browser"},
		{Name: "os", Type: "LowCardinality(String)", Expr: "e.os"},
		{Name: "viewport", Type: "String", Expr: "e.viewport"},
		{Name: "referring_domain", Type: "String", Expr: "s.referring_domain"},
		{Name: "utm_source", Type: "String", Expr: "s.utm_source"},
		{Name: "utm_medium", Type: "String", Expr: "s.utm_medium"},
		{Name: "utm_campaign", Type: "String", Expr: "s.utm_campaign"},
		{Name: "utm_term", Type: "String", Expr: "s.utm_term"},
		{Name: "utm_content", Type: "String", Expr: "s.utm_content"},
		{Name: "country_code", Type: "LowCardinality(String)", Expr: "s.country_code"},
		{Name: "region_code", Type: "LowCardinality(String)", Expr: "s.region_code"},
		{Name: "city_name", Type: "String", Expr: "s.city_name"},
		{Name: "entry_pathname", Type: "String", Expr: "s.entry_pathname"},
		{Name: "end_pathname", Type: "String", Expr: "s.end_pathname"},
	}
}

func baseAggregates() []Aggregate {
	return []Aggregate{
		{
			Name:      "persons_uniq_state",
			Type:      "AggregateFunction(uniq, UUID)",
			InnerName: "person_id",
			StateExpr: "uniqState(person_id)",
		},
		{
			Name:      "sessions_uniq_state",
			Type:      "AggregateFunction(uniq, String)",
			InnerName: "session_id",
			StateExpr: "uniqState(session_id)",
		},
		{
			Name:      "pageviews_count_state",
			Type:      "AggregateFunction(sum, UInt64)",
			InnerName: "pageview_count",
			InnerExpr: "countIf(e.event = '$pageview')",
			StateExpr: "sumState(toUInt64(pageview_count))",
		},
	}
}

// StatsTable builds the canonical page-stats spec at the given granularity:
// unique persons, unique sessions and pageview counts, dimensioned down to
// the individual pathname.
func StatsTable(g Granularity) (*TableSpec, error) {
	name := TableStatsDaily
	if g == GranularityHourly {
		name = TableStatsHourly
	}

	dims := append(sharedDimensions(), Dimension{Name: "pathname", Type: "String", Expr: "e.pathname"})

	return NewTableSpec(name, string(g), dims, baseAggregates())
}

// BouncesTable builds the canonical session-outcome spec at the given
// granularity. It extends the stats aggregates with bounce and duration
// metrics and deliberately omits the pathname dimension: bounce and
// duration are session-scoped, and splitting sessions across their visited
// paths would double count them.
func BouncesTable(g Granularity) (*TableSpec, error) {
	name := TableBouncesDaily
	if g == GranularityHourly {
		name = TableBouncesHourly
	}

	aggs := append(baseAggregates(),
		Aggregate{
			Name:      "bounces_count_state",
			Type:      "AggregateFunction(sum, UInt64)",
			InnerName: "is_bounce",
			InnerExpr: "max(s.is_bounce)",
			StateExpr: "sumState(toUInt64(is_bounce))",
		},
		Aggregate{
			Name:      "total_session_duration_state",
			Type:      "AggregateFunction(sum, Int64)",
			InnerName: "session_duration",
			InnerExpr: "max(s.session_duration)",
			StateExpr: "sumState(toInt64(session_duration))",
		},
		Aggregate{
			Name:      "total_session_count_state",
			Type:      "AggregateFunction(sum, UInt64)",
			StateExpr: "sumState(toUInt64(1))",
		},
	)

	return NewTableSpec(name, string(g), sharedDimensions(), aggs)
}

// CanonicalTables returns the four production specs: stats at daily and
// hourly granularity, then bounces at both.
func CanonicalTables() ([]*TableSpec, error) {
	specs := make([]*TableSpec, 0, 4)

	for _, build := range []func(Granularity) (*TableSpec, error){StatsTable, BouncesTable} {
		for _, g := range []Granularity{GranularityDaily, GranularityHourly} {
			spec, err := build(g)
			if err != nil {
				return nil, err
			}

			specs = append(specs, spec)
		}
	}

	return specs, nil
}
