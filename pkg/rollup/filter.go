package rollup

import (
	"fmt"
	"time"

	"github.com/sumhouse/sumhouse/pkg/sqlbuilder"
)

// DefaultTeamDictionary is the ClickHouse dictionary holding the set of
// teams with rollups enabled. It is maintained outside this service and
// consulted when no explicit team scope is given.
const DefaultTeamDictionary = "web_rollup_teams_dict"

// TeamFilter scopes every generated query to eligible teams. It renders in
// exactly one of two ways: an explicit IN list when team IDs are known, or
// a dictionary membership test against the externally maintained allowlist.
// The two constructors make the paths mutually exclusive.
type TeamFilter struct {
	ids  []int64
	dict string
}

// TeamsByID scopes queries to an explicit set of team IDs.
func TeamsByID(ids ...int64) TeamFilter {
	return TeamFilter{ids: ids}
}

// TeamsFromDictionary scopes queries to teams present in the named
// dictionary. An empty name selects DefaultTeamDictionary.
func TeamsFromDictionary(name string) TeamFilter {
	if name == "" {
		name = DefaultTeamDictionary
	}

	return TeamFilter{dict: name}
}

// Clause renders the team predicate for one table alias. Every table that
// appears in a query gets its own clause so the filter prunes each scan,
// not just the outermost one.
func (f TeamFilter) Clause(alias string) (string, error) {
	column := "team_id"
	if alias != "" {
		column = alias + ".team_id"
	}

	if len(f.ids) > 0 {
		return sqlbuilder.InInt64(column, f.ids), nil
	}

	if f.dict != "" {
		return fmt.Sprintf("dictHas(%s, %s)", sqlbuilder.Quote(f.dict), column), nil
	}

	return "", ErrTeamScopeMissing
}

const renderTimeLayout = "2006-01-02 15:04:05"

// DateFilterSet holds the three windows one aggregation run filters on.
// The target window is what the caller asked to (re)build. The event
// window is widened so that events belonging to sessions attributed into
// the target period are not cut off at its edges, and the session window
// is widened further still so the per-session summary sees each session's
// true start.
//
// Instants are stored as-is; timezone conversion happens when predicates
// are rendered, never by rewriting the stored times.
//
// Invariant: SessionStart <= EventStart <= TargetStart < TargetEnd <=
// EventEnd <= SessionEnd.
type DateFilterSet struct {
	SessionStart time.Time
	SessionEnd   time.Time
	EventStart   time.Time
	EventEnd     time.Time
	TargetStart  time.Time
	TargetEnd    time.Time

	Timezone string

	loc *time.Location
}

// NewDateFilterSet widens a target window [start, end) per granularity.
//
// Sessions last at most 24 hours, so a session contributing to the target
// period may have started up to 24 hours earlier. Daily windows extend the
// session and event starts 24 hours back and keep the end as given. Hourly
// windows additionally allow one hour of slack on each side: the session
// window opens 25 hours before the target start and both windows close one
// hour after the target end.
func NewDateFilterSet(start, end time.Time, timezone string, g Granularity) (DateFilterSet, error) {
	if timezone == "" {
		return DateFilterSet{}, ErrTimezoneRequired
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return DateFilterSet{}, fmt.Errorf("timezone %q: %w", timezone, err)
	}

	if !start.Before(end) {
		return DateFilterSet{}, fmt.Errorf("%w: start=%s end=%s", ErrWindowInverted, start, end)
	}

	d := DateFilterSet{
		TargetStart: start,
		TargetEnd:   end,
		Timezone:    timezone,
		loc:         loc,
	}

	switch g {
	case GranularityHourly:
		d.SessionStart = start.Add(-25 * time.Hour)
		d.SessionEnd = end.Add(time.Hour)
		d.EventStart = start.Add(-24 * time.Hour)
		d.EventEnd = end.Add(time.Hour)
	default:
		d.SessionStart = start.Add(-24 * time.Hour)
		d.SessionEnd = end
		d.EventStart = start.Add(-24 * time.Hour)
		d.EventEnd = end
	}

	return d, nil
}

// Render converts an instant to the filter's timezone and wraps it in a
// toDateTime literal carrying the same zone, so ClickHouse compares the
// exact instant regardless of the server's own timezone.
func (d DateFilterSet) Render(t time.Time) string {
	return fmt.Sprintf("toDateTime(%s, %s)",
		sqlbuilder.Quote(t.In(d.loc).Format(renderTimeLayout)),
		sqlbuilder.Quote(d.Timezone))
}

// SessionPredicates bounds an expression to the session window.
func (d DateFilterSet) SessionPredicates(expr string) []string {
	return []string{
		fmt.Sprintf("%s >= %s", expr, d.Render(d.SessionStart)),
		fmt.Sprintf("%s < %s", expr, d.Render(d.SessionEnd)),
	}
}

// EventPredicates bounds an expression to the event window.
func (d DateFilterSet) EventPredicates(expr string) []string {
	return []string{
		fmt.Sprintf("%s >= %s", expr, d.Render(d.EventStart)),
		fmt.Sprintf("%s < %s", expr, d.Render(d.EventEnd)),
	}
}

// TargetPredicates bounds an expression to the target period.
func (d DateFilterSet) TargetPredicates(expr string) []string {
	return []string{
		fmt.Sprintf("%s >= %s", expr, d.Render(d.TargetStart)),
		fmt.Sprintf("%s < %s", expr, d.Render(d.TargetEnd)),
	}
}

// QueryFilters bundles everything the insert builder needs beyond the
// table spec itself: the team scope, the date windows, the bucketing
// function and a pre-rendered SETTINGS clause.
type QueryFilters struct {
	Teams          TeamFilter
	Dates          DateFilterSet
	BucketFunc     string
	SettingsClause string

	settings map[string]string
}

// BuildFilters composes a team filter and a date filter set for one
// granularity. The settings map renders once, up front; an empty map
// renders to the empty string so no dangling SETTINGS keyword can appear.
func BuildFilters(teams TeamFilter, dates DateFilterSet, g Granularity, settings map[string]string) QueryFilters {
	return QueryFilters{
		Teams:          teams,
		Dates:          dates,
		BucketFunc:     g.BucketFunc(),
		SettingsClause: sqlbuilder.RenderSettings(settings),
		settings:       settings,
	}
}

// Settings returns the raw settings map for builders that attach settings
// structurally rather than as a rendered clause.
func (f QueryFilters) Settings() map[string]string {
	return f.settings
}
