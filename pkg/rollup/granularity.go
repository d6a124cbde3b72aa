// Package rollup defines the pre-aggregated web analytics tables and
// generates the ClickHouse DDL and DML that maintain them. Everything in
// this package is pure: functions turn table specs, date windows and team
// scopes into SQL strings without touching the network.
package rollup

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Granularity selects the time-bucket width of a rollup table.
type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityHourly Granularity = "hourly"
)

const (
	dayKeyLayout  = "20060102"
	hourKeyLayout = "2006010215"
)

// ParseGranularity validates a granularity string. Table specs refuse to
// build on anything except the two known values, so typos fail before any
// SQL is generated rather than at execution time.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityDaily, GranularityHourly:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// BucketFunc returns the ClickHouse function that truncates a timestamp to
// the start of the bucket.
func (g Granularity) BucketFunc() string {
	if g == GranularityHourly {
		return "toStartOfHour"
	}

	return "toStartOfDay"
}

// PartitionExpr returns a PARTITION BY expression whose keys match the
// granularity's partition key format.
func (g Granularity) PartitionExpr(column string) string {
	if g == GranularityHourly {
		return fmt.Sprintf("formatDateTime(%s, '%%Y%%m%%d%%H')", column)
	}

	return fmt.Sprintf("toYYYYMMDD(%s)", column)
}

// Next advances a bucket start by one step.
func (g Granularity) Next(t time.Time) time.Time {
	if g == GranularityHourly {
		return t.Add(time.Hour)
	}

	return t.AddDate(0, 0, 1)
}

// PartitionKey renders the partition identifier for a calendar date given
// as "2006-01-02", optionally followed by a space and an hour ("2024-01-15 5").
// Daily keys are YYYYMMDD. Hourly keys append the hour zero padded to two
// digits, defaulting to 00 when no hour is supplied.
//
// Any granularity other than "hourly" falls back to the daily key format.
// The fallback is deliberate and load bearing: operational tooling passes
// free-form granularity strings, and a typo must degrade to the coarser
// daily key rather than target a partition that does not exist.
func PartitionKey(dateOrHour, granularity string) string {
	datePart := strings.TrimSpace(dateOrHour)
	hourPart := ""

	if i := strings.IndexByte(datePart, ' '); i >= 0 {
		datePart, hourPart = datePart[:i], strings.TrimSpace(datePart[i+1:])
	}

	key := strings.ReplaceAll(datePart, "-", "")
	if Granularity(strings.ToLower(granularity)) != GranularityHourly {
		return key
	}

	hour := 0
	if h, err := strconv.Atoi(hourPart); err == nil {
		hour = h
	}

	return fmt.Sprintf("%s%02d", key, hour)
}

// PartitionKeyAt renders the partition identifier covering an instant. The
// instant's own location decides the calendar date and hour.
func PartitionKeyAt(t time.Time, g Granularity) string {
	if g == GranularityHourly {
		return t.Format(hourKeyLayout)
	}

	return t.Format(dayKeyLayout)
}

// DayKeysBetween lists the daily partition keys covering [start, end), one
// per calendar day in start's location. An end falling exactly on midnight
// excludes that day.
func DayKeysBetween(start, end time.Time) []string {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	var keys []string
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		keys = append(keys, day.Format(dayKeyLayout))
	}

	return keys
}
