package rollup

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Granularity
		wantErr bool
	}{
		{name: "daily", input: "daily", want: GranularityDaily},
		{name: "hourly", input: "hourly", want: GranularityHourly},
		{name: "case and whitespace tolerant", input: "  Hourly ", want: GranularityHourly},
		{name: "unknown", input: "weekly", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGranularity(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownGranularity)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartitionKey(t *testing.T) {
	tests := []struct {
		name        string
		dateOrHour  string
		granularity string
		want        string
	}{
		{name: "daily", dateOrHour: "2024-01-15", granularity: "daily", want: "20240115"},
		{name: "hourly single digit hour is padded", dateOrHour: "2024-01-15 5", granularity: "hourly", want: "2024011505"},
		{name: "hourly two digit hour", dateOrHour: "2024-01-15 17", granularity: "hourly", want: "2024011517"},
		{name: "hourly without hour defaults to 00", dateOrHour: "2024-01-15", granularity: "hourly", want: "2024011500"},
		{name: "unrecognized granularity falls back to daily", dateOrHour: "2024-01-15", granularity: "weekly", want: "20240115"},
		{name: "unrecognized granularity ignores hour", dateOrHour: "2024-01-15 5", granularity: "monthly", want: "20240115"},
		{name: "empty granularity is daily", dateOrHour: "2024-12-31", granularity: "", want: "20241231"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PartitionKey(tt.dateOrHour, tt.granularity))
		})
	}
}

func TestPartitionKeyAt(t *testing.T) {
	at := time.Date(2024, 1, 15, 5, 42, 0, 0, time.UTC)

	assert.Equal(t, "20240115", PartitionKeyAt(at, GranularityDaily))
	assert.Equal(t, "2024011505", PartitionKeyAt(at, GranularityHourly))
}

func TestPartitionKeyAtUsesInstantLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 23:00 UTC on the 14th is already the 15th in Tokyo.
	at := time.Date(2024, 1, 14, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, "20240114", PartitionKeyAt(at, GranularityDaily))
	assert.Equal(t, "20240115", PartitionKeyAt(at.In(tokyo), GranularityDaily))
}

func TestDayKeysBetween(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []string
	}{
		{
			name:  "single day",
			start: day(15),
			end:   day(16),
			want:  []string{"20240115"},
		},
		{
			name:  "three days end exclusive",
			start: day(15),
			end:   day(18),
			want:  []string{"20240115", "20240116", "20240117"},
		},
		{
			name:  "end at midnight excludes that day",
			start: day(15),
			end:   day(17),
			want:  []string{"20240115", "20240116"},
		},
		{
			name:  "mid day end includes the partial day",
			start: day(15),
			end:   time.Date(2024, 1, 16, 7, 0, 0, 0, time.UTC),
			want:  []string{"20240115", "20240116"},
		},
		{
			name:  "empty window",
			start: day(15),
			end:   day(15),
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayKeysBetween(tt.start, tt.end))
		})
	}
}

func TestGranularityHelpers(t *testing.T) {
	assert.Equal(t, "toStartOfDay", GranularityDaily.BucketFunc())
	assert.Equal(t, "toStartOfHour", GranularityHourly.BucketFunc())

	assert.Equal(t, "toYYYYMMDD(period_bucket)", GranularityDaily.PartitionExpr("period_bucket"))
	assert.Equal(t, "formatDateTime(period_bucket, '%Y%m%d%H')", GranularityHourly.PartitionExpr("period_bucket"))

	at := time.Date(2024, 1, 15, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 16, 5, 0, 0, 0, time.UTC), GranularityDaily.Next(at))
	assert.Equal(t, time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC), GranularityHourly.Next(at))
}

func TestPartitionKeyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("daily key matches the compact date", prop.ForAll(
		func(days int) bool {
			day := base.AddDate(0, 0, days)
			return PartitionKey(day.Format("2006-01-02"), "daily") == day.Format("20060102")
		},
		gen.IntRange(0, 3650),
	))

	properties.Property("hourly key appends a zero padded hour", prop.ForAll(
		func(days, hour int) bool {
			day := base.AddDate(0, 0, days)
			input := fmt.Sprintf("%s %d", day.Format("2006-01-02"), hour)
			return PartitionKey(input, "hourly") == fmt.Sprintf("%s%02d", day.Format("20060102"), hour)
		},
		gen.IntRange(0, 3650),
		gen.IntRange(0, 23),
	))

	properties.Property("hourly key without an hour ends in 00", prop.ForAll(
		func(days int) bool {
			day := base.AddDate(0, 0, days)
			key := PartitionKey(day.Format("2006-01-02"), "hourly")
			return len(key) == 10 && key[8:] == "00"
		},
		gen.IntRange(0, 3650),
	))

	properties.Property("unrecognized granularity falls back to the daily key", prop.ForAll(
		func(days int, granularity string) bool {
			day := base.AddDate(0, 0, days)
			return PartitionKey(day.Format("2006-01-02"), granularity) == day.Format("20060102")
		},
		gen.IntRange(0, 3650),
		gen.OneConstOf("weekly", "monthly", "", "DAILYish", "minute"),
	))

	properties.Property("key computation is deterministic", prop.ForAll(
		func(days, hour int) bool {
			day := base.AddDate(0, 0, days)
			input := fmt.Sprintf("%s %d", day.Format("2006-01-02"), hour)
			return PartitionKey(input, "hourly") == PartitionKey(input, "hourly")
		},
		gen.IntRange(0, 3650),
		gen.IntRange(0, 23),
	))

	properties.TestingRun(t)
}
