package backfill

import (
	"fmt"
	"time"

	"github.com/sumhouse/sumhouse/pkg/rollup"
)

// Window is a half-open [Start, End) backfill range. Boundaries are
// wall-clock midnights in the tenant's timezone for daily work; hourly
// historical runs may carry intra-day boundaries.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects zero and inverted windows.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrWindowRequired
	}

	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: start %s end %s", rollup.ErrWindowInverted,
			w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
	}

	return nil
}

// Days returns the number of whole days the window covers, rounded up.
func (w Window) Days() int {
	return int((w.End.Sub(w.Start) + 24*time.Hour - 1) / (24 * time.Hour))
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// EachDay calls fn once per calendar day in [Start, End), passing the
// day's own [dayStart, dayEnd) bounds. The final partial day, if any,
// keeps the window's end.
func (w Window) EachDay(fn func(dayStart, dayEnd time.Time) error) error {
	day := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, w.Start.Location())

	for ; day.Before(w.End); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		if next.After(w.End) {
			next = w.End
		}

		if err := fn(day, next); err != nil {
			return err
		}
	}

	return nil
}

// WindowForDays builds [today−days, today) where today is the current
// midnight in loc. The current (incomplete) day is always excluded.
func WindowForDays(now time.Time, days int, loc *time.Location) Window {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	return Window{
		Start: today.AddDate(0, 0, -days),
		End:   today,
	}
}
