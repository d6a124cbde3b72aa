package backfill

import (
	"errors"

	"github.com/sumhouse/sumhouse/pkg/rollup"
	"github.com/sumhouse/sumhouse/pkg/teams"
)

// Static errors
var (
	// ErrWindowRequired is returned when an operation needs a concrete
	// [start, end) window and none was given.
	ErrWindowRequired = errors.New("backfill window is required")
	// ErrTeamNotEligible is returned for teams without the rollup flag.
	ErrTeamNotEligible = errors.New("team is not rollup-eligible")
	// ErrDaysOutOfRange is returned when an explicit day count is not positive.
	ErrDaysOutOfRange = errors.New("backfill days must be positive")
	// ErrSpecRequired is returned when a request carries no table spec.
	ErrSpecRequired = errors.New("table spec is required")
	// ErrInvalidTimezone is returned when a tenant's timezone cannot be loaded.
	ErrInvalidTimezone = errors.New("invalid tenant timezone")
)

// configErrors are caller mistakes. They are fatal to the attempt and
// must never be retried; task handlers map them to skip-retry.
var configErrors = []error{
	ErrWindowRequired,
	ErrTeamNotEligible,
	ErrDaysOutOfRange,
	ErrSpecRequired,
	ErrInvalidTimezone,
	rollup.ErrUnknownGranularity,
	rollup.ErrWindowInverted,
	rollup.ErrTimezoneRequired,
	rollup.ErrTeamScopeMissing,
	teams.ErrTeamNotFound,
}

// IsConfigError reports whether err is a non-retryable configuration
// error rather than a transient execution failure.
func IsConfigError(err error) bool {
	for _, sentinel := range configErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}

// IsRetryable is the retry predicate: anything that is not a
// configuration mistake is assumed transient.
func IsRetryable(err error) bool {
	return err != nil && !IsConfigError(err)
}
