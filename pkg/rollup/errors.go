package rollup

import "errors"

var (
	// ErrUnknownGranularity is returned when a table spec is constructed
	// with a granularity outside the two supported values.
	ErrUnknownGranularity = errors.New("unknown granularity")

	// ErrNoDimensions is returned when a table spec carries no dimension columns.
	ErrNoDimensions = errors.New("table spec requires at least one dimension")

	// ErrNoAggregates is returned when a table spec carries no aggregate columns.
	ErrNoAggregates = errors.New("table spec requires at least one aggregate")

	// ErrTableNameRequired is returned when a table spec has an empty name.
	ErrTableNameRequired = errors.New("table spec requires a name")

	// ErrWindowInverted is returned when a date range ends before it starts.
	ErrWindowInverted = errors.New("window start must precede window end")

	// ErrTimezoneRequired is returned when a date filter set is built
	// without a timezone.
	ErrTimezoneRequired = errors.New("timezone is required")

	// ErrTeamScopeMissing is returned when a team filter is rendered with
	// neither explicit team IDs nor a dictionary to test against.
	ErrTeamScopeMissing = errors.New("team filter requires explicit team ids or a dictionary")
)
