// Package teams reads tenant configuration from the external relational
// store. Rollup eligibility and timezones are owned there; this package
// only reads them, with a Redis cache in front for the hot path, and
// flips the rollup flag back off during corruption cleanup.
package teams

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Static errors
var (
	ErrTeamNotFound = errors.New("team not found")
)

// Team is one tenant's rollup-relevant configuration.
type Team struct {
	ID            int64  `json:"id"`
	Timezone      string `json:"timezone"`
	RollupEnabled bool   `json:"rollup_enabled"`
}

// Location resolves the team's timezone, defaulting to UTC when unset.
func (t *Team) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("team %d timezone %q: %w", t.ID, t.Timezone, err)
	}

	return loc, nil
}

// TimezoneOrDefault returns the configured timezone name, or UTC.
func (t *Team) TimezoneOrDefault() string {
	if t.Timezone == "" {
		return "UTC"
	}

	return t.Timezone
}

// Store is the narrow read/flag interface the rest of the system consumes.
type Store interface {
	// GetTeam fetches one team, ErrTeamNotFound when absent.
	GetTeam(ctx context.Context, id int64) (*Team, error)
	// ListRollupEnabled returns up to limit team IDs with rollups enabled.
	ListRollupEnabled(ctx context.Context, limit int) ([]int64, error)
	// SetRollupEnabled flips the rollup feature flag for one team.
	SetRollupEnabled(ctx context.Context, id int64, enabled bool) error
}
