package backfill

// Status is the terminal state of one tenant backfill attempt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// SkipReason says why a tenant backfill was skipped.
type SkipReason string

const (
	// SkipTeamNotEligible means the rollup flag was off at execution time.
	SkipTeamNotEligible SkipReason = "team_not_eligible"
	// SkipHasRecentData means the destination already holds rows for the
	// window, so the tenant is assumed backfilled.
	SkipHasRecentData SkipReason = "has_recent_data"
)

// TenantResult reports one tenant backfill attempt.
type TenantResult struct {
	TeamID int64      `json:"team_id"`
	Status Status     `json:"status"`
	Reason SkipReason `json:"reason,omitempty"`
	Window Window     `json:"-"`
	Tables []string   `json:"tables,omitempty"`
}

// Skipped reports whether the attempt ended without touching data.
func (r TenantResult) Skipped() bool {
	return r.Status == StatusSkipped
}

// BatchResult aggregates one discovery run over many tenants.
type BatchResult struct {
	Completed []int64         `json:"completed"`
	Skipped   []int64         `json:"skipped"`
	Failed    map[int64]error `json:"-"`
}

// Counts returns (completed, skipped, failed) tallies.
func (b BatchResult) Counts() (int, int, int) {
	return len(b.Completed), len(b.Skipped), len(b.Failed)
}

// TableReport is the validation probe result for one rollup table.
type TableReport struct {
	Table        string `json:"table"`
	Rows         uint64 `json:"rows"`
	DaysWithData uint64 `json:"days_with_data"`
}

// ValidationReport carries read-only integrity counts for one tenant
// window. Gaps and zero counts are data for the operator, not errors.
type ValidationReport struct {
	TeamID       int64         `json:"team_id"`
	Window       Window        `json:"-"`
	ExpectedDays int           `json:"expected_days"`
	Tables       []TableReport `json:"tables"`
}

// Complete reports whether every probed table covers every expected day.
func (v ValidationReport) Complete() bool {
	for _, table := range v.Tables {
		if table.DaysWithData < uint64(v.ExpectedDays) {
			return false
		}
	}

	return len(v.Tables) > 0
}
