package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumhouse/sumhouse/pkg/rollup"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	validateFrom string
	validateTo   string
)

// validateCmd probes rollup tables for row and day-coverage counts
//
//nolint:gochecknoglobals // Cobra commands are typically global
var validateCmd = &cobra.Command{
	Use:   "validate <team-id>",
	Short: "Check rollup data coverage for one tenant",
	Long: `Validate counts rows and distinct days per rollup table for a tenant
window. It runs read-only queries; gaps and zero counts are reported as
findings, never as command failures.

Example:
  sumhouse validate 42 --from 2024-01-01 --to 2024-02-01`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFrom, "from", "", "Window start date (YYYY-MM-DD, inclusive)")
	validateCmd.Flags().StringVar(&validateTo, "to", "", "Window end date (YYYY-MM-DD, exclusive)")

	_ = validateCmd.MarkFlagRequired("from")
	_ = validateCmd.MarkFlagRequired("to")
}

// checkRollupTables fails early when canonical tables are absent, so
// coverage probes never surface as raw query errors.
func checkRollupTables(ctx context.Context, tc *cliToolchain) error {
	specs, err := rollup.CanonicalTables()
	if err != nil {
		return err
	}

	var missing []string

	for _, spec := range specs {
		exists, existsErr := tc.partitions.TableExists(ctx, spec.Name)
		if existsErr != nil {
			return fmt.Errorf("failed to check table existence: %w", existsErr)
		}

		if !exists {
			missing = append(missing, spec.Name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("rollup tables do not exist: %s (the worker creates them on startup)", strings.Join(missing, ", "))
	}

	return nil
}

// parseDateFlag parses a YYYY-MM-DD flag value as a UTC midnight.
func parseDateFlag(name, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q: %w", name, value, err)
	}

	return t, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	teamID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid team id %q: %w", args[0], err)
	}

	from, err := parseDateFlag("from", validateFrom)
	if err != nil {
		return err
	}

	to, err := parseDateFlag("to", validateTo)
	if err != nil {
		return err
	}

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	tc, err := newCLIToolchain(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer tc.Close()

	if err := checkRollupTables(ctx, tc); err != nil {
		return err
	}

	report, err := tc.orchestrator.ValidateIntegrity(ctx, teamID, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("Team %d window %s (%d expected days)\n", report.TeamID, report.Window, report.ExpectedDays)

	for _, table := range report.Tables {
		fmt.Printf("  %-24s rows=%-12d days=%d/%d\n", table.Table, table.Rows, table.DaysWithData, report.ExpectedDays)
	}

	if report.Complete() {
		fmt.Println("Coverage complete")
	} else {
		fmt.Println("Coverage incomplete")
	}

	return nil
}
