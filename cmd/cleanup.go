package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	cleanupFrom   string
	cleanupTo     string
	cleanupDryRun bool
)

// cleanupCmd deletes corrupted rollup rows and disables the tenant's flag
//
//nolint:gochecknoglobals // Cobra commands are typically global
var cleanupCmd = &cobra.Command{
	Use:   "cleanup <team-id>",
	Short: "Delete corrupted rollup rows for one tenant",
	Long: `Cleanup issues ALTER DELETE mutations against both daily rollup
tables for the tenant window and disables the tenant's rollup flag so no
new rollups run until the underlying problem is fixed.

Mutations are asynchronous in ClickHouse; rows disappear shortly after the
command returns. With --dry-run the planned deletions are reported and
nothing is executed or disabled.

Example:
  sumhouse cleanup 42 --from 2024-01-01 --to 2024-02-01 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().StringVar(&cleanupFrom, "from", "", "Window start date (YYYY-MM-DD, inclusive)")
	cleanupCmd.Flags().StringVar(&cleanupTo, "to", "", "Window end date (YYYY-MM-DD, exclusive)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report planned deletions without executing")

	_ = cleanupCmd.MarkFlagRequired("from")
	_ = cleanupCmd.MarkFlagRequired("to")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	teamID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid team id %q: %w", args[0], err)
	}

	from, err := parseDateFlag("from", cleanupFrom)
	if err != nil {
		return err
	}

	to, err := parseDateFlag("to", cleanupTo)
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

	if err := tc.orchestrator.CleanupCorrupted(ctx, teamID, from, to, cleanupDryRun); err != nil {
		return err
	}

	if cleanupDryRun {
		fmt.Printf("Dry run: no rows deleted, rollup flag for team %d unchanged\n", teamID)
		return nil
	}

	fmt.Printf("Cleanup submitted for team %d; rollup flag disabled\n", teamID)

	return nil
}
