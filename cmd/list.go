package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	r "github.com/sumhouse/sumhouse/pkg/redis"
	"github.com/sumhouse/sumhouse/pkg/tasks"
	"github.com/sumhouse/sumhouse/pkg/teams"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var listLimit int

// listCmd shows rollup-enabled tenants and queue depth
//
//nolint:gochecknoglobals // Cobra commands are typically global
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rollup-enabled tenants",
	Long: `List prints the tenants with the rollup flag enabled. When Redis is
configured it also reports backfill queue depth.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVar(&listLimit, "limit", 100, "Maximum tenants to list")
}

func runList(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}

	if err := cfg.Teams.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	store, err := teams.NewPostgresStore(ctx, logger, &cfg.Teams)
	if err != nil {
		return fmt.Errorf("connect teams store: %w", err)
	}
	defer store.Close()

	ids, err := store.ListRollupEnabled(ctx, listLimit)
	if err != nil {
		return err
	}

	fmt.Printf("Rollup-enabled tenants (%d):\n", len(ids))

	for _, id := range ids {
		fmt.Printf("  %d\n", id)
	}

	if cfg.Redis.Address != "" {
		printQueueStats(&cfg.Redis)
	}

	return nil
}

// printQueueStats reports backfill queue depth. Best effort: a missing
// queue just means nothing was ever enqueued.
func printQueueStats(redisCfg *r.Config) {
	queue := tasks.NewQueueManager(r.NewAsynqRedisOptions(redisCfg.Options()))
	defer func() {
		if err := queue.Close(); err != nil {
			logger.WithError(err).Debug("Failed to close queue manager")
		}
	}()

	info, err := queue.GetQueueStats(tasks.QueueBackfill)
	if err != nil {
		fmt.Printf("Queue %q: no stats (%v)\n", tasks.QueueBackfill, err)
		return
	}

	fmt.Printf("Queue %q: pending=%d active=%d retry=%d\n",
		tasks.QueueBackfill, info.Pending, info.Active, info.Retry)
}
