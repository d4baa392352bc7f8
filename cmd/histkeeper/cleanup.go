package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/quantlake/histkeeper/internal/model"
)

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old analysis records under the retention policy",
		Long: `Apply the retention policy to the record store in batches.

By default all records older than the maximum age are removed. With
--failed only failed and cancelled records are targeted, on a shorter
horizon expressed in hours. Use --dry-run to see what would be deleted
without touching the store.`,
		RunE: runCleanup,
	}

	cmd.Flags().Int("max-age-days", 365, "delete records older than this many days")
	cmd.Flags().Int("max-age-hours", 24, "age horizon for --failed, in hours")
	cmd.Flags().Int("batch-size", 100, "records deleted per batch")
	cmd.Flags().Bool("dry-run", false, "count eligible records without deleting")
	cmd.Flags().Bool("failed", false, "only clean up failed and cancelled records")

	return cmd
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")
	maxAgeHours, _ := cmd.Flags().GetInt("max-age-hours")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	failedOnly, _ := cmd.Flags().GetBool("failed")

	ctx := cmd.Context()
	engine, store, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var bar *progressbar.ProgressBar
	engine.Cleaner().Progress = func(deleted, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetDescription("Cleaning up records..."),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40))
		}
		_ = bar.Set64(deleted)
	}

	var result *model.CleanupResult
	if failedOnly {
		result, err = engine.CleanupFailed(ctx, time.Duration(maxAgeHours)*time.Hour, batchSize, dryRun)
	} else {
		result, err = engine.Cleanup(ctx, model.RetentionPolicy{
			MaxAge:    time.Duration(maxAgeDays) * 24 * time.Hour,
			BatchSize: batchSize,
			DryRun:    dryRun,
		})
	}
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if result.DryRun {
		fmt.Printf("Dry run: %d records would be deleted in %d batches\n",
			result.TotalFound, result.BatchesProcessed)
		return nil
	}

	fmt.Printf("Deleted %d of %d records in %d batches (%s)\n",
		result.TotalDeleted, result.TotalFound, result.BatchesProcessed,
		result.Duration.Round(time.Millisecond))
	for _, batchErr := range result.Errors {
		fmt.Printf("  error: %s\n", batchErr.String())
	}

	return nil
}
