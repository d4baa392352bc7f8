package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage statistics",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	engine, store, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := engine.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Documents:       %d\n", stats.TotalDocuments)
	fmt.Printf("Payload size:    %s\n", formatBytes(stats.TotalSizeBytes))
	fmt.Printf("File size:       %s\n", formatBytes(stats.FileSizeBytes))
	fmt.Printf("Index overhead:  %s\n", formatBytes(stats.IndexOverheadBytes))
	fmt.Printf("Avg doc size:    %s\n", formatBytes(stats.AvgDocSizeBytes))
	fmt.Printf("Daily growth:    %.1f records/day (trailing %d days)\n",
		stats.AvgDailyGrowth, stats.GrowthWindowDays)

	if stats.OldestRecord != nil {
		fmt.Printf("Oldest record:   %s\n", stats.OldestRecord.Format(time.RFC3339))
	}
	if stats.NewestRecord != nil {
		fmt.Printf("Newest record:   %s\n", stats.NewestRecord.Format(time.RFC3339))
	}

	if len(stats.StatusCounts) > 0 {
		fmt.Println("By status:")
		for status, count := range stats.StatusCounts {
			fmt.Printf("  %-12s %d\n", status, count)
		}
	}
	if len(stats.MarketCounts) > 0 {
		fmt.Println("By market:")
		for market, count := range stats.MarketCounts {
			fmt.Printf("  %-12s %d\n", market, count)
		}
	}

	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
