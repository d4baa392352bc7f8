package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/quantlake/histkeeper/internal/model"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export analysis records to a snapshot file",
		Long: `Stream matching records into a portable snapshot: one manifest
line followed by one JSON record per line. With --compress the stream
is gzip-compressed and the path gains a .gz suffix.`,
		RunE: runExport,
	}

	cmd.Flags().StringP("output", "o", "", "snapshot path (required)")
	cmd.Flags().Bool("compress", false, "gzip-compress the snapshot")
	cmd.Flags().String("status", "", "only export records with this status")
	cmd.Flags().String("market", "", "only export records for this market type")
	cmd.Flags().String("from", "", "only export records created on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "only export records created before this date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	compress, _ := cmd.Flags().GetBool("compress")

	filter, err := exportFilterFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	engine, store, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var bar *progressbar.ProgressBar
	engine.Backup().Progress = func(done, total int64) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetDescription("Exporting records..."),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40))
		}
		_ = bar.Set64(done)
	}

	result, err := engine.Export(ctx, output, filter, compress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d records to %s (%s, %s)\n",
		result.ExportedCount, result.Path, formatBytes(result.BytesWritten),
		result.Duration.Round(time.Millisecond))

	return nil
}

func exportFilterFromFlags(cmd *cobra.Command) (model.ExportFilter, error) {
	var filter model.ExportFilter

	if s, _ := cmd.Flags().GetString("status"); s != "" {
		status := model.AnalysisStatus(s)
		if !status.IsValid() {
			return filter, fmt.Errorf("unknown status: %q", s)
		}
		filter.Status = &status
	}
	if m, _ := cmd.Flags().GetString("market"); m != "" {
		market := model.MarketType(m)
		if !market.IsValid() {
			return filter, fmt.Errorf("unknown market type: %q", m)
		}
		filter.MarketType = &market
	}
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, fmt.Errorf("invalid --from date: %w", err)
		}
		filter.DateFrom = &t
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, fmt.Errorf("invalid --to date: %w", err)
		}
		filter.DateTo = &t
	}

	return filter, nil
}
