package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlake/histkeeper/internal/model"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Check storage usage against alert thresholds",
		Long: `Evaluate current storage statistics against the configured
thresholds. A metric at or above its limit raises an alert; one at or
above the warning ratio raises a warning. Flags override the
configuration file.`,
		RunE: runAlerts,
	}

	cmd.Flags().Int64("max-size-mb", 0, "storage size limit in MB (0 uses config)")
	cmd.Flags().Int64("max-documents", 0, "document count limit (0 uses config)")
	cmd.Flags().Float64("max-daily-growth", 0, "daily growth limit (0 uses config)")
	cmd.Flags().Float64("warning-ratio", 0, "warning ratio (0 uses config)")

	return cmd
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	engine, store, cfg, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	thresholds := cfg.Monitor.Thresholds()
	if v, _ := cmd.Flags().GetInt64("max-size-mb"); v > 0 {
		thresholds.MaxSizeBytes = v * 1024 * 1024
	}
	if v, _ := cmd.Flags().GetInt64("max-documents"); v > 0 {
		thresholds.MaxDocuments = v
	}
	if v, _ := cmd.Flags().GetFloat64("max-daily-growth"); v > 0 {
		thresholds.MaxDailyGrowth = v
	}
	if v, _ := cmd.Flags().GetFloat64("warning-ratio"); v > 0 {
		thresholds.WarningRatio = v
	}

	report, err := engine.Alerts(ctx, thresholds)
	if err != nil {
		return err
	}

	if len(report.Descriptors) == 0 {
		fmt.Println("Storage usage within all thresholds")
		return nil
	}

	fmt.Printf("%d alert(s), %d warning(s)\n", report.AlertCount, report.WarningCount)
	for _, d := range report.Descriptors {
		marker := "WARN "
		if d.Severity == model.SeverityAlert {
			marker = "ALERT"
		}
		fmt.Printf("  [%s] %s\n", marker, d.Message)
	}

	return nil
}
