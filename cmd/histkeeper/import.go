package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <snapshot>",
		Short: "Import analysis records from a snapshot file",
		Long: `Read a snapshot and upsert its records by ID. Compressed
snapshots are detected automatically. Invalid records are skipped and
reported; importing the same snapshot twice is a no-op update.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("skip-validation", false, "do not re-validate record fields")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	skipValidation, _ := cmd.Flags().GetBool("skip-validation")

	ctx := cmd.Context()
	engine, store, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := engine.Import(ctx, args[0], skipValidation)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d records, skipped %d (%s)\n",
		result.ImportedCount, result.SkippedCount,
		result.Duration.Round(time.Millisecond))

	for _, warning := range result.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	for _, errMsg := range result.Errors {
		fmt.Printf("  error: %s\n", errMsg)
	}

	return nil
}
