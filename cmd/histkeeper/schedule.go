package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantlake/histkeeper/internal/backup"
	"github.com/quantlake/histkeeper/internal/schedule"
	"github.com/quantlake/histkeeper/internal/service"
)

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the maintenance scheduler in the foreground",
		Long: `Run the cron-driven maintenance jobs (cleanup, alert checks,
backups) until interrupted. Schedules and thresholds come from the
configuration file; an empty schedule disables its job.`,
		RunE: runSchedule,
	}
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	engine, store, cfg, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	schedCfg := schedule.Config{
		CleanupSchedule: cfg.Retention.Schedule,
		CleanupPolicy:   cfg.Retention.Policy(),
		FailedMaxAge:    cfg.Retention.FailedMaxAge(),
		MonitorSchedule: cfg.Monitor.Schedule,
		Thresholds:      cfg.Monitor.Thresholds(),
		BackupSchedule:  cfg.Backup.Schedule,
		BackupDir:       cfg.Backup.Dir,
		BackupFrequency: cfg.Backup.Frequency(),
		CompressBackups: cfg.Backup.Compress,
		KeepBackups:     cfg.Backup.KeepBackups,
	}

	var opts []schedule.Option
	if cfg.Backup.Upload.Enabled {
		var uploader service.SnapshotUploader
		uploader, err = backup.NewMinIOUploader(ctx, backup.MinIOConfig{
			Endpoint:  cfg.Backup.Upload.Endpoint,
			AccessKey: cfg.Backup.Upload.AccessKey,
			SecretKey: cfg.Backup.Upload.SecretKey,
			Bucket:    cfg.Backup.Upload.Bucket,
			Region:    cfg.Backup.Upload.Region,
			UseSSL:    cfg.Backup.Upload.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect snapshot uploader: %w", err)
		}
		opts = append(opts, schedule.WithUploader(uploader))
	}

	scheduler := schedule.NewScheduler(engine, schedCfg, opts...)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	if !scheduler.IsRunning() {
		return fmt.Errorf("no maintenance jobs configured")
	}

	if next := scheduler.NextRun(); next != nil {
		fmt.Printf("Maintenance scheduler running; next job at %s\n", next.Format("2006-01-02 15:04:05"))
	}

	<-ctx.Done()
	scheduler.Stop()
	return nil
}
