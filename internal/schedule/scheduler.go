// Package schedule runs periodic maintenance against the lifecycle
// engine: retention cleanup, storage alert checks, and backup
// snapshots with local retention and optional off-host upload.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quantlake/histkeeper/internal/common"
	"github.com/quantlake/histkeeper/internal/lifecycle"
	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
)

// snapshotPrefix names scheduled backup files; pruning only ever
// touches files carrying it.
const snapshotPrefix = "history_backup_"

// Config controls which maintenance jobs run and how often. An empty
// cron expression disables that job.
type Config struct {
	// CleanupSchedule triggers retention cleanup, e.g. "0 3 * * *".
	CleanupSchedule string
	CleanupPolicy   model.RetentionPolicy

	// FailedMaxAge retires failed/cancelled records on a shorter
	// horizon during the cleanup job. Zero disables it.
	FailedMaxAge time.Duration

	// MonitorSchedule triggers threshold checks.
	MonitorSchedule string
	Thresholds      model.AlertThresholds

	// BackupSchedule triggers snapshot exports into BackupDir.
	BackupSchedule string
	BackupDir      string

	// BackupFrequency skips the backup job while the newest snapshot
	// is younger than this. Zero means always back up when triggered.
	BackupFrequency time.Duration

	CompressBackups bool

	// KeepBackups bounds the snapshots retained in BackupDir. Zero
	// means unlimited.
	KeepBackups int
}

// Scheduler wires the maintenance jobs into a cron runner.
type Scheduler struct {
	engine   *lifecycle.Engine
	uploader service.SnapshotUploader
	config   Config
	cron     *cron.Cron
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithUploader pushes every finished snapshot to off-host storage.
func WithUploader(uploader service.SnapshotUploader) Option {
	return func(s *Scheduler) {
		s.uploader = uploader
	}
}

// NewScheduler creates a maintenance scheduler over the engine.
func NewScheduler(engine *lifecycle.Engine, config Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine: engine,
		config: config,
		cron:   cron.New(),
		logger: common.ComponentLogger("schedule"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the configured jobs and begins the cron runner. The
// scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"cleanup", s.config.CleanupSchedule, s.runCleanup},
		{"monitor", s.config.MonitorSchedule, s.runMonitor},
		{"backup", s.config.BackupSchedule, s.runBackup},
	}

	registered := 0
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(job.schedule); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.schedule, err)
		}
		run := job.run
		if _, err := s.cron.AddFunc(job.schedule, func() { run(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		s.logger.Info("maintenance job scheduled", "job", job.name, "schedule", job.schedule)
		registered++
	}

	if registered == 0 {
		s.logger.Info("no maintenance jobs configured, scheduler idle")
		return nil
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("maintenance scheduler stopped")
	}
}

// IsRunning reports whether the cron runner is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled job time, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	for _, e := range entries[1:] {
		if e.Next.Before(next) {
			next = e.Next
		}
	}
	return &next
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	result, err := s.engine.Cleanup(ctx, s.config.CleanupPolicy)
	if err != nil {
		s.logger.Error("scheduled cleanup failed", "error", err)
	} else {
		s.logger.Info("scheduled cleanup complete",
			"total_found", result.TotalFound,
			"total_deleted", result.TotalDeleted,
			"errors", len(result.Errors))
	}

	if s.config.FailedMaxAge <= 0 {
		return
	}
	failedResult, err := s.engine.CleanupFailed(ctx, s.config.FailedMaxAge,
		s.config.CleanupPolicy.BatchSize, s.config.CleanupPolicy.DryRun)
	if err != nil {
		s.logger.Error("scheduled failed-record cleanup failed", "error", err)
		return
	}
	s.logger.Info("scheduled failed-record cleanup complete",
		"total_deleted", failedResult.TotalDeleted)
}

func (s *Scheduler) runMonitor(ctx context.Context) {
	report, err := s.engine.Alerts(ctx, s.config.Thresholds)
	if err != nil {
		s.logger.Error("scheduled alert check failed", "error", err)
		return
	}
	for _, d := range report.Descriptors {
		switch d.Severity {
		case model.SeverityAlert:
			s.logger.Error("storage alert", "metric", d.Metric, "message", d.Message)
		case model.SeverityWarning:
			s.logger.Warn("storage warning", "metric", d.Metric, "message", d.Message)
		}
	}
}

func (s *Scheduler) runBackup(ctx context.Context) {
	if s.config.BackupFrequency > 0 {
		if newest, ok := newestSnapshot(s.config.BackupDir); ok &&
			time.Since(newest) < s.config.BackupFrequency {
			s.logger.Info("backup not needed yet", "last_backup", newest)
			return
		}
	}

	name := snapshotPrefix + time.Now().Format("20060102_150405") + ".json"
	path := filepath.Join(s.config.BackupDir, name)

	result, err := s.engine.Export(ctx, path, model.ExportFilter{}, s.config.CompressBackups)
	if err != nil {
		s.logger.Error("scheduled backup failed", "error", err)
		return
	}
	s.logger.Info("scheduled backup complete",
		"path", result.Path,
		"exported", result.ExportedCount,
		"bytes", result.BytesWritten)

	if s.uploader != nil {
		url, err := s.uploader.Upload(ctx, result.Path, filepath.Base(result.Path))
		if err != nil {
			s.logger.Error("snapshot upload failed", "error", err)
		} else {
			s.logger.Info("snapshot uploaded", "url", url)
		}
	}

	if err := pruneSnapshots(s.config.BackupDir, s.config.KeepBackups); err != nil {
		s.logger.Error("snapshot pruning failed", "error", err)
	}
}

// newestSnapshot returns the modification time of the most recent
// snapshot in dir.
func newestSnapshot(dir string) (time.Time, bool) {
	paths, err := filepath.Glob(filepath.Join(dir, snapshotPrefix+"*.json*"))
	if err != nil || len(paths) == 0 {
		return time.Time{}, false
	}

	var newest time.Time
	found := false
	for _, p := range paths {
		info, statErr := os.Stat(p)
		if statErr != nil {
			continue
		}
		if !found || info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
	}
	return newest, found
}

// pruneSnapshots removes the oldest snapshots beyond keep. Zero keep
// means unlimited retention.
func pruneSnapshots(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}

	paths, err := filepath.Glob(filepath.Join(dir, snapshotPrefix+"*.json*"))
	if err != nil {
		return err
	}
	if len(paths) <= keep {
		return nil
	}

	type snapshot struct {
		path    string
		modTime time.Time
	}
	snapshots := make([]snapshot, 0, len(paths))
	for _, p := range paths {
		info, statErr := os.Stat(p)
		if statErr != nil {
			continue
		}
		snapshots = append(snapshots, snapshot{path: p, modTime: info.ModTime()})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].modTime.After(snapshots[j].modTime)
	})

	for _, old := range snapshots[keep:] {
		if err := os.Remove(old.path); err != nil {
			return fmt.Errorf("failed to remove old snapshot %s: %w", old.path, err)
		}
	}
	return nil
}
