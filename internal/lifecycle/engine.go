// Package lifecycle bundles the cleanup, monitoring, and backup
// engines behind one explicitly constructed facade. Callers inject the
// record store; there is no process-wide singleton.
package lifecycle

import (
	"context"
	"time"

	"github.com/quantlake/histkeeper/internal/backup"
	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/monitor"
	"github.com/quantlake/histkeeper/internal/retention"
	"github.com/quantlake/histkeeper/internal/service"
)

// Engine exposes the data-lifecycle entry points. All calls are
// synchronous, operate only through the record store adapter, and
// return structured results without any direct user I/O.
type Engine struct {
	store   service.RecordStore
	cleaner *retention.Cleaner
	monitor *monitor.Monitor
	backup  *backup.Engine
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	monitorOpts []monitor.Option
}

// WithMetrics attaches Prometheus collectors to the storage monitor.
func WithMetrics(metrics *monitor.Metrics) Option {
	return func(o *options) {
		o.monitorOpts = append(o.monitorOpts, monitor.WithMetrics(metrics))
	}
}

// WithGrowthWindow overrides the trailing growth window in days.
func WithGrowthWindow(days int) Option {
	return func(o *options) {
		o.monitorOpts = append(o.monitorOpts, monitor.WithGrowthWindow(days))
	}
}

// New creates a lifecycle engine over the given record store.
func New(store service.RecordStore, opts ...Option) *Engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		store:   store,
		cleaner: retention.NewCleaner(store),
		monitor: monitor.NewMonitor(store, o.monitorOpts...),
		backup:  backup.NewEngine(store),
	}
}

// Cleanup applies a retention policy in batches.
func (e *Engine) Cleanup(ctx context.Context, policy model.RetentionPolicy) (*model.CleanupResult, error) {
	return e.cleaner.CleanupOldRecords(ctx, policy)
}

// CleanupFailed removes failed and cancelled records older than maxAge.
func (e *Engine) CleanupFailed(ctx context.Context, maxAge time.Duration, batchSize int, dryRun bool) (*model.CleanupResult, error) {
	return e.cleaner.CleanupFailedRecords(ctx, maxAge, batchSize, dryRun)
}

// Stats collects a point-in-time storage statistics snapshot.
func (e *Engine) Stats(ctx context.Context) (*model.StorageStatistics, error) {
	return e.monitor.StorageStatistics(ctx)
}

// Alerts evaluates storage statistics against the supplied thresholds.
func (e *Engine) Alerts(ctx context.Context, thresholds model.AlertThresholds) (*model.AlertReport, error) {
	return e.monitor.CheckStorageAlerts(ctx, thresholds)
}

// Export streams matching records into a snapshot file.
func (e *Engine) Export(ctx context.Context, path string, filter model.ExportFilter, compress bool) (*model.ExportResult, error) {
	return e.backup.Export(ctx, path, filter, compress)
}

// Import loads a snapshot file, upserting records by ID.
func (e *Engine) Import(ctx context.Context, path string, skipValidation bool) (*model.ImportResult, error) {
	return e.backup.Import(ctx, path, skipValidation)
}

// Cleaner exposes the cleanup engine, e.g. to attach a progress hook.
func (e *Engine) Cleaner() *retention.Cleaner {
	return e.cleaner
}

// Backup exposes the backup engine, e.g. to attach a progress hook.
func (e *Engine) Backup() *backup.Engine {
	return e.backup
}
