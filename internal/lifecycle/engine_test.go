package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
	"github.com/quantlake/histkeeper/internal/storage"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, service.RecordStore) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return New(store, opts...), store
}

func seedEngine(t *testing.T, store service.RecordStore, n int, createdAt time.Time, status model.AnalysisStatus) {
	t.Helper()

	records := make([]model.AnalysisRecord, n)
	for i := range records {
		records[i] = model.AnalysisRecord{
			ID:         fmt.Sprintf("analysis_%s_%s_%04d", createdAt.Format("20060102"), status, i),
			Symbol:     "NVDA",
			MarketType: model.MarketUSStock,
			Status:     status,
			CreatedAt:  createdAt.Add(time.Duration(i) * time.Second),
			UpdatedAt:  createdAt.Add(time.Duration(i) * time.Second),
		}
	}
	require.NoError(t, store.SaveRecords(context.Background(), records))
}

func TestEngine_CleanupThroughStore(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-400 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	seedEngine(t, store, 30, old, model.StatusCompleted)
	seedEngine(t, store, 5, recent, model.StatusCompleted)

	result, err := engine.Cleanup(ctx, model.RetentionPolicy{
		MaxAge:    365 * 24 * time.Hour,
		BatchSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(30), result.TotalFound)
	assert.Equal(t, int64(30), result.TotalDeleted)
	assert.Equal(t, 3, result.BatchesProcessed)

	remaining, err := store.CountRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), remaining)
}

func TestEngine_CleanupFailedLeavesCompleted(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	seedEngine(t, store, 4, old, model.StatusFailed)
	seedEngine(t, store, 2, old, model.StatusCancelled)
	seedEngine(t, store, 3, old, model.StatusCompleted)

	result, err := engine.CleanupFailed(ctx, 24*time.Hour, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.TotalDeleted)

	remaining, err := store.CountRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining, "completed records of the same age survive")
}

func TestEngine_StatsAndAlerts(t *testing.T) {
	engine, store := newTestEngine(t, WithGrowthWindow(14))
	ctx := context.Background()

	seedEngine(t, store, 12, time.Now().UTC().Add(-time.Hour), model.StatusCompleted)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalDocuments)
	assert.Equal(t, 14, stats.GrowthWindowDays)

	report, err := engine.Alerts(ctx, model.AlertThresholds{MaxDocuments: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlertCount, "12 documents over a limit of 10")

	quiet, err := engine.Alerts(ctx, model.AlertThresholds{MaxDocuments: 100000})
	require.NoError(t, err)
	assert.Zero(t, quiet.AlertCount)
	assert.Zero(t, quiet.WarningCount)
}

func TestEngine_ExportImportAcrossStores(t *testing.T) {
	source, sourceStore := newTestEngine(t)
	ctx := context.Background()

	seedEngine(t, sourceStore, 20, time.Now().UTC().Add(-time.Hour), model.StatusCompleted)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	exportResult, err := source.Export(ctx, path, model.ExportFilter{}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(20), exportResult.ExportedCount)

	target, targetStore := newTestEngine(t)
	importResult, err := target.Import(ctx, exportResult.Path, false)
	require.NoError(t, err)
	assert.Equal(t, int64(20), importResult.ImportedCount)
	assert.Empty(t, importResult.Warnings)

	count, err := targetStore.CountRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
}

func TestEngine_ProgressHookAccessors(t *testing.T) {
	engine, _ := newTestEngine(t)

	require.NotNil(t, engine.Cleaner())
	require.NotNil(t, engine.Backup())

	engine.Cleaner().Progress = func(_, _ int64) {}
	engine.Backup().Progress = func(_, _ int64) {}
}
