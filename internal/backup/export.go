// Package backup streams analysis records to and from portable
// snapshot files. A snapshot is a manifest line followed by one JSON
// record per line, optionally gzip-compressed.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/quantlake/histkeeper/internal/common"
	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
)

// ProgressFunc reports export progress after each written record.
type ProgressFunc func(done, total int64)

// Engine exports and imports snapshot files against a record store.
type Engine struct {
	store  service.RecordStore
	logger *slog.Logger

	// Progress, when set, is invoked per exported record.
	Progress ProgressFunc

	now func() time.Time
}

// NewEngine creates a backup engine over the given record store.
func NewEngine(store service.RecordStore) *Engine {
	return &Engine{
		store:  store,
		logger: common.ComponentLogger("backup"),
		now:    time.Now,
	}
}

// errCancelled stops record iteration on cooperative cancellation.
var errCancelled = errors.New("operation cancelled")

// Export streams all records matching filter into a snapshot at path.
// The manifest's total_records is computed eagerly by a count query, so
// it is always accurate for a complete export. A mid-stream failure
// leaves the partial file on disk; the result reports the count
// actually written alongside the surfaced error. Cancellation stops
// cleanly with a partial result and no error.
func (e *Engine) Export(ctx context.Context, path string, filter model.ExportFilter, compress bool) (*model.ExportResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("export path cannot be empty")
	}

	start := e.now()

	storeFilter := service.RecordFilter{
		MarketType:  filter.MarketType,
		CreatedFrom: filter.DateFrom,
		CreatedTo:   filter.DateTo,
	}
	if filter.Status != nil {
		storeFilter.Statuses = []model.AnalysisStatus{*filter.Status}
	}

	total, err := e.store.CountRecords(ctx, storeFilter)
	if err != nil {
		return nil, fmt.Errorf("record store unavailable: %w", err)
	}

	if compress && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	result := &model.ExportResult{
		Path:       path,
		Compressed: compress,
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	counter := &countingWriter{w: f}
	var sink io.Writer = counter
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(counter)
		sink = gz
	}
	bw := bufio.NewWriter(sink)
	enc := json.NewEncoder(bw)

	writeErr := e.writeSnapshot(ctx, enc, storeFilter, filter, total, result)

	// Deterministic close of the writer chain on every exit path.
	if err := bw.Flush(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("failed to flush export stream: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil && writeErr == nil {
			writeErr = fmt.Errorf("failed to close compressed stream: %w", err)
		}
	}
	if err := f.Close(); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("failed to close export file: %w", err)
	}

	result.BytesWritten = counter.n
	result.Duration = e.now().Sub(start)

	if errors.Is(writeErr, errCancelled) || errors.Is(writeErr, context.Canceled) {
		e.logger.Info("export cancelled, partial snapshot left on disk",
			"path", path,
			"exported", result.ExportedCount)
		return result, nil
	}
	if writeErr != nil {
		return result, fmt.Errorf("export failed after %d records: %w", result.ExportedCount, writeErr)
	}

	e.logger.Info("export complete",
		"path", path,
		"exported", result.ExportedCount,
		"bytes", result.BytesWritten,
		"compressed", compress,
		"duration", result.Duration)

	return result, nil
}

func (e *Engine) writeSnapshot(ctx context.Context, enc *json.Encoder, storeFilter service.RecordFilter, filter model.ExportFilter, total int64, result *model.ExportResult) error {
	manifest := model.BackupManifest{
		ExportTimestamp: e.now(),
		TotalRecords:    total,
		FormatVersion:   model.SnapshotFormatVersion,
		Filter:          filter.Describe(),
	}
	if err := enc.Encode(manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return e.store.ForEachRecord(ctx, storeFilter, func(record *model.AnalysisRecord) error {
		select {
		case <-ctx.Done():
			return errCancelled
		default:
		}

		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to write record %s: %w", record.ID, err)
		}
		result.ExportedCount++
		if e.Progress != nil {
			e.Progress(result.ExportedCount, total)
		}
		return nil
	})
}

// countingWriter tracks the bytes that actually reach the destination.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
