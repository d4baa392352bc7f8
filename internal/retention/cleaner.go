// Package retention implements policy-driven batched cleanup of
// analysis records.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantlake/histkeeper/internal/common"
	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
)

// ProgressFunc reports cleanup progress after each batch.
type ProgressFunc func(deleted, total int64)

// Cleaner applies retention policies to the record store in batches.
// Runs are idempotent and safe to retry: candidates are re-queried
// after every batch instead of paged by offset, so concurrent cleanup
// runs at worst do redundant work.
type Cleaner struct {
	store  service.RecordStore
	logger *slog.Logger

	// Progress, when set, is invoked after each deleted batch.
	Progress ProgressFunc

	// now is swapped out in tests.
	now func() time.Time
}

// NewCleaner creates a cleaner over the given record store.
func NewCleaner(store service.RecordStore) *Cleaner {
	return &Cleaner{
		store:  store,
		logger: common.ComponentLogger("retention"),
		now:    time.Now,
	}
}

// CleanupOldRecords deletes records older than policy.MaxAge matching
// the policy's status filter. A dry run only counts. Configuration
// violations fail before any store query; a failure of the initial
// count query aborts the run; single-batch failures are recorded in
// the result and the run continues.
func (c *Cleaner) CleanupOldRecords(ctx context.Context, policy model.RetentionPolicy) (*model.CleanupResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	start := c.now()
	cutoff := start.Add(-policy.MaxAge)
	filter := service.RecordFilter{
		Statuses:      policy.Statuses,
		CreatedBefore: &cutoff,
	}

	total, err := c.store.CountRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("record store unavailable: %w", err)
	}

	result := &model.CleanupResult{
		TotalFound: total,
		DryRun:     policy.DryRun,
	}

	if total == 0 {
		c.logger.Info("no records eligible for cleanup", "cutoff", cutoff)
		result.Duration = c.now().Sub(start)
		return result, nil
	}

	if policy.DryRun {
		result.TotalDeleted = total
		result.BatchesProcessed = int((total + int64(policy.BatchSize) - 1) / int64(policy.BatchSize))
		result.Duration = c.now().Sub(start)
		c.logger.Info("dry run complete",
			"total_found", total,
			"batches", result.BatchesProcessed)
		return result, nil
	}

	batchFilter := filter
	batchFilter.Limit = policy.BatchSize

	for batch := 0; batch < policy.EffectiveMaxBatches(); batch++ {
		select {
		case <-ctx.Done():
			c.logger.Info("cleanup cancelled, returning partial result",
				"deleted", result.TotalDeleted,
				"total_found", total)
			result.Duration = c.now().Sub(start)
			return result, nil
		default:
		}

		ids, findErr := c.store.FindRecordIDs(ctx, batchFilter)
		if findErr != nil {
			result.BatchesProcessed++
			result.Errors = append(result.Errors, model.BatchError{
				Batch:   batch,
				Message: fmt.Sprintf("candidate query failed: %v", findErr),
			})
			c.logger.Error("batch candidate query failed", "batch", batch, "error", findErr)
			continue
		}
		if len(ids) == 0 {
			break
		}

		deleted, delErr := c.store.DeleteRecordsByIDs(ctx, ids)
		result.BatchesProcessed++
		if delErr != nil {
			result.Errors = append(result.Errors, model.BatchError{
				Batch:   batch,
				Message: fmt.Sprintf("batch delete failed: %v", delErr),
			})
			c.logger.Error("batch delete failed", "batch", batch, "error", delErr)
			continue
		}

		// deleted may be less than len(ids) if another run got there
		// first; that is not an error.
		result.TotalDeleted += deleted
		if c.Progress != nil {
			c.Progress(result.TotalDeleted, total)
		}

		c.logger.Debug("batch deleted",
			"batch", batch,
			"requested", len(ids),
			"deleted", deleted)
	}

	result.Duration = c.now().Sub(start)
	c.logger.Info("cleanup complete",
		"total_found", result.TotalFound,
		"total_deleted", result.TotalDeleted,
		"batches", result.BatchesProcessed,
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result, nil
}

// CleanupFailedRecords deletes failed and cancelled records older than
// maxAge. Failed runs usually carry no reusable results, so they are
// retired on a much shorter horizon than completed analyses.
func (c *Cleaner) CleanupFailedRecords(ctx context.Context, maxAge time.Duration, batchSize int, dryRun bool) (*model.CleanupResult, error) {
	return c.CleanupOldRecords(ctx, model.RetentionPolicy{
		MaxAge:    maxAge,
		Statuses:  model.FailureStatuses(),
		BatchSize: batchSize,
		DryRun:    dryRun,
	})
}
