// Package service defines the interfaces the lifecycle engine consumes.
package service

import (
	"context"
	"time"

	"github.com/quantlake/histkeeper/internal/model"
)

// RecordFilter defines filtering options for record queries. Date
// bounds follow the store convention: CreatedFrom is inclusive,
// CreatedBefore and CreatedTo are exclusive.
type RecordFilter struct {
	Statuses      []model.AnalysisStatus
	MarketType    *model.MarketType
	CreatedBefore *time.Time
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
}

// RecordStore is the narrow seam to the persistent record collection.
// The engine never issues store-specific query syntax outside
// implementations of this interface.
type RecordStore interface {
	// SaveRecords inserts new records, ignoring duplicates by ID.
	SaveRecords(ctx context.Context, records []model.AnalysisRecord) error

	// GetRecordByID fetches one record, or nil when absent.
	GetRecordByID(ctx context.Context, id string) (*model.AnalysisRecord, error)

	// UpsertRecord inserts or fully replaces a record by ID. The bool
	// reports whether a new record was created.
	UpsertRecord(ctx context.Context, record *model.AnalysisRecord) (bool, error)

	// FindRecordIDs returns matching record IDs ordered by created_at
	// ascending, bounded by filter.Limit when positive.
	FindRecordIDs(ctx context.Context, filter RecordFilter) ([]string, error)

	// CountRecords counts records matching the filter.
	CountRecords(ctx context.Context, filter RecordFilter) (int64, error)

	// DeleteRecordsByIDs removes the listed records and reports how
	// many were actually deleted.
	DeleteRecordsByIDs(ctx context.Context, ids []string) (int64, error)

	// ForEachRecord streams matching records ordered by created_at
	// ascending, invoking fn per record without materializing the
	// result set. fn returning an error stops the iteration.
	ForEachRecord(ctx context.Context, filter RecordFilter, fn func(*model.AnalysisRecord) error) error

	// CollectStorageStats runs the read-only aggregate queries backing
	// the storage monitor.
	CollectStorageStats(ctx context.Context, growthWindowDays int) (*model.StorageStatistics, error)

	// Migrate brings the underlying schema to the current version.
	Migrate(ctx context.Context) error

	Close() error
}

// SnapshotUploader pushes finished snapshot files to off-host storage.
type SnapshotUploader interface {
	// Upload stores the local snapshot under key and returns the
	// resulting object URL.
	Upload(ctx context.Context, localPath, key string) (string, error)
}
