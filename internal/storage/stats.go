package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quantlake/histkeeper/internal/model"
)

// perRowOverheadBytes approximates the fixed storage cost of the scalar
// columns of one row when estimating payload size.
const perRowOverheadBytes = 128

// CollectStorageStats runs the read-only aggregate queries backing the
// storage monitor. The result is advisory; no locking is taken.
func (s *SQLiteStore) CollectStorageStats(ctx context.Context, growthWindowDays int) (*model.StorageStatistics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if growthWindowDays <= 0 {
		growthWindowDays = 7
	}

	stats := &model.StorageStatistics{
		StatusCounts:     make(map[model.AnalysisStatus]int64),
		MarketCounts:     make(map[model.MarketType]int64),
		GrowthWindowDays: growthWindowDays,
		CollectedAt:      time.Now(),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(
				LENGTH(id) + LENGTH(symbol) + LENGTH(COALESCE(name, '')) +
				LENGTH(COALESCE(analysts, '')) + LENGTH(COALESCE(raw_results, '')) +
				LENGTH(COALESCE(formatted_results, '')) + LENGTH(COALESCE(metadata, '')) +
				?), 0)
		FROM analysis_records
	`, perRowOverheadBytes).Scan(&stats.TotalDocuments, &stats.TotalSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate size and count: %w", err)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page_size: %w", err)
	}
	stats.FileSizeBytes = pageCount * pageSize
	if overhead := stats.FileSizeBytes - stats.TotalSizeBytes; overhead > 0 {
		stats.IndexOverheadBytes = overhead
	}
	if stats.TotalDocuments > 0 {
		stats.AvgDocSizeBytes = stats.TotalSizeBytes / stats.TotalDocuments
	}

	if err := s.groupCounts(ctx, "status", func(key string, count int64) {
		stats.StatusCounts[model.AnalysisStatus(key)] = count
	}); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "market_type", func(key string, count int64) {
		stats.MarketCounts[model.MarketType(key)] = count
	}); err != nil {
		return nil, err
	}

	windowStart := time.Now().AddDate(0, 0, -growthWindowDays)
	var recent int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_records WHERE created_at >= ?`, windowStart).Scan(&recent)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent records: %w", err)
	}
	stats.AvgDailyGrowth = float64(recent) / float64(growthWindowDays)

	// Plain column selects keep the DATETIME declared type; aggregates
	// like MIN() would come back as bare text.
	oldest, err := s.boundaryTime(ctx, "ASC")
	if err != nil {
		return nil, err
	}
	stats.OldestRecord = oldest

	newest, err := s.boundaryTime(ctx, "DESC")
	if err != nil {
		return nil, err
	}
	stats.NewestRecord = newest

	return stats, nil
}

// boundaryTime returns the first created_at in the given sort order,
// or nil for an empty collection.
func (s *SQLiteStore) boundaryTime(ctx context.Context, order string) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM analysis_records ORDER BY created_at `+order+` LIMIT 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record time range: %w", err)
	}
	return &t, nil
}

// groupCounts runs a GROUP BY aggregate over one column.
func (s *SQLiteStore) groupCounts(ctx context.Context, column string, add func(string, int64)) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM analysis_records GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to group by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s counts: %w", column, err)
		}
		add(key, count)
	}
	return rows.Err()
}
