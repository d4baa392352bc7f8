package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test store: %v", err)
	}
	return store
}

func testRecord(id string, createdAt time.Time) model.AnalysisRecord {
	return model.AnalysisRecord{
		ID:            id,
		Symbol:        "AAPL",
		Name:          "Apple Inc.",
		MarketType:    model.MarketUSStock,
		Status:        model.StatusCompleted,
		AnalysisType:  "comprehensive",
		Analysts:      []string{"market", "news"},
		ResearchDepth: 2,
		LLMProvider:   "dashscope",
		LLMModel:      "qwen-plus",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func seedRecords(t *testing.T, store *SQLiteStore, records []model.AnalysisRecord) {
	t.Helper()
	if err := store.SaveRecords(context.Background(), records); err != nil {
		t.Fatalf("failed to seed records: %v", err)
	}
}

func TestSQLiteStore_SaveAndGetRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := created.Add(5 * time.Minute)

	record := testRecord("analysis_1", created)
	record.CompletedAt = &completed
	record.ExecutionSeconds = 300.5
	record.TokenUsage = model.TokenUsage{InputTokens: 1200, OutputTokens: 800, TotalTokens: 2000, TotalCost: 0.42}
	record.RawResults = map[string]any{"market_report": "bullish"}
	record.Metadata = map[string]any{"source": "cli"}

	seedRecords(t, store, []model.AnalysisRecord{record})

	got, err := store.GetRecordByID(ctx, "analysis_1")
	if err != nil {
		t.Fatalf("GetRecordByID() error: %v", err)
	}
	if got == nil {
		t.Fatal("GetRecordByID() returned nil for saved record")
	}

	if got.Symbol != "AAPL" || got.MarketType != model.MarketUSStock {
		t.Errorf("core fields not round-tripped: %+v", got)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if len(got.Analysts) != 2 || got.Analysts[0] != "market" {
		t.Errorf("analysts not round-tripped: %v", got.Analysts)
	}
	if got.TokenUsage.TotalTokens != 2000 || got.TokenUsage.TotalCost != 0.42 {
		t.Errorf("token usage not round-tripped: %+v", got.TokenUsage)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, completed)
	}
	if got.RawResults["market_report"] != "bullish" {
		t.Errorf("raw results not round-tripped: %v", got.RawResults)
	}
	if got.Metadata["source"] != "cli" {
		t.Errorf("metadata not round-tripped: %v", got.Metadata)
	}
}

func TestSQLiteStore_GetRecordByID_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetRecordByID(context.Background(), "no_such_record")
	if err != nil {
		t.Fatalf("GetRecordByID() error: %v", err)
	}
	if got != nil {
		t.Fatalf("GetRecordByID() = %+v, want nil for missing record", got)
	}
}

func TestSQLiteStore_SaveRecords_IgnoresDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	original := testRecord("analysis_dup", created)
	seedRecords(t, store, []model.AnalysisRecord{original})

	changed := original
	changed.Symbol = "MSFT"
	seedRecords(t, store, []model.AnalysisRecord{changed})

	got, err := store.GetRecordByID(ctx, "analysis_dup")
	if err != nil {
		t.Fatalf("GetRecordByID() error: %v", err)
	}
	if got.Symbol != "AAPL" {
		t.Errorf("duplicate insert overwrote record: symbol = %s", got.Symbol)
	}
}

func TestSQLiteStore_UpsertRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	record := testRecord("analysis_up", created)

	wasCreated, err := store.UpsertRecord(ctx, &record)
	if err != nil {
		t.Fatalf("UpsertRecord() error: %v", err)
	}
	if !wasCreated {
		t.Error("first upsert should report created")
	}

	record.Status = model.StatusFailed
	wasCreated, err = store.UpsertRecord(ctx, &record)
	if err != nil {
		t.Fatalf("UpsertRecord() error: %v", err)
	}
	if wasCreated {
		t.Error("second upsert should report replaced, not created")
	}

	got, err := store.GetRecordByID(ctx, "analysis_up")
	if err != nil {
		t.Fatalf("GetRecordByID() error: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("upsert did not replace record: status = %s", got.Status)
	}
}

func TestSQLiteStore_FindRecordIDs_OrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []model.AnalysisRecord{
		testRecord("analysis_c", base.Add(2*time.Hour)),
		testRecord("analysis_a", base),
		testRecord("analysis_b", base.Add(time.Hour)),
	}
	seedRecords(t, store, records)

	ids, err := store.FindRecordIDs(ctx, service.RecordFilter{})
	if err != nil {
		t.Fatalf("FindRecordIDs() error: %v", err)
	}
	want := []string{"analysis_a", "analysis_b", "analysis_c"}
	if len(ids) != 3 {
		t.Fatalf("FindRecordIDs() returned %d IDs, want 3", len(ids))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("ids[%d] = %s, want %s (created_at ascending)", i, ids[i], id)
		}
	}

	limited, err := store.FindRecordIDs(ctx, service.RecordFilter{Limit: 2})
	if err != nil {
		t.Fatalf("FindRecordIDs() error: %v", err)
	}
	if len(limited) != 2 || limited[0] != "analysis_a" {
		t.Errorf("limited query = %v, want first two oldest", limited)
	}
}

func TestSQLiteStore_CountAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	failed := testRecord("analysis_failed", base)
	failed.Status = model.StatusFailed

	hk := testRecord("analysis_hk", base.Add(time.Hour))
	hk.MarketType = model.MarketHKStock
	hk.Symbol = "0700.HK"

	recent := testRecord("analysis_recent", base.Add(48*time.Hour))

	seedRecords(t, store, []model.AnalysisRecord{failed, hk, recent})

	tests := []struct {
		name   string
		filter service.RecordFilter
		want   int64
	}{
		{name: "no filter", filter: service.RecordFilter{}, want: 3},
		{
			name:   "by status",
			filter: service.RecordFilter{Statuses: []model.AnalysisStatus{model.StatusFailed}},
			want:   1,
		},
		{
			name: "by market type",
			filter: func() service.RecordFilter {
				m := model.MarketHKStock
				return service.RecordFilter{MarketType: &m}
			}(),
			want: 1,
		},
		{
			name: "created before cutoff",
			filter: func() service.RecordFilter {
				cutoff := base.Add(24 * time.Hour)
				return service.RecordFilter{CreatedBefore: &cutoff}
			}(),
			want: 2,
		},
		{
			name: "half-open date interval",
			filter: func() service.RecordFilter {
				from := base
				to := base.Add(time.Hour)
				return service.RecordFilter{CreatedFrom: &from, CreatedTo: &to}
			}(),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := store.CountRecords(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountRecords() error: %v", err)
			}
			if count != tt.want {
				t.Errorf("CountRecords() = %d, want %d", count, tt.want)
			}
		})
	}
}

func TestSQLiteStore_DeleteRecordsByIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seedRecords(t, store, []model.AnalysisRecord{
		testRecord("analysis_1", base),
		testRecord("analysis_2", base.Add(time.Minute)),
	})

	deleted, err := store.DeleteRecordsByIDs(ctx, []string{"analysis_1", "analysis_2", "analysis_missing"})
	if err != nil {
		t.Fatalf("DeleteRecordsByIDs() error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteRecordsByIDs() = %d, want 2 (missing IDs lower the count)", deleted)
	}

	count, err := store.CountRecords(ctx, service.RecordFilter{})
	if err != nil {
		t.Fatalf("CountRecords() error: %v", err)
	}
	if count != 0 {
		t.Errorf("records remain after delete: %d", count)
	}

	deleted, err = store.DeleteRecordsByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("DeleteRecordsByIDs(nil) error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("DeleteRecordsByIDs(nil) = %d, want 0", deleted)
	}
}

func TestSQLiteStore_ForEachRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := make([]model.AnalysisRecord, 5)
	for i := range records {
		records[i] = testRecord(fmt.Sprintf("analysis_%d", i), base.Add(time.Duration(i)*time.Minute))
	}
	seedRecords(t, store, records)

	var seen []string
	err := store.ForEachRecord(ctx, service.RecordFilter{}, func(r *model.AnalysisRecord) error {
		seen = append(seen, r.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachRecord() error: %v", err)
	}
	if len(seen) != 5 || seen[0] != "analysis_0" || seen[4] != "analysis_4" {
		t.Errorf("ForEachRecord() order = %v", seen)
	}

	stop := errors.New("stop")
	var visited int
	err = store.ForEachRecord(ctx, service.RecordFilter{}, func(_ *model.AnalysisRecord) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("ForEachRecord() = %v, want callback error propagated", err)
	}
	if visited != 2 {
		t.Errorf("iteration continued past callback error: %d visits", visited)
	}
}

func TestSQLiteStore_InputValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRecords(ctx, nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("SaveRecords(nil) = %v, want ErrNilParameter", err)
	}
	if err := store.SaveRecords(ctx, []model.AnalysisRecord{}); !errors.Is(err, ErrEmptySlice) {
		t.Errorf("SaveRecords(empty) = %v, want ErrEmptySlice", err)
	}
	invalid := testRecord("analysis_bad", time.Now())
	invalid.Symbol = "12345"
	if err := store.SaveRecords(ctx, []model.AnalysisRecord{invalid}); !errors.Is(err, model.ErrInvalidSymbol) {
		t.Errorf("SaveRecords(invalid) = %v, want ErrInvalidSymbol", err)
	}
	if _, err := store.GetRecordByID(ctx, ""); !errors.Is(err, ErrEmptyString) {
		t.Errorf("GetRecordByID(\"\") = %v, want ErrEmptyString", err)
	}
	if _, err := store.UpsertRecord(ctx, nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("UpsertRecord(nil) = %v, want ErrNilParameter", err)
	}
	if err := store.ForEachRecord(ctx, service.RecordFilter{}, nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("ForEachRecord(nil fn) = %v, want ErrNilParameter", err)
	}
	//nolint:staticcheck // nil context is the case under test
	if _, err := store.CountRecords(nil, service.RecordFilter{}); !errors.Is(err, ErrNilContext) {
		t.Errorf("CountRecords(nil ctx) = %v, want ErrNilContext", err)
	}
}

func TestSQLiteStore_CollectStorageStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := testRecord("analysis_old", now.Add(-30*24*time.Hour))
	old.Status = model.StatusFailed

	recent1 := testRecord("analysis_r1", now.Add(-2*24*time.Hour))
	recent2 := testRecord("analysis_r2", now.Add(-1*24*time.Hour))
	recent2.MarketType = model.MarketAShare
	recent2.Symbol = "600519"

	seedRecords(t, store, []model.AnalysisRecord{old, recent1, recent2})

	stats, err := store.CollectStorageStats(ctx, 7)
	if err != nil {
		t.Fatalf("CollectStorageStats() error: %v", err)
	}

	if stats.TotalDocuments != 3 {
		t.Errorf("TotalDocuments = %d, want 3", stats.TotalDocuments)
	}
	if stats.TotalSizeBytes <= 0 {
		t.Errorf("TotalSizeBytes = %d, want positive", stats.TotalSizeBytes)
	}
	if stats.FileSizeBytes <= 0 {
		t.Errorf("FileSizeBytes = %d, want positive", stats.FileSizeBytes)
	}
	if stats.AvgDocSizeBytes <= 0 {
		t.Errorf("AvgDocSizeBytes = %d, want positive", stats.AvgDocSizeBytes)
	}
	if stats.StatusCounts[model.StatusFailed] != 1 || stats.StatusCounts[model.StatusCompleted] != 2 {
		t.Errorf("StatusCounts = %v", stats.StatusCounts)
	}
	if stats.MarketCounts[model.MarketAShare] != 1 {
		t.Errorf("MarketCounts = %v", stats.MarketCounts)
	}
	if stats.GrowthWindowDays != 7 {
		t.Errorf("GrowthWindowDays = %d, want 7", stats.GrowthWindowDays)
	}
	// Two of three records fall inside the 7-day window.
	if stats.AvgDailyGrowth <= 0 {
		t.Errorf("AvgDailyGrowth = %g, want positive", stats.AvgDailyGrowth)
	}
	if stats.OldestRecord == nil || stats.NewestRecord == nil {
		t.Fatal("record time bounds missing")
	}
	if !stats.OldestRecord.Before(*stats.NewestRecord) {
		t.Errorf("oldest %v not before newest %v", stats.OldestRecord, stats.NewestRecord)
	}
}

func TestSQLiteStore_CollectStorageStats_EmptyStore(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.CollectStorageStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("CollectStorageStats() error: %v", err)
	}
	if stats.TotalDocuments != 0 {
		t.Errorf("TotalDocuments = %d, want 0", stats.TotalDocuments)
	}
	if stats.OldestRecord != nil || stats.NewestRecord != nil {
		t.Errorf("empty store should have no record bounds: %v %v", stats.OldestRecord, stats.NewestRecord)
	}
	if stats.AvgDocSizeBytes != 0 {
		t.Errorf("AvgDocSizeBytes = %d, want 0 for empty store", stats.AvgDocSizeBytes)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// newTestStore already migrated once.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}

	var version int
	if err := store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to read user_version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, ExpectedSchemaVersion)
	}
}
