package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
)

const recordColumns = `id, symbol, name, market_type, status, analysis_type,
	analysts, research_depth, llm_provider, llm_model,
	created_at, completed_at, updated_at, execution_seconds,
	input_tokens, output_tokens, total_tokens, total_cost,
	raw_results, formatted_results, metadata`

// SaveRecords inserts new records, ignoring duplicates by ID.
func (s *SQLiteStore) SaveRecords(ctx context.Context, records []model.AnalysisRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO analysis_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		args, argErr := recordArgs(&records[i])
		if argErr != nil {
			return fmt.Errorf("failed to encode record %s: %w", records[i].ID, argErr)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", records[i].ID, err)
		}
	}

	return tx.Commit()
}

// GetRecordByID fetches one record, or nil when absent.
func (s *SQLiteStore) GetRecordByID(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM analysis_records WHERE id = ?
	`, id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return record, nil
}

// UpsertRecord inserts or fully replaces a record by ID. Replacing an
// existing record is a normal outcome, not a duplicate-key failure.
func (s *SQLiteStore) UpsertRecord(ctx context.Context, record *model.AnalysisRecord) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if record == nil {
		return false, fmt.Errorf("%w: record", ErrNilParameter)
	}
	if err := validateString(record.ID, "record.ID"); err != nil {
		return false, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM analysis_records WHERE id = ?`, record.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check record %s: %w", record.ID, err)
	}

	args, err := recordArgs(record)
	if err != nil {
		return false, fmt.Errorf("failed to encode record %s: %w", record.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to upsert record %s: %w", record.ID, err)
	}

	return exists == 0, nil
}

// FindRecordIDs returns matching record IDs ordered by created_at
// ascending for deterministic batch processing.
func (s *SQLiteStore) FindRecordIDs(ctx context.Context, filter service.RecordFilter) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := buildFilter(filter)
	query := `SELECT id FROM analysis_records` + where + ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find record IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan record ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountRecords counts records matching the filter.
func (s *SQLiteStore) CountRecords(ctx context.Context, filter service.RecordFilter) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	where, args := buildFilter(filter)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_records`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// DeleteRecordsByIDs removes the listed records and reports how many
// rows were actually deleted. Records that vanished between query and
// delete simply lower the count.
func (s *SQLiteStore) DeleteRecordsByIDs(ctx context.Context, ids []string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_records WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return deleted, nil
}

// ForEachRecord streams matching records ordered by created_at
// ascending without materializing the result set.
func (s *SQLiteStore) ForEachRecord(ctx context.Context, filter service.RecordFilter, fn func(*model.AnalysisRecord) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: fn", ErrNilParameter)
	}

	where, args := buildFilter(filter)
	query := `SELECT ` + recordColumns + ` FROM analysis_records` + where + ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return fmt.Errorf("failed to scan record: %w", scanErr)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildFilter translates a RecordFilter into a WHERE clause and args.
func buildFilter(filter service.RecordFilter) (string, []any) {
	var clauses []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Statuses))
		clauses = append(clauses, "status IN ("+placeholders[:len(placeholders)-1]+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.MarketType != nil {
		clauses = append(clauses, "market_type = ?")
		args = append(args, string(*filter.MarketType))
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, *filter.CreatedBefore)
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at < ?")
		args = append(args, *filter.CreatedTo)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// recordArgs flattens a record into the column order of recordColumns.
func recordArgs(r *model.AnalysisRecord) ([]any, error) {
	analysts, err := marshalJSONColumn(r.Analysts)
	if err != nil {
		return nil, err
	}
	rawResults, err := marshalJSONColumn(r.RawResults)
	if err != nil {
		return nil, err
	}
	formatted, err := marshalJSONColumn(r.FormattedResults)
	if err != nil {
		return nil, err
	}
	metadata, err := marshalJSONColumn(r.Metadata)
	if err != nil {
		return nil, err
	}

	var completedAt any
	if r.CompletedAt != nil {
		completedAt = *r.CompletedAt
	}

	return []any{
		r.ID,
		r.Symbol,
		r.Name,
		string(r.MarketType),
		string(r.Status),
		r.AnalysisType,
		analysts,
		r.ResearchDepth,
		r.LLMProvider,
		r.LLMModel,
		r.CreatedAt,
		completedAt,
		r.UpdatedAt,
		r.ExecutionSeconds,
		r.TokenUsage.InputTokens,
		r.TokenUsage.OutputTokens,
		r.TokenUsage.TotalTokens,
		r.TokenUsage.TotalCost,
		rawResults,
		formatted,
		metadata,
	}, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AnalysisRecord, error) {
	var r model.AnalysisRecord
	var marketType, status string
	var analysts, rawResults, formatted, metadata sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&r.ID,
		&r.Symbol,
		&r.Name,
		&marketType,
		&status,
		&r.AnalysisType,
		&analysts,
		&r.ResearchDepth,
		&r.LLMProvider,
		&r.LLMModel,
		&r.CreatedAt,
		&completedAt,
		&r.UpdatedAt,
		&r.ExecutionSeconds,
		&r.TokenUsage.InputTokens,
		&r.TokenUsage.OutputTokens,
		&r.TokenUsage.TotalTokens,
		&r.TokenUsage.TotalCost,
		&rawResults,
		&formatted,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	r.MarketType = model.MarketType(marketType)
	r.Status = model.AnalysisStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if err := unmarshalJSONColumn(analysts, &r.Analysts); err != nil {
		return nil, fmt.Errorf("failed to decode analysts for %s: %w", r.ID, err)
	}
	if err := unmarshalJSONColumn(rawResults, &r.RawResults); err != nil {
		return nil, fmt.Errorf("failed to decode raw_results for %s: %w", r.ID, err)
	}
	if err := unmarshalJSONColumn(formatted, &r.FormattedResults); err != nil {
		return nil, fmt.Errorf("failed to decode formatted_results for %s: %w", r.ID, err)
	}
	if err := unmarshalJSONColumn(metadata, &r.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", r.ID, err)
	}

	return &r, nil
}

func marshalJSONColumn(v any) (any, error) {
	if isEmptyValue(v) {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSONColumn(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
