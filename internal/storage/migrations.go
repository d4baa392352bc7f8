package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the
// application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial analysis record schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS analysis_records (
					id TEXT PRIMARY KEY,
					symbol TEXT NOT NULL,
					name TEXT,
					market_type TEXT NOT NULL,
					status TEXT NOT NULL,
					analysis_type TEXT,
					analysts TEXT,
					research_depth INTEGER DEFAULT 0,
					llm_provider TEXT,
					llm_model TEXT,
					created_at DATETIME NOT NULL,
					completed_at DATETIME,
					updated_at DATETIME NOT NULL,
					execution_seconds REAL DEFAULT 0,
					input_tokens INTEGER DEFAULT 0,
					output_tokens INTEGER DEFAULT 0,
					total_tokens INTEGER DEFAULT 0,
					total_cost REAL DEFAULT 0,
					raw_results TEXT,
					formatted_results TEXT,
					metadata TEXT
				)`,
				`CREATE INDEX idx_records_created_at ON analysis_records(created_at)`,
				`CREATE INDEX idx_records_status ON analysis_records(status)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return fmt.Errorf("failed to execute %q: %w", q[:40], err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Index market_type for grouped statistics",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX idx_records_market_type ON analysis_records(market_type)`)
			return err
		},
	},
}

// Migrate brings the schema to ExpectedSchemaVersion. Each migration
// runs in its own transaction and bumps PRAGMA user_version.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration",
			"version", m.Version,
			"description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
