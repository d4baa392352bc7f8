package main

import (
	"context"
	"fmt"

	"github.com/quantlake/histkeeper/internal/config"
	"github.com/quantlake/histkeeper/internal/lifecycle"
	"github.com/quantlake/histkeeper/internal/storage"
)

// openEngine loads the configuration, opens the record store, runs
// migrations, and constructs the lifecycle engine. The caller owns the
// returned store and must close it.
func openEngine(ctx context.Context) (*lifecycle.Engine, *storage.SQLiteStore, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open record store: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to migrate record store: %w", err)
	}

	engine := lifecycle.New(store, lifecycle.WithGrowthWindow(cfg.Monitor.GrowthWindowDays))
	return engine, store, cfg, nil
}
