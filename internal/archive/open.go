package archive

import (
	"context"
	"fmt"

	"github.com/rickgao/tradewatch/internal/config"
	"github.com/rickgao/tradewatch/internal/database"
)

// Open connects the store named by cfg.Driver and ensures its schema.
// Returns a nil Store for the "none" driver.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	var store Store
	switch cfg.Driver {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchivePostgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect archive postgres: %w", err)
		}
		store = NewPostgresStore(pool)
	case config.ArchiveSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open archive sqlite: %w", err)
		}
		store = NewSQLiteStore(db)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// RecorderConfig extracts recorder settings.
func RecorderConfig(cfg config.ArchiveConfig) Config {
	return Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
	}
}
