package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/affinity/internal/config"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/redisstore"
	"github.com/lazypower/affinity/internal/store"
)

// backend is a snapshot store with an update log, SQLite or Redis.
type backend interface {
	engine.SnapshotStore
	engine.UpdateLog
	GetUpdates(ctx context.Context, userID, sessionID string, limit int) ([]store.UpdateRecord, error)
	Healthy(ctx context.Context) error
	Close() error
}

const dialTimeout = 5 * time.Second

// openBackend opens Redis when AFFINITY_REDIS_ADDR is set and SQLite
// otherwise. The description names what was opened, for logging.
func openBackend(cfg config.Config) (backend, string, error) {
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		rs, err := redisstore.Dial(ctx, cfg.Redis.Addr, redisstore.Config{
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL,
		})
		if err != nil {
			return nil, "", err
		}
		return rs, "redis " + cfg.Redis.Addr, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, "", err
	}
	return db, "sqlite " + db.Path, nil
}

// openDB is a helper that opens the SQLite database for CLI commands.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
