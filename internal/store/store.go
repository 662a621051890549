package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/database"
	"github.com/quantfold/screener/pkg/logger"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// Store is durable key-value blob storage. Keys are slash-separated paths;
// List returns all keys under a prefix so callers can do lexicographic
// latest-by-date scans.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store backend selected by config.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.Store.Backend {
	case "s3":
		return NewS3(ctx, cfg, log)
	case "fs":
		return NewFS(cfg.Store.LocalDir)
	case "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		return NewPostgres(ctx, db)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
