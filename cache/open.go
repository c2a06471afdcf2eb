package cache

import (
	"context"
	"database/sql"
	"io"

	"go.uber.org/zap"

	"github.com/teranos/ldschema/am"
	"github.com/teranos/ldschema/errors"
)

// Open builds the backend named by cfg.Cache.Backend. The returned closer
// releases backend connections (a no-op for memory and sqlite).
func Open(ctx context.Context, cfg *am.Config, db *sql.DB, logger *zap.SugaredLogger, opts ...Option) (*Cache, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts = append([]Option{WithLogger(logger)}, opts...)

	var store Store
	var closer io.Closer = nopCloser{}
	switch cfg.Cache.Backend {
	case "memory":
		store = NewMemoryStore()
	case "sqlite", "":
		if db == nil {
			return nil, nil, errors.NewInvalidRequestError("sqlite cache backend needs a database")
		}
		store = NewSQLiteStore(db)
	case "redis":
		client, err := DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store = NewRedisStore(client, cfg.Cache.Namespace)
		closer = client
	default:
		return nil, nil, errors.NewInvalidRequestError("unknown cache backend %q", cfg.Cache.Backend)
	}

	logger.Debugw("Cache opened", "backend", cfg.Cache.Backend, "ttl", cfg.CacheTTL())
	return New(store, cfg.Cache.Namespace, cfg.CacheTTL(), opts...), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
