package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/bazaar/internal/config"
	"github.com/soyeahso/bazaar/internal/logging"
)

// OpenKV opens the backend selected by cfg. sqlitePath is used only by the
// sqlite backend.
func OpenKV(ctx context.Context, cfg config.StoreConfig, sqlitePath string, log *logging.Logger) (KV, error) {
	log = logging.OrNop(log)

	switch cfg.Backend {
	case "", "sqlite":
		return Open(sqlitePath, log)
	case "memory":
		log.Sub("store").Info().Msg("using in-memory store")
		return NewMemory(), nil
	case "redis":
		r, err := NewRedis(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Sub("store").Info().Str("addr", cfg.RedisAddr).Str("namespace", cfg.Namespace).Msg("redis store connected")
		return r, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
