package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/pricefeed/backend/internal/domain"
)

// Store backends
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// Config selects and locates a backend
type Config struct {
	Type        string
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
	SampleCap   int
}

// Open builds the configured backend and checks it is reachable
func Open(ctx context.Context, cfg Config) (domain.CategoryStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", TypeMemory:
		return NewMemoryStore(cfg.SampleCap), nil

	case TypeSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, cfg.SampleCap)

	case TypeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: redis: %v", domain.ErrStoreUnavailable, err)
		}
		return NewRedisStore(client, cfg.RedisPrefix, cfg.SampleCap), nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.Type)
}
