// Package cache keeps short-lived JSON snapshots of expensive read views in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockdesk/apipulse/internal/config"
)

const keyPrefix = "apipulse:snapshot:"

// NewClient returns a Redis client for cfg and checks the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type SnapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSnapshotCache(client redis.UniversalClient, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// Get decodes the snapshot stored under name into dst and reports whether it
// was present.
func (c *SnapshotCache) Get(ctx context.Context, name string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return true, nil
}

func (c *SnapshotCache) Set(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+name, data, c.ttl).Err()
}
