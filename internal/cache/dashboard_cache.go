// Package cache keeps the last complete dashboard in Redis so a restarted
// instance can serve it before its first refresh finishes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/projection"
	"github.com/lee-tech/analytics/internal/server"
	"github.com/redis/go-redis/v9"
)

const defaultKey = "report-analytics:dashboard"

// ErrCacheMiss is returned when no dashboard is cached.
var ErrCacheMiss = errors.New("dashboard not cached")

// DashboardCache stores the latest dashboard.
type DashboardCache interface {
	Get(ctx context.Context) (*projection.Dashboard, error)
	Set(ctx context.Context, dashboard *projection.Dashboard) error
}

// RedisCache is a DashboardCache backed by a single Redis key.
type RedisCache struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisCache stores dashboards under key for ttl. An empty key uses the
// default; a non-positive ttl keeps entries until overwritten.
func NewRedisCache(client redis.Cmdable, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = defaultKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisCache{client: client, key: key, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) (*projection.Dashboard, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cached dashboard: %w", err)
	}
	var dashboard projection.Dashboard
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		return nil, fmt.Errorf("decode cached dashboard: %w", err)
	}
	return &dashboard, nil
}

func (c *RedisCache) Set(ctx context.Context, dashboard *projection.Dashboard) error {
	if dashboard == nil {
		return errors.New("dashboard is nil")
	}
	raw, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached dashboard: %w", err)
	}
	return nil
}

func init() {
	server.RegisterRepository(constants.ComponentKey.DashboardCache, func(app *server.HTTPApp) (interface{}, error) {
		if app.Redis == nil {
			return nil, nil
		}
		return NewRedisCache(app.Redis, app.Config.ServiceName+":dashboard", app.Config.CacheTTL), nil
	})
}
