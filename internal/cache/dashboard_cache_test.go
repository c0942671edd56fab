package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lee-tech/analytics/internal/fetcher"
	"github.com/lee-tech/analytics/internal/projection"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "", ttl), mr
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	in := &projection.Dashboard{
		SnapshotID:    uuid.New(),
		GeneratedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		BranchCount:   2,
		FailedSources: []fetcher.SourceName{},
		Measurement: projection.Chart{
			Title:      "Reports by measurement",
			Categories: []string{"HIGH"},
			Series:     []projection.NamedSeries{{Name: projection.SeriesReports, Values: []int64{3}}},
		},
	}
	require.NoError(t, c.Set(ctx, in))
	assert.True(t, mr.Exists(defaultKey))
	assert.Equal(t, time.Minute, mr.TTL(defaultKey))

	out, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.SnapshotID, out.SnapshotID)
	assert.Equal(t, 2, out.BranchCount)
	assert.Equal(t, in.Measurement, out.Measurement)
}

func TestRedisCacheExpires(t *testing.T) {
	c, mr := newTestCache(t, time.Second)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, &projection.Dashboard{}))

	mr.FastForward(2 * time.Second)
	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, 0)
	require.NoError(t, mr.Set(defaultKey, "{not json"))

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheRejectsNil(t *testing.T) {
	c, _ := newTestCache(t, 0)
	assert.Error(t, c.Set(context.Background(), nil))
}
