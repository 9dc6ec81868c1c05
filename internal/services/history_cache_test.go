package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisHistoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisHistoryCache(client, 7*24*time.Hour), mr
}

func TestRedisHistoryCache_AddAndScores(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()
	now := time.Now()

	require.NoError(t, cache.Add(ctx, "couples", user, uuid.New(), 40, now.Add(-2*time.Hour)))
	require.NoError(t, cache.Add(ctx, "couples", user, uuid.New(), 80, now.Add(-time.Hour)))
	require.NoError(t, cache.Add(ctx, "couples", user, uuid.New(), 10, now.Add(-10*24*time.Hour)))

	scores, err := cache.Scores(ctx, "couples", user, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{40, 80}, scores)

	assert.True(t, mr.Exists(historyKey("couples", user)))
	assert.Greater(t, mr.TTL(historyKey("couples", user)), 7*24*time.Hour)
}

func TestRedisHistoryCache_TenantIsolation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, cache.Add(ctx, "couples", user, uuid.New(), 55, time.Now()))

	scores, err := cache.Scores(ctx, "journal", user, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRedisHistoryCache_Unavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	_, err := cache.Scores(context.Background(), "couples", uuid.New(), time.Now())
	assert.Error(t, err)
}
