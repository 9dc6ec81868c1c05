package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// HistoryCache keeps each user's recent overall scores so the trailing
// average does not hit Postgres on every message.
type HistoryCache interface {
	Add(ctx context.Context, appID string, userID, assessmentID uuid.UUID, score int, at time.Time) error
	Scores(ctx context.Context, appID string, userID uuid.UUID, since time.Time) ([]int, error)
}

// RedisHistoryCache stores scores in a sorted set keyed by app and user,
// scored by assessment time in milliseconds.
type RedisHistoryCache struct {
	client *redis.Client
	window time.Duration
}

func NewRedisHistoryCache(client *redis.Client, window time.Duration) *RedisHistoryCache {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &RedisHistoryCache{client: client, window: window}
}

func historyKey(appID string, userID uuid.UUID) string {
	return "safeguard:risk:" + appID + ":" + userID.String()
}

// Add records one score and drops members older than the window.
func (c *RedisHistoryCache) Add(ctx context.Context, appID string, userID, assessmentID uuid.UUID, score int, at time.Time) error {
	key := historyKey(appID, userID)
	cutoff := at.Add(-c.window).UnixMilli()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: assessmentID.String() + ":" + strconv.Itoa(score),
		})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, key, c.window+24*time.Hour)
		return nil
	})
	if err != nil {
		return fmt.Errorf("history cache add: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Scores(ctx context.Context, appID string, userID uuid.UUID, since time.Time) ([]int, error) {
	members, err := c.client.ZRangeByScore(ctx, historyKey(appID, userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("history cache read: %w", err)
	}
	scores := make([]int, 0, len(members))
	for _, m := range members {
		i := strings.LastIndexByte(m, ':')
		if i < 0 {
			continue
		}
		s, err := strconv.Atoi(m[i+1:])
		if err != nil {
			continue
		}
		scores = append(scores, s)
	}
	return scores, nil
}
