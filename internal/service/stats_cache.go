package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StatsCache caches aggregate statistics per course and assignment and lets
// the review pipeline invalidate them by key prefix when a submission's state
// changes. Reads may be stale for up to the TTL; that window is configured
// explicitly rather than hidden in a package-level singleton.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
	InvalidateCourse(ctx context.Context, courseID uint) error
	InvalidateAssignment(ctx context.Context, assignmentID uint) error
}

// CourseStatsKey builds the cache key for one course aggregate.
func CourseStatsKey(courseID uint, suffix string) string {
	return fmt.Sprintf("stats:course:%d:%s", courseID, suffix)
}

// AssignmentStatsKey builds the cache key for one assignment aggregate.
func AssignmentStatsKey(assignmentID uint, suffix string) string {
	return fmt.Sprintf("stats:assignment:%d:%s", assignmentID, suffix)
}

type statsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStatsCache builds a redis-backed stats cache with the given TTL.
func NewStatsCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) StatsCache {
	return &statsCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "stats_cache").Logger(),
	}
}

func (c *statsCache) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	cached, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(cached), out); err != nil {
		// A corrupt entry behaves like a miss; the writer will overwrite it.
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache entry")
		return false, nil
	}

	return true, nil
}

func (c *statsCache) SetJSON(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

func (c *statsCache) InvalidateCourse(ctx context.Context, courseID uint) error {
	return c.invalidatePrefix(ctx, fmt.Sprintf("stats:course:%d:*", courseID))
}

func (c *statsCache) InvalidateAssignment(ctx context.Context, assignmentID uint) error {
	return c.invalidatePrefix(ctx, fmt.Sprintf("stats:assignment:%d:*", assignmentID))
}

func (c *statsCache) invalidatePrefix(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
