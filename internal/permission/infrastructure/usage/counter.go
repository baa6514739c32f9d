// Package usage counts adjustments per requester and local day.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dayLayout = "2006-01-02"

// Key returns the counter key for a user and the calendar day of day, in day's location.
func Key(userID string, day time.Time) string {
	return fmt.Sprintf("carevisit:usage:%s:%s", userID, day.Format(dayLayout))
}

// nextMidnight returns the start of the following calendar day in day's location.
func nextMidnight(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}

// RedisCounter keeps daily counters in Redis. Keys expire at the next local midnight.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a Redis-backed usage counter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// DailyCount returns the count for the day; a missing key counts as zero.
func (c *RedisCounter) DailyCount(ctx context.Context, userID string, day time.Time) (int, error) {
	n, err := c.client.Get(ctx, Key(userID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage for %s: %w", userID, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Increment adds one to the day's count and returns the new value.
func (c *RedisCounter) Increment(ctx context.Context, userID string, day time.Time) (int, error) {
	key := Key(userID, day)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, nextMidnight(day))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment usage for %s: %w", userID, err)
	}
	return int(incr.Val()), nil
}

// MemoryCounter is a process-local counter for tests and single-node runs.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int)}
}

func (c *MemoryCounter) DailyCount(_ context.Context, userID string, day time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[Key(userID, day)], nil
}

func (c *MemoryCounter) Increment(_ context.Context, userID string, day time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(userID, day)
	c.counts[key]++
	return c.counts[key], nil
}

// Set forces a count, for seeding tests.
func (c *MemoryCounter) Set(userID string, day time.Time, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.counts[Key(userID, day)] = n
}
