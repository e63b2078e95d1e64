package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saulini100/AI-Library--sub001/config"
	"github.com/saulini100/AI-Library--sub001/internal/agent/core"
)

// ConnectRedis opens a Redis client and verifies it answers PING.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		DialTimeout: 10 * time.Second,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("redis ping: unexpected reply %q", pong)
	}
	return client, nil
}

// PatternCache fronts a StudyPatternSource with a Redis snapshot so the
// query path does not hit Postgres aggregation on every request.
type PatternCache struct {
	client *redis.Client
	source core.StudyPatternSource
	ttl    time.Duration
}

// NewPatternCache wraps source. A nil client disables caching and
// passes every call through.
func NewPatternCache(client *redis.Client, source core.StudyPatternSource, ttl time.Duration) *PatternCache {
	return &PatternCache{client: client, source: source, ttl: ttl}
}

// GetStudyPatterns implements core.StudyPatternSource.
func (c *PatternCache) GetStudyPatterns(ctx context.Context, userID int64) (map[string]interface{}, error) {
	key := fmt.Sprintf("companion:patterns:%d", userID)
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Result()
		if err == nil {
			var patterns map[string]interface{}
			if jsonErr := json.Unmarshal([]byte(raw), &patterns); jsonErr == nil {
				return patterns, nil
			}
		}
	}

	patterns, err := c.source.GetStudyPatterns(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(patterns); err == nil {
			c.client.Set(ctx, key, raw, c.ttl)
		}
	}
	return patterns, nil
}

// Invalidate drops a user's cached snapshot, called after new activity
// is recorded.
func (c *PatternCache) Invalidate(ctx context.Context, userID int64) {
	if c.client == nil {
		return
	}
	c.client.Del(ctx, fmt.Sprintf("companion:patterns:%d", userID))
}

// Locker provides a best-effort distributed lock so only one instance
// runs a scheduled job per window.
type Locker struct {
	client *redis.Client
}

// NewLocker wraps client. A nil client makes Acquire always succeed,
// which is the single-instance behavior.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the named lock for ttl. Returns false when another
// holder already has it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, "companion:lock:"+name, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// Release frees the named lock early.
func (l *Locker) Release(ctx context.Context, name string) {
	if l.client == nil {
		return
	}
	l.client.Del(ctx, "companion:lock:"+name)
}
