package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache is what the cached task service needs from a cache.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// maxL1TTL bounds how long another instance's stale L1 copy can outlive
// an invalidation made elsewhere.
const maxL1TTL = 30 * time.Second

// MultiLevelCache keeps JSON-encoded values in process memory (L1) in
// front of redis (L2). L2 is optional and guarded by a circuit breaker;
// when it is down the cache degrades to L1 only.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	breaker *CircuitBreaker
	metrics *CacheMetrics
	log     *logrus.Entry
}

func NewMultiLevelCache(redisCache *RedisCache, log *logrus.Entry) *MultiLevelCache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		metrics: NewCacheMetrics(),
		log:     log.WithField("component", "cache"),
	}
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.metrics.RecordSet()
	if c.l2 == nil {
		c.l1.Set(key, data, ttl)
		return nil
	}

	c.l1.Set(key, data, l1TTL(ttl))
	return c.guard(func() error {
		return c.l2.SetRaw(ctx, key, data, ttl)
	})
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if value, found := c.l1.Get(key); found {
		if err := json.Unmarshal(value.([]byte), dest); err != nil {
			c.l1.Delete(key)
			c.metrics.RecordError()
			return fmt.Errorf("failed to unmarshal cached data: %w", err)
		}
		c.metrics.RecordHit()
		return nil
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	var (
		data []byte
		ttl  time.Duration
	)
	err := c.guard(func() error {
		raw, remaining, err := c.l2.GetRawWithTTL(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		data, ttl = raw, remaining
		return err
	})
	if err != nil {
		return err
	}
	if data == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	// L1 must not outlive the L2 entry it was filled from.
	c.l1.Set(key, data, l1TTL(ttl))
	c.metrics.RecordHit()
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	c.l1.Delete(keys...)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}
	return c.guard(func() error {
		return c.l2.Delete(ctx, keys...)
	})
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.l1.DeletePattern(pattern)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}
	return c.guard(func() error {
		return c.l2.DeletePattern(ctx, pattern)
	})
}

// guard runs an L2 call through the breaker and maps every failure to
// ErrCacheDown.
func (c *MultiLevelCache) guard(fn func() error) error {
	err := c.breaker.Execute(fn)
	if err == nil {
		return nil
	}
	c.metrics.RecordError()
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		c.log.WithError(err).Warn("redis cache call failed")
	}
	return fmt.Errorf("%w: %v", ErrCacheDown, err)
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Metrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"metrics": c.metrics.Snapshot(),
		"l1":      c.l1.Stats(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
		stats["circuit_breaker"] = c.breaker.GetStats()
	}
	return stats
}

func (c *MultiLevelCache) StartJanitor(ctx context.Context, interval time.Duration) {
	c.l1.StartJanitor(ctx, interval)
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func l1TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > maxL1TTL {
		return maxL1TTL
	}
	return ttl
}
