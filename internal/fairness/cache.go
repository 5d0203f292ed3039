package fairness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const metricsKeyPrefix = "fairness:metrics:"

// Cache holds model-level fairness metrics keyed by protected attribute.
type Cache interface {
	Get(ctx context.Context, attribute string) (Metrics, bool, error)
	Set(ctx context.Context, attribute string, m Metrics, ttl time.Duration) error
}

// RedisCache shares fairness metrics across instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, attribute string) (Metrics, bool, error) {
	raw, err := c.client.Get(ctx, metricsKeyPrefix+attribute).Bytes()
	if errors.Is(err, redis.Nil) {
		return Metrics{}, false, nil
	}
	if err != nil {
		return Metrics{}, false, fmt.Errorf("get fairness metrics: %w", err)
	}
	var m Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metrics{}, false, fmt.Errorf("decode cached fairness metrics: %w", err)
	}
	return m, true, nil
}

func (c *RedisCache) Set(ctx context.Context, attribute string, m Metrics, ttl time.Duration) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode fairness metrics: %w", err)
	}
	if err := c.client.Set(ctx, metricsKeyPrefix+attribute, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set fairness metrics: %w", err)
	}
	return nil
}

type cachedMetrics struct {
	metrics   Metrics
	expiresAt time.Time
}

// MemoryCache is the single-instance fallback when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cachedMetrics
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cachedMetrics),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, attribute string) (Metrics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[attribute]
	if !ok {
		return Metrics{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, attribute)
		return Metrics{}, false, nil
	}
	return entry.metrics, true, nil
}

func (c *MemoryCache) Set(_ context.Context, attribute string, m Metrics, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[attribute] = cachedMetrics{metrics: m, expiresAt: c.now().Add(ttl)}
	return nil
}
