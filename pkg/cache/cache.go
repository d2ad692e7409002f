package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key derives the deterministic content address for one cached computation.
// Inputs are normalized (whitespace collapsed, lower-cased) before hashing so
// trivially different spellings of the same request share an entry. The
// prompt version participates in the hash, which rolls keys over whenever a
// stage's active template changes - stale generations expire without any
// eviction logic.
func Key(stage, promptVersion string, inputs ...string) string {
	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0x1f})
	h.Write([]byte(promptVersion))
	for _, input := range inputs {
		h.Write([]byte{0x1f})
		h.Write([]byte(normalize(input)))
	}
	return stage + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

func normalize(input string) string {
	return strings.ToLower(strings.Join(strings.Fields(input), " "))
}

// Cache is a content-addressed memo with per-key single-flight: concurrent
// requests for an identical key collapse into one computation and every
// waiter receives the same result. Hit/miss counters feed the stats surface.
type Cache struct {
	store  Store
	flight singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// GetOrCompute returns the cached value for key, or runs compute exactly once
// per key across concurrent callers and stores its result. The bool reports
// whether the value came from the store.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if value, found, err := c.store.Get(ctx, key); err == nil && found {
		c.hits.Add(1)
		return value, true, nil
	}
	c.misses.Add(1)

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A waiter that lost the race may arrive just after the winner
		// stored the value; the re-check avoids recomputing it.
		if value, found, err := c.store.Get(ctx, key); err == nil && found {
			return value, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, value, ttl); err != nil {
			// Failing to persist is not failing to compute.
			return value, nil
		}
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result.([]byte), false, nil
}

// GetOrComputeJSON adapts GetOrCompute for JSON-serializable values.
func GetOrComputeJSON[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T

	raw, hit, err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		return zero, false, err
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, err
	}
	return value, hit, nil
}

func (c *Cache) Hits() int64 {
	return c.hits.Load()
}

func (c *Cache) Misses() int64 {
	return c.misses.Load()
}

// HitRate is hits / (hits + misses); 0 before any lookup.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Flush drops every entry. Used by the administrative refresh so re-derived
// prompts never serve answers generated under the previous configuration.
func (c *Cache) Flush(ctx context.Context) error {
	return c.store.Flush(ctx)
}
