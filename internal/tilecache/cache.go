package tilecache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// DefaultMaxSize is the default number of tiles kept.
const DefaultMaxSize = 100

// Cache is the LRU tile cache. The volatile layer is consulted first; every
// hit still refreshes the access time in the persistent store, which is the
// source of truth for eviction order.
type Cache struct {
	store   Store
	front   *ristretto.Cache[string, []byte]
	maxSize int
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache over store. frontMaxCost bounds the volatile layer in
// bytes.
func New(store Store, maxSize int, frontMaxCost int64, logger *zap.Logger, opts ...Option) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if frontMaxCost <= 0 {
		frontMaxCost = 64 << 20
	}
	front, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: int64(maxSize) * 10,
		MaxCost:     frontMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create volatile tile cache: %w", err)
	}
	c := &Cache{store: store, front: front, maxSize: maxSize, now: time.Now, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// MaxSize is the configured capacity.
func (c *Cache) MaxSize() int { return c.maxSize }

// Get returns the cached bytes for key and refreshes its access time.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	now := c.now()
	if data, ok := c.front.Get(key); ok {
		found, err := c.store.Touch(ctx, key, now)
		if err != nil {
			return nil, false, err
		}
		if found {
			return data, true, nil
		}
		c.front.Del(key)
	}

	e, err := c.store.Get(ctx, key)
	if err != nil || e == nil {
		return nil, false, err
	}
	if _, err := c.store.Touch(ctx, key, now); err != nil {
		return nil, false, err
	}
	c.front.Set(key, e.Bytes, int64(len(e.Bytes)))
	c.front.Wait()
	return e.Bytes, true, nil
}

// Contains reports whether key is cached without touching it.
func (c *Cache) Contains(ctx context.Context, key string) (bool, error) {
	e, err := c.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// Set stores data under key and evicts down to capacity.
func (c *Cache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.store.Put(ctx, key, Entry{Bytes: data, LastAccessed: c.now()}); err != nil {
		return err
	}
	c.front.Set(key, data, int64(len(data)))
	c.front.Wait()
	_, err := c.EvictIfOverCapacity(ctx)
	return err
}

// EvictIfOverCapacity deletes least recently accessed entries until the
// store holds at most MaxSize tiles. It returns how many were removed.
func (c *Cache) EvictIfOverCapacity(ctx context.Context) (int, error) {
	n, err := c.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n <= c.maxSize {
		return 0, nil
	}
	victims, err := c.store.Oldest(ctx, n-c.maxSize)
	if err != nil {
		return 0, err
	}
	for _, k := range victims {
		if err := c.store.Delete(ctx, k); err != nil {
			return 0, err
		}
		c.front.Del(k)
	}
	c.logger.Debug("tile cache evicted", zap.Int("count", len(victims)))
	return len(victims), nil
}

// Delete removes one tile.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.front.Del(key)
	return c.store.Delete(ctx, key)
}

// Clear drops every tile from both layers.
func (c *Cache) Clear(ctx context.Context) error {
	c.front.Clear()
	return c.store.Clear(ctx)
}

// Len is the number of persisted tiles.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// Close stops the volatile layer's goroutines.
func (c *Cache) Close() {
	c.front.Close()
}
