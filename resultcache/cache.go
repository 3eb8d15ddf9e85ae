/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
)

// DefaultTTL is used when neither Options.DefaultTTL nor a per-call TTL is specified.
const DefaultTTL = 5 * time.Minute

// DefaultShards is the default number of independently locked sub-stores.
const DefaultShards = 32

// entryOverheadBytes is a rough per-entry bookkeeping cost used for memory estimation.
const entryOverheadBytes = 64

type cacheEntry struct {
	payload   []byte
	createdAt time.Time
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is used by Set when a non-positive TTL is passed.
	DefaultTTL time.Duration

	// Shards is the number of sub-stores, each protected by its own lock.
	Shards int

	// Codec encodes and decodes values for GetValue/SetValue. JSONCodec is used by default.
	Codec Codec

	// MetricsCollector receives cache usage statistics. Metrics are disabled if nil.
	MetricsCollector MetricsCollector

	// Now returns the current time. time.Now is used by default.
	Now func() time.Time
}

// Cache is a concurrency-safe TTL key-value store of encoded payloads.
type Cache struct {
	shards     []*shard
	defaultTTL time.Duration
	codec      Codec
	metrics    MetricsCollector
	now        func() time.Time

	// expired entries removed by Get since the last ClearExpired call
	lazilyExpired atomic.Int64
}

// New creates a new Cache with default options.
func New() *Cache {
	c, _ := NewWithOpts(Options{}) // Error is always nil for default options.
	return c
}

// NewWithOpts creates a new Cache with the provided options.
func NewWithOpts(opts Options) (*Cache, error) {
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("default TTL must be greater or equal to 0, got %s", opts.DefaultTTL)
	}
	if opts.Shards < 0 {
		return nil, fmt.Errorf("shards number must be greater or equal to 0, got %d", opts.Shards)
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Shards == 0 {
		opts.Shards = DefaultShards
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	shards := make([]*shard, opts.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*cacheEntry)}
	}
	return &Cache{
		shards:     shards,
		defaultTTL: opts.DefaultTTL,
		codec:      opts.Codec,
		metrics:    opts.MetricsCollector,
		now:        opts.Now,
	}, nil
}

func (c *Cache) shardFor(key string) *shard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// Codec returns the codec that is used for typed access to the cache.
func (c *Cache) Codec() Codec {
	return c.codec
}

// DefaultTTL returns TTL that is used when a non-positive TTL is passed to Set.
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns the payload stored by the key if it's present and not expired.
// The second return value is false on a miss. An expired entry is removed.
func (c *Cache) Get(key string) (payload []byte, ok bool) {
	s := c.shardFor(key)
	now := c.now()

	s.mu.RLock()
	entry, found := s.entries[key]
	s.mu.RUnlock()

	if !found {
		c.metrics.IncMisses()
		return nil, false
	}
	if entry.expired(now) {
		s.mu.Lock()
		// The entry might have been overwritten since it was read.
		if cur, stillThere := s.entries[key]; stillThere && cur.expired(now) {
			delete(s.entries, key)
			c.lazilyExpired.Inc()
			c.metrics.AddExpirations(1)
			c.metrics.AddAmount(-1)
		}
		s.mu.Unlock()
		c.metrics.IncMisses()
		return nil, false
	}
	c.metrics.IncHits()
	return entry.payload, true
}

// Set stores the payload by the key with the given TTL, overwriting any previous entry.
// Non-positive TTL means the default one. The payload must not be modified after the call.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	entry := &cacheEntry{payload: payload, createdAt: now, expiresAt: now.Add(ttl)}

	s := c.shardFor(key)
	s.mu.Lock()
	_, existed := s.entries[key]
	s.entries[key] = entry
	s.mu.Unlock()

	if !existed {
		c.metrics.AddAmount(1)
	}
}

// Delete removes the entry by the key. It returns false if there was no such entry.
func (c *Cache) Delete(key string) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	_, found := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	if found {
		c.metrics.AddAmount(-1)
	}
	return found
}

// Clear removes all entries.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]*cacheEntry)
		s.mu.Unlock()
	}
	c.lazilyExpired.Store(0)
	c.metrics.SetAmount(0)
}

// ClearExpired removes all expired entries and returns the number of expired entries
// reclaimed since the previous call, including the ones already dropped by Get on access.
// Shards are swept one by one, so the lock is never held over the whole store.
func (c *Cache) ClearExpired() int {
	removed := 0
	for _, s := range c.shards {
		now := c.now()
		s.mu.Lock()
		for key, entry := range s.entries {
			if entry.expired(now) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		c.metrics.AddExpirations(removed)
		c.metrics.AddAmount(-removed)
	}
	return removed + int(c.lazilyExpired.Swap(0))
}

// Len returns the number of entries in the cache, including expired ones that are not removed yet.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// RunPeriodicCleanup runs a cycle of periodic cleanup of expired entries until ctx is done.
// It's supposed to be run in a separate goroutine.
func (c *Cache) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ClearExpired()
		}
	}
}
