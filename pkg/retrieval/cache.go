package retrieval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/phoenixlabs/phoenix/internal/observability"
)

// Cache is the process-wide retriever cache. Hits are served from memory;
// misses check disk once under a per-key lock and either rehydrate or
// report ErrNoSource. The cache never builds indexes: ingestion only
// persists, and the next Get loads the persisted index. Entries idle
// longer than idleTTL are closed by EvictIdle; a zero TTL keeps every
// retriever until Close.
type Cache struct {
	store   *IndexStore
	idleTTL time.Duration
	logger  zerolog.Logger

	mu      sync.RWMutex
	entries map[Key]*cacheEntry

	fillMu sync.Mutex
	fills  map[Key]*sync.Mutex
}

type cacheEntry struct {
	retriever *Retriever
	lastUsed  atomic.Int64 // unix nanos
}

func (e *cacheEntry) touch(now time.Time) {
	e.lastUsed.Store(now.UnixNano())
}

// NewCache creates a retriever cache over an index store
func NewCache(store *IndexStore, idleTTL time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		store:   store,
		idleTTL: idleTTL,
		logger:  logger.With().Str("component", "retrieval_cache").Logger(),
		entries: make(map[Key]*cacheEntry),
		fills:   make(map[Key]*sync.Mutex),
	}
}

// fillLock returns the mutex guarding miss handling for one key. Different
// keys never block each other.
func (c *Cache) fillLock(key Key) *sync.Mutex {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()

	lock, ok := c.fills[key]
	if !ok {
		lock = &sync.Mutex{}
		c.fills[key] = lock
	}
	return lock
}

func (c *Cache) lookup(key Key) (*Retriever, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry.touch(time.Now())
	return entry.retriever, true
}

// Get returns the retriever for a key. The fast path is an in-memory hit;
// on a miss the persisted index is loaded if present. ErrNoSource means no
// persisted index exists for the key; Get leaves no state behind in that
// case.
func (c *Cache) Get(ctx context.Context, key Key) (*Retriever, error) {
	if r, ok := c.lookup(key); ok {
		observability.RecordRetrievalLookup("hit")
		return r, nil
	}

	lock := c.fillLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have filled the entry while we waited
	if r, ok := c.lookup(key); ok {
		observability.RecordRetrievalLookup("hit")
		return r, nil
	}

	r, err := c.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNoSource) {
			observability.RecordRetrievalLookup("miss")
			return nil, ErrNoSource
		}
		return nil, err
	}

	entry := &cacheEntry{retriever: r}
	entry.touch(time.Now())

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	observability.RecordRetrievalLookup("rehydrate")
	c.logger.Debug().Str("key", key.String()).Msg("Retriever rehydrated from disk")

	return r, nil
}

// EvictIdle closes and drops every retriever idle longer than the TTL and
// returns how many were evicted. The TTL must comfortably exceed a single
// query so a handle is never closed under an in-flight caller.
func (c *Cache) EvictIdle() int {
	return c.evictIdle(time.Now())
}

func (c *Cache) evictIdle(now time.Time) int {
	if c.idleTTL <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if now.UnixNano()-entry.lastUsed.Load() < int64(c.idleTTL) {
			continue
		}
		if err := entry.retriever.Close(); err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to close idle retriever")
		}
		delete(c.entries, key)
		evicted++
	}

	if evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Msg("Idle retrievers evicted")
	}
	return evicted
}

// Len returns the number of cached retrievers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close closes all cached retrievers and empties the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, entry := range c.entries {
		if err := entry.retriever.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.entries, key)
	}
	return firstErr
}
