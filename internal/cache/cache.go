// Package cache implements the process-local result cache: a canonical-hash
// keyed store with single-flight fill and TTL plus size-weighted LRU
// eviction, grounded on original_source/ratchet-caching/src/result_cache.rs
// (the teacher has no equivalent component).
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/ids"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// Key builds the result cache key for a task invocation: task identity plus
// a canonical hash of the input, per result_cache.rs's ResultCacheKey.
func Key(taskID uuid.UUID, taskVersion string, input json.RawMessage) (domain.ResultCacheKey, error) {
	hash, err := ids.CanonicalHash(input)
	if err != nil {
		return domain.ResultCacheKey{}, err
	}
	return domain.ResultCacheKey{TaskID: taskID, TaskVersion: taskVersion, InputHash: hash}, nil
}

type entry struct {
	key       domain.ResultCacheKey
	value     domain.CachedResult
	expiresAt time.Time
	weight    int
	elem      *list.Element
}

// Cache is a TTL + size-weighted LRU result cache with single-flight fill,
// scoped to one process; there is no cross-replica coherence.
type Cache struct {
	cfg config.CacheConfig
	log logger.Logger

	mu         sync.Mutex
	entries    map[domain.ResultCacheKey]*entry
	lru        *list.List // front = most recently used
	totalWeight int

	group singleflight.Group
}

// New builds a Cache from config; a disabled cache (cfg.Enabled == false)
// still satisfies the interface but Get always misses and Put is a no-op.
func New(cfg config.CacheConfig, log logger.Logger) *Cache {
	return &Cache{
		cfg:     cfg,
		log:     log,
		entries: make(map[domain.ResultCacheKey]*entry),
		lru:     list.New(),
	}
}

// weightOf implements the weight formula from result_cache.rs: max(1, size_bytes/1024).
func weightOf(sizeBytes int) int {
	w := sizeBytes / 1024
	if w < 1 {
		w = 1
	}
	return w
}

// Get returns a cached result if present and unexpired, evicting it lazily
// on expiry (the sweep loop also runs periodically, see Sweep).
func (c *Cache) Get(key domain.ResultCacheKey) (domain.CachedResult, bool) {
	if !c.cfg.Enabled {
		return domain.CachedResult{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.CachedResult{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		return domain.CachedResult{}, false
	}
	c.lru.MoveToFront(e.elem)
	return e.value, true
}

// Put stores a result, evicting least-recently-used entries until the
// configured MaxEntries / implicit weight budget is respected. A result
// larger than MaxResultSize is rejected (never cached), and failures are
// only cached when CacheOnlySuccess is false.
func (c *Cache) Put(key domain.ResultCacheKey, value domain.CachedResult) {
	if !c.cfg.Enabled {
		return
	}
	if c.cfg.CacheOnlySuccess && !value.Success {
		return
	}
	if value.SizeBytes > c.cfg.MaxResultSize {
		c.log.Debug("result exceeds max cache size, not cached",
			logger.Int("size_bytes", value.SizeBytes), logger.Int("max_result_size", c.cfg.MaxResultSize))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	weight := weightOf(value.SizeBytes)
	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	e := &entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.cfg.TTL),
		weight:    weight,
	}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.totalWeight += weight

	for c.totalWeight > c.cfg.MaxEntries && c.lru.Len() > 0 {
		back := c.lru.Back()
		c.removeLocked(back.Value.(*entry))
	}
}

// removeLocked evicts e; callers must hold c.mu.
func (c *Cache) removeLocked(e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	c.totalWeight -= e.weight
}

// Sweep evicts all expired entries; intended to be called periodically by
// the owner on cfg.SweepInterval.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for back := c.lru.Back(); back != nil; {
		e := back.Value.(*entry)
		prev := back.Prev()
		if now.After(e.expiresAt) {
			c.removeLocked(e)
		}
		back = prev
	}
}

// InvalidateTask evicts every cached result for one task version, used when
// a task's definition is edited or deleted through the registry. It returns
// the number of entries evicted.
func (c *Cache) InvalidateTask(taskID uuid.UUID, taskVersion string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*entry
	for key, e := range c.entries {
		if key.TaskID == taskID && key.TaskVersion == taskVersion {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		c.removeLocked(e)
	}
	return len(stale)
}

// Len reports the number of live entries, for metrics/testing.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFill returns a cached result for key, or computes it via fill and
// stores the outcome, collapsing concurrent callers for the same key into
// one fill invocation (the "single-flight" in the name).
func (c *Cache) GetOrFill(ctx context.Context, key domain.ResultCacheKey, fill func(context.Context) (domain.CachedResult, error)) (domain.CachedResult, error) {
	if cached, ok := c.Get(key); ok {
		return cached, nil
	}

	flightKey := key.TaskID.String() + "/" + key.TaskVersion + "/" + key.InputHash
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		result, err := fill(ctx)
		if err != nil {
			return domain.CachedResult{}, err
		}
		c.Put(key, result)
		return result, nil
	})
	if err != nil {
		return domain.CachedResult{}, err
	}
	return v.(domain.CachedResult), nil
}
