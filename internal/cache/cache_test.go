package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// testCache fills in zero-valued config fields with sane test defaults.
// It does not force Enabled (unlike CacheConfig.SetDefaults) so a test can
// exercise the disabled path; callers that want the cache enabled set
// Enabled: true explicitly in the literal they pass in.
func testCache(t *testing.T, cfg config.CacheConfig) *Cache {
	t.Helper()
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 100
	}
	if cfg.MaxResultSize == 0 {
		cfg.MaxResultSize = 1 << 20
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return New(cfg, log)
}

func TestKey_SameJSONDifferentKeyOrder_SameHash(t *testing.T) {
	taskID := uuid.New()
	k1, err := Key(taskID, "1.0.0", []byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	k2, err := Key(taskID, "1.0.0", []byte(`{"b":2,"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestCache_PutGet_Roundtrip(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}
	result := domain.NewCachedSuccess(uuid.New(), []byte(`{"ok":true}`), 10)

	c.Put(key, result)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, result.ExecutionID, got.ExecutionID)
}

func TestCache_Get_ExpiredEntryMisses(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true, TTL: time.Millisecond})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}
	c.Put(key, domain.NewCachedSuccess(uuid.New(), []byte(`{}`), 1))

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_Put_SkipsFailureWhenCacheOnlySuccess(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true, CacheOnlySuccess: true})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}
	c.Put(key, domain.NewCachedFailure(uuid.New(), "boom", 1))

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_Put_RejectsOversizedResult(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true, MaxResultSize: 4})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}
	c.Put(key, domain.NewCachedSuccess(uuid.New(), []byte(`{"too":"big"}`), 1))

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedUnderWeightBudget(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true, MaxEntries: 2, MaxResultSize: 1 << 20})

	k1 := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "1"}
	k2 := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "2"}
	k3 := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "3"}

	c.Put(k1, domain.NewCachedSuccess(uuid.New(), []byte(`{}`), 1))
	c.Put(k2, domain.NewCachedSuccess(uuid.New(), []byte(`{}`), 1))
	c.Get(k1) // touch k1, making k2 the LRU victim
	c.Put(k3, domain.NewCachedSuccess(uuid.New(), []byte(`{}`), 1))

	_, ok1 := c.Get(k1)
	_, ok2 := c.Get(k2)
	_, ok3 := c.Get(k3)
	assert.True(t, ok1)
	assert.False(t, ok2, "k2 should have been evicted as the least recently used entry")
	assert.True(t, ok3)
}

func TestCache_GetOrFill_CollapsesConcurrentCallers(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}

	var calls int64
	fill := func(ctx context.Context) (domain.CachedResult, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return domain.NewCachedSuccess(uuid.New(), []byte(`{}`), 1), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrFill(context.Background(), key, fill)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "concurrent misses for the same key should fill once")
}

func TestCache_GetOrFill_PropagatesFillError(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: true})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}
	wantErr := errors.New("boom")

	_, err := c.GetOrFill(context.Background(), key, func(ctx context.Context) (domain.CachedResult, error) {
		return domain.CachedResult{}, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestCache_Disabled_NeverCaches(t *testing.T) {
	c := testCache(t, config.CacheConfig{Enabled: false})
	key := domain.ResultCacheKey{TaskID: uuid.New(), TaskVersion: "1.0.0", InputHash: "abc"}
	c.Put(key, domain.NewCachedSuccess(uuid.New(), []byte(`{}`), 1))

	_, ok := c.Get(key)
	assert.False(t, ok)
}
