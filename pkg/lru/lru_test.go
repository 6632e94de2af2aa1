package lru

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCachePutGet(t *testing.T) {
	cache := New[string, int](10)

	cache.Put("a", 1)
	cache.Put("b", 2)

	val, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, val)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestCacheEvictsOldest(t *testing.T) {
	cache := New[string, int](3)

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)
	cache.Put("d", 4)

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	for _, key := range []string{"b", "c", "d"} {
		_, ok := cache.Get(key)
		assert.True(t, ok, "expected %s to survive", key)
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	cache := New[string, int](3)

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	cache.Get("a")
	cache.Put("d", 4)

	_, ok := cache.Get("a")
	assert.True(t, ok, "recently read entry must not be evicted")
	_, ok = cache.Get("b")
	assert.False(t, ok, "least recently used entry should go")
}

func TestCacheUpdateKeepsSingleEntry(t *testing.T) {
	cache := New[string, int](10)

	cache.Put("a", 1)
	cache.Put("a", 2)

	val, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, val)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheDelete(t *testing.T) {
	cache := New[string, int](10)

	cache.Put("a", 1)
	cache.Delete("a")
	cache.Delete("never-there")

	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheKeysMostRecentFirst(t *testing.T) {
	cache := New[string, int](10)

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	assert.Equal(t, []string{"c", "b", "a"}, cache.Keys())
}

func TestCacheOnEvict(t *testing.T) {
	cache := New[string, int](2)

	var evicted []string
	cache.OnEvict(func(k string, v int) { evicted = append(evicted, k) })

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	assert.Equal(t, []string{"a"}, evicted)

	// Delete must not fire the eviction callback.
	cache.Delete("b")
	assert.Len(t, evicted, 1)
}

func TestCacheDefaultCapacity(t *testing.T) {
	cache := New[string, int](0)
	assert.Equal(t, 1000, cache.capacity)
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := New[int, int](1000)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := id*1000 + i
				cache.Put(key, key*2)
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 1000)
}
