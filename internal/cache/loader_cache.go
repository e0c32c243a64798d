// Package cache provides a compute-once loader cache for long-lived,
// read-only process singletons such as loaded indexes and pipelines.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds the number of distinct keys a cache keeps.
// Singleton caches hold one entry per configuration, so eviction never
// happens in practice.
const DefaultMaxEntries = 64

// LoaderCache loads values on miss via a callback and coalesces concurrent
// loads for the same key, so a burst of first requests runs the loader once
// and every caller shares the result. Failed loads are not cached.
type LoaderCache[K comparable, V any] struct {
	lru         *lru.Cache[string, V]
	group       singleflight.Group
	keyToString func(K) string
}

// NewLoaderCache creates a loader cache with the given max entries and key serializer.
func NewLoaderCache[K comparable, V any](maxEntries int, keyToString func(K) string) (*LoaderCache[K, V], error) {
	lruCache, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}

	return &LoaderCache[K, V]{
		lru:         lruCache,
		keyToString: keyToString,
	}, nil
}

// MustNewLoaderCache is NewLoaderCache for package-level singletons.
func MustNewLoaderCache[K comparable, V any](maxEntries int, keyToString func(K) string) *LoaderCache[K, V] {
	c, err := NewLoaderCache[K, V](maxEntries, keyToString)
	if err != nil {
		panic("cache: " + err.Error())
	}
	return c
}

// Get returns the value for key, loading it via load on cache miss.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)
	return v, err
}

// GetWithStats is like Get but also reports whether the value was already cached.
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	keyStr := c.keyToString(key)
	if v, ok := c.lru.Get(keyStr); ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(keyStr, func() (any, error) {
		// A concurrent caller may have finished loading between our miss and Do.
		if v, ok := c.lru.Get(keyStr); ok {
			return v, nil
		}
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		c.lru.Add(keyStr, loaded)

		return loaded, nil
	})
	if err != nil {
		return zero[V](), false, err
	}

	return val.(V), false, nil
}

func zero[V any]() (z V) { return z }

// Len returns the number of entries in the cache.
func (c *LoaderCache[K, V]) Len() int {
	return c.lru.Len()
}
