package metadata

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
)

// CachingProvider wraps another Provider with a bounded, TTL-based cache.
// Concurrent lookups for the same URL share a single upstream call. The shared
// call is detached from every caller's cancellation and is bounded by the base
// provider's own timeouts; each caller stops waiting at its own deadline.
// Failed lookups are not cached.
type CachingProvider struct {
	base  Provider
	items *expirable.LRU[string, Result]
	group singleflight.Group
}

// NewCachingProvider returns a Provider that caches up to size lookups for ttl.
func NewCachingProvider(base Provider, size int, ttl time.Duration) *CachingProvider {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachingProvider{
		base:  base,
		items: expirable.NewLRU[string, Result](size, nil, ttl),
	}
}

// Lookup returns cached metadata when available, otherwise it delegates to the
// underlying provider and stores the result.
func (c *CachingProvider) Lookup(ctx context.Context, url string) (Result, error) {
	if c == nil || c.base == nil {
		return Result{}, ErrProviderUnavailable
	}

	if cached, ok := c.items.Get(url); ok {
		return cached, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		result, err := c.base.Lookup(shared, url)
		if err != nil {
			return Result{}, err
		}
		c.items.Add(url, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

// Len reports the number of live cache entries.
func (c *CachingProvider) Len() int {
	return c.items.Len()
}
