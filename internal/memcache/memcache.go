// Package memcache provides the pipeline's default in-memory response
// cache, backed by patrickmn/go-cache so hosts get expiration and janitor
// sweeps for free instead of a hand-rolled LRU.
package memcache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kestrelimg/imagepipeline/internal/core"
)

// Cache implements core.MemoryCache over a gocache.Cache keyed by loading
// key plus processor identity, so two requests for the same bytes with
// different processors don't collide.
type Cache struct {
	c *gocache.Cache
}

// New creates a memory cache. expiration of zero disables expiration;
// cleanupInterval controls how often expired entries are purged.
func New(expiration, cleanupInterval time.Duration) *Cache {
	return &Cache{c: gocache.New(expiration, cleanupInterval)}
}

func cacheKey(req core.Request) string {
	return req.LoadingKey() + "|" + req.ProcessorIdentity()
}

func (c *Cache) Get(req core.Request) (core.Response, bool) {
	v, ok := c.c.Get(cacheKey(req))
	if !ok {
		return core.Response{}, false
	}
	return v.(core.Response), true
}

func (c *Cache) Put(req core.Request, resp core.Response) {
	c.c.SetDefault(cacheKey(req), resp)
}
