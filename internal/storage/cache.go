package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/itaober/memogit/internal/models"
)

// ReadCache memoizes shard reads for the duration of one request. A fresh
// cache is attached to the request context by the server middleware and
// discarded when the request ends; it is never a process-wide singleton, so
// two requests can never observe each other's reads.
type ReadCache struct {
	mu     sync.Mutex
	shards map[string]cachedShard
}

type cachedShard struct {
	memos   models.MemoList
	version string
}

// NewReadCache creates an empty request-scoped cache.
func NewReadCache() *ReadCache {
	return &ReadCache{shards: make(map[string]cachedShard)}
}

// get returns a copy of the cached shard content, if present.
func (c *ReadCache) get(path string) (models.MemoList, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.shards[path]
	if !ok {
		return nil, "", false
	}
	return slices.Clone(s.memos), s.version, true
}

// put stores a copy of a shard read.
func (c *ReadCache) put(path string, memos models.MemoList, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[path] = cachedShard{memos: slices.Clone(memos), version: version}
}

// invalidate drops a shard after a write.
func (c *ReadCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shards, path)
}

type contextKey string

const readCacheKey contextKey = "readCache"

// WithReadCache attaches a request-scoped read cache to the context.
func WithReadCache(ctx context.Context, cache *ReadCache) context.Context {
	return context.WithValue(ctx, readCacheKey, cache)
}

// ReadCacheFrom extracts the read cache from the context, or nil.
func ReadCacheFrom(ctx context.Context) *ReadCache {
	if v, ok := ctx.Value(readCacheKey).(*ReadCache); ok {
		return v
	}
	return nil
}
