// Package diskcache provides the pipeline's default on-disk byte cache: a
// directory of content-addressed files with a count/size-bounded LRU
// index, offered asynchronously through a small bounded worker queue so
// disk I/O never blocks the pipeline context.
package diskcache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kestrelimg/imagepipeline/internal/core"
	"github.com/kestrelimg/imagepipeline/internal/queue"
)

const defaultWorkers = 4

var errNotFound = errors.New("diskcache: key not found")

// DefaultCountLimit and DefaultSizeLimit match the pipeline's configured
// disk cache defaults (1000 entries, 100 MiB).
const (
	DefaultCountLimit = 1000
	DefaultSizeLimit  = 100 * 1024 * 1024
)

type entry struct {
	key  string
	path string
	size int64
	elem *list.Element
}

// Cache implements core.DiskCache over a directory on the local
// filesystem, evicting the least-recently-used entries once countLimit or
// sizeLimit is exceeded.
type Cache struct {
	dir        string
	countLimit int
	sizeLimit  int64

	mu        sync.Mutex
	index     map[string]*entry
	lru       *list.List // front = most recently used
	totalSize int64

	workers *queue.Queue
	// group coalesces concurrent Lookup calls for the same key into one
	// disk read, so a burst of sessions sharing a disk fingerprint (e.g.
	// deduplication disabled but the same bytes on disk) don't each pay for
	// their own os.ReadFile.
	group singleflight.Group
}

// New creates a disk cache rooted at dir, which is created if missing.
func New(dir string, countLimit int, sizeLimit int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if countLimit <= 0 {
		countLimit = DefaultCountLimit
	}
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	return &Cache{
		dir:        dir,
		countLimit: countLimit,
		sizeLimit:  sizeLimit,
		index:      make(map[string]*entry),
		lru:        list.New(),
		workers:    queue.New(defaultWorkers),
	}, nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Lookup asynchronously reads the cached bytes for key, if present.
func (c *Cache) Lookup(ctx context.Context, key string, onResult func(data []byte, found bool)) core.CancelFunc {
	cancelled := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(cancelled) }) }

	c.workers.Submit(0, func(finish func()) {
		defer finish()

		select {
		case <-cancelled:
			return
		default:
		}

		v, err, _ := c.group.Do(key, func() (any, error) {
			c.mu.Lock()
			e, ok := c.index[key]
			if ok {
				c.lru.MoveToFront(e.elem)
			}
			c.mu.Unlock()

			if !ok {
				return nil, errNotFound
			}
			return os.ReadFile(e.path)
		})
		if err != nil {
			onResult(nil, false)
			return
		}
		onResult(v.([]byte), true)
	}, nil)

	return cancel
}

// Store asynchronously writes data under key and evicts LRU entries beyond
// the configured limits.
func (c *Cache) Store(key string, data []byte) {
	c.workers.Submit(0, func(finish func()) {
		defer finish()
		c.store(key, data)
	}, nil)
}

func (c *Cache) store(key string, data []byte) {
	path := filepath.Join(c.dir, hashKey(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.index[key]; ok {
		c.totalSize -= old.size
		c.lru.MoveToFront(old.elem)
		old.size = int64(len(data))
		c.totalSize += old.size
	} else {
		e := &entry{key: key, path: path, size: int64(len(data))}
		e.elem = c.lru.PushFront(e)
		c.index[key] = e
		c.totalSize += e.size
	}

	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for len(c.index) > c.countLimit || c.totalSize > c.sizeLimit {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.lru.Remove(back)
		delete(c.index, e.key)
		c.totalSize -= e.size
		_ = os.Remove(e.path)
	}
}
