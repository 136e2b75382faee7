// Package query caches server reads under named keys. Mutations invalidate
// keys; the next read of an invalidated key goes back to the server.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key names one cached resource.
type Key string

// Keys used by the services.
const (
	Books         Key = "books"
	CartBooks     Key = "cartBooks"
	Favorites     Key = "favorites"
	BorrowedBooks Key = "borrowedBooks"
	Users         Key = "users"
	Me            Key = "me"
	OrderedBooks  Key = "orderedBooks"
)

// Status is the lifecycle of a cached read.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type entry struct {
	status    Status // outcome of the last load
	loading   int
	val       any
	err       error
	stale     bool
	gen       uint64
	updatedAt time.Time
}

// Cache holds one entry per key. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group
	log     *zap.Logger
	now     func() time.Time
}

// NewCache returns an empty cache. A nil logger is replaced with a no-op one.
func NewCache(log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{entries: make(map[Key]*entry), log: log, now: time.Now}
}

// Invalidate marks keys stale. Loads already in flight for them still
// return to their callers but cannot make the key fresh again.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		e := c.entryLocked(k)
		e.stale = true
		e.gen++
	}
	if len(keys) > 0 {
		c.log.Debug("query invalidated", zap.Any("keys", keys))
	}
}

// Clear drops every entry, e.g. after logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		*e = entry{gen: e.gen + 1, loading: e.loading}
	}
}

func (c *Cache) entryLocked(k Key) *entry {
	e, ok := c.entries[k]
	if !ok {
		e = &entry{}
		c.entries[k] = e
	}
	return e
}

// load returns the fresh cached value or runs fetch once for all concurrent
// callers of the same key generation.
func (c *Cache) load(ctx context.Context, key Key, force bool, fetch func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if !force && !e.stale && e.status == StatusSuccess {
		v := e.val
		c.mu.Unlock()
		return v, nil
	}
	gen := e.gen
	c.mu.Unlock()

	ch := c.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		c.begin(key)
		v, err := fetch(context.WithoutCancel(ctx))
		c.store(key, gen, v, err)
		return v, err
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) begin(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entryLocked(key).loading++
}

func (c *Cache) store(key Key, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.loading = max(0, e.loading-1)
	if e.gen != gen {
		return
	}
	if err != nil {
		e.status, e.err = StatusError, err
		return
	}
	e.status, e.val, e.err, e.stale = StatusSuccess, v, nil, false
	e.updatedAt = c.now()
}

func (c *Cache) snapshot(key Key) entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := *c.entryLocked(key)
	if e.loading > 0 {
		e.status = StatusLoading
	}
	return e
}
