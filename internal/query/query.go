package query

import (
	"context"
	"time"
)

// State is what a view renders: the last good data plus the current status.
type State[T any] struct {
	Status    Status
	Data      T
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// Query binds a key to its fetch function.
type Query[T any] struct {
	cache *Cache
	key   Key
	fetch func(context.Context) (T, error)
}

// New registers a typed read under key.
func New[T any](c *Cache, key Key, fetch func(context.Context) (T, error)) *Query[T] {
	return &Query[T]{cache: c, key: key, fetch: fetch}
}

// Key returns the cache key.
func (q *Query[T]) Key() Key { return q.key }

// Load returns the cached value, loading it if missing or invalidated.
func (q *Query[T]) Load(ctx context.Context) (T, error) {
	return q.load(ctx, false)
}

// Refetch always goes to the server.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	return q.load(ctx, true)
}

func (q *Query[T]) load(ctx context.Context, force bool) (T, error) {
	v, err := q.cache.load(ctx, q.key, force, func(ctx context.Context) (any, error) {
		return q.fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// State reports the current status without loading.
func (q *Query[T]) State() State[T] {
	e := q.cache.snapshot(q.key)
	st := State[T]{Status: e.status, Err: e.err, Stale: e.stale, UpdatedAt: e.updatedAt}
	if v, ok := e.val.(T); ok {
		st.Data = v
	}
	return st
}
