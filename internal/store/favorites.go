package store

import (
	"slices"
	"sync"

	"github.com/and161185/bookbazaar/internal/model"
)

// Favorites is the local set of favorited books, kept in insertion order.
type Favorites struct {
	mu      sync.RWMutex
	items   []model.Book
	version uint64
	ops     journal
}

// NewFavorites returns an empty set.
func NewFavorites() *Favorites { return &Favorites{} }

// Toggle removes b if present and adds it otherwise. It reports whether b is
// a favorite afterwards.
func (f *Favorites) Toggle(b model.Book) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggleLocked(b)
}

// BeginToggle applies Toggle and records the reverse flip.
func (f *Favorites) BeginToggle(b model.Book) (OpID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := f.toggleLocked(b)
	op := f.ops.begin(func() {
		present := f.indexLocked(b.ID) >= 0
		if present == added {
			f.toggleLocked(b)
		}
	})
	return op, added
}

// Commit confirms op.
func (f *Favorites) Commit(op OpID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ops.take(op)
	return ok
}

// Rollback reverts op. Unknown or settled ops are ignored.
func (f *Favorites) Rollback(op OpID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.ops.take(op)
	if ok {
		inv()
	}
	return ok
}

// Contains reports whether id is a favorite.
func (f *Favorites) Contains(id int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.indexLocked(id) >= 0
}

// IDs returns the favorite book ids in insertion order.
func (f *Favorites) IDs() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]int, len(f.items))
	for i, b := range f.items {
		ids[i] = b.ID
	}
	return ids
}

// Items returns a copy of the favorite books.
func (f *Favorites) Items() []model.Book {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.items)
}

// Len is the number of favorites.
func (f *Favorites) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// Version changes on every mutation.
func (f *Favorites) Version() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// ReplaceAll overwrites the set with the server's list, dropping duplicate ids.
func (f *Favorites) ReplaceAll(books []model.Book) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceLocked(books)
}

// ReplaceAllIfVersion overwrites the set only if Version is still v.
func (f *Favorites) ReplaceAllIfVersion(v uint64, books []model.Book) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.version != v {
		return false
	}
	f.replaceLocked(books)
	return true
}

func (f *Favorites) replaceLocked(books []model.Book) {
	next := make([]model.Book, 0, len(books))
	for _, b := range books {
		if !slices.ContainsFunc(next, func(x model.Book) bool { return x.ID == b.ID }) {
			next = append(next, b)
		}
	}
	f.items = next
	f.version++
}

func (f *Favorites) indexLocked(id int) int {
	return slices.IndexFunc(f.items, func(b model.Book) bool { return b.ID == id })
}

func (f *Favorites) toggleLocked(b model.Book) bool {
	f.version++
	if i := f.indexLocked(b.ID); i >= 0 {
		f.items = slices.Delete(f.items, i, i+1)
		return false
	}
	f.items = append(f.items, b)
	return true
}
