package store

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/and161185/bookbazaar/internal/model"
)

// Cart is the local cart. There is never more than one line per book id and
// every quantity is at least 1. It is safe for concurrent use.
type Cart struct {
	mu      sync.RWMutex
	lines   []model.CartLine
	version uint64
	ops     journal
}

// NewCart returns an empty cart.
func NewCart() *Cart { return &Cart{} }

// Add increments the line for b.ID, or appends it with quantity 1.
func (c *Cart) Add(b model.Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(b)
}

// Remove deletes the line for id. An absent id is a no-op.
func (c *Cart) Remove(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

// UpdateQuantity sets the quantity of id to max(1, old+delta).
func (c *Cart) UpdateQuantity(id, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return
	}
	q := c.lines[i].Quantity + delta
	switch old := c.lines[i].Quantity; {
	case delta < 0 && q > old: // overflow
		q = 1
	case delta > 0 && q < old:
		q = math.MaxInt
	}
	c.lines[i].Quantity = max(1, q)
	c.version++
}

// ReplaceAll overwrites the cart with the server's lines. Duplicate ids are
// merged and quantities below 1 are raised to 1.
func (c *Cart) ReplaceAll(lines []model.CartLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceLocked(lines)
}

// ReplaceAllIfVersion overwrites the cart only if no local change happened
// since Version returned v. It reports whether the lines were applied.
func (c *Cart) ReplaceAllIfVersion(v uint64, lines []model.CartLine) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != v {
		return false
	}
	c.replaceLocked(lines)
	return true
}

// Version increases with every change.
func (c *Cart) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Lines returns a copy of the cart in insertion order.
func (c *Cart) Lines() []model.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.lines)
}

// Len is the number of distinct books.
func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

// Quantity returns the quantity for id.
func (c *Cart) Quantity(id int) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.lines[i].Quantity, true
	}
	return 0, false
}

// Total sums price times quantity, rounded to cents.
func (c *Cart) Total() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum float64
	for _, l := range c.lines {
		sum += l.Subtotal()
	}
	return math.Round(sum*100) / 100
}

// Purchases converts the cart into a batch purchase request.
func (c *Cart) Purchases() []model.Purchase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Purchase, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, model.Purchase{BookID: l.Book.ID, Quantity: l.Quantity})
	}
	return out
}

// Filter returns the lines whose book passes MatchBook.
func (c *Cart) Filter(genre, term string) []model.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.CartLine
	for _, l := range c.lines {
		if MatchBook(l.Book, genre, term) {
			out = append(out, l)
		}
	}
	return out
}

// PruneExpired removes lines whose reservation has elapsed and returns their ids.
func (c *Cart) PruneExpired(now time.Time) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var gone []int
	kept := c.lines[:0]
	for _, l := range c.lines {
		if l.Expired(now) {
			gone = append(gone, l.Book.ID)
			continue
		}
		kept = append(kept, l)
	}
	if len(gone) > 0 {
		clear(c.lines[len(kept):])
		c.lines = kept
		c.version++
	}
	return gone
}

// BeginAdd applies Add and records its inverse: the line is decremented, or
// removed when it is down to one copy.
func (c *Cart) BeginAdd(b model.Book) OpID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(b)
	return c.ops.begin(func() {
		i := c.indexLocked(b.ID)
		switch {
		case i < 0:
		case c.lines[i].Quantity <= 1:
			c.removeLocked(b.ID)
		default:
			c.lines[i].Quantity--
			c.version++
		}
	})
}

// BeginRemove applies Remove and records its inverse: the removed line is
// restored at its position unless the book was added again meanwhile.
func (c *Cart) BeginRemove(id int) OpID {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return c.ops.begin(func() {})
	}
	prev := c.lines[i]
	c.removeLocked(id)
	return c.ops.begin(func() {
		if c.indexLocked(id) >= 0 {
			return
		}
		at := min(i, len(c.lines))
		c.lines = slices.Insert(c.lines, at, prev)
		c.version++
	})
}

// Commit confirms op. It reports whether op was pending.
func (c *Cart) Commit(op OpID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ops.take(op)
	return ok
}

// Rollback applies the inverse of op. Unknown or settled ops are ignored.
func (c *Cart) Rollback(op OpID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv, ok := c.ops.take(op)
	if ok {
		inv()
	}
	return ok
}

// Pending is the number of unsettled operations.
func (c *Cart) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ops.size()
}

func (c *Cart) indexLocked(id int) int {
	return slices.IndexFunc(c.lines, func(l model.CartLine) bool { return l.Book.ID == id })
}

func (c *Cart) addLocked(b model.Book) {
	if i := c.indexLocked(b.ID); i >= 0 {
		c.lines[i].Quantity++
	} else {
		c.lines = append(c.lines, model.CartLine{Book: b, Quantity: 1})
	}
	c.version++
}

func (c *Cart) removeLocked(id int) {
	n := len(c.lines)
	c.lines = slices.DeleteFunc(c.lines, func(l model.CartLine) bool { return l.Book.ID == id })
	if len(c.lines) != n {
		c.version++
	}
}

func (c *Cart) replaceLocked(lines []model.CartLine) {
	next := make([]model.CartLine, 0, len(lines))
	for _, l := range lines {
		l.Quantity = max(1, l.Quantity)
		if i := slices.IndexFunc(next, func(x model.CartLine) bool { return x.Book.ID == l.Book.ID }); i >= 0 {
			next[i].Quantity += l.Quantity
			continue
		}
		next = append(next, l)
	}
	c.lines = next
	c.version++
}

// MatchBook reports whether b is in genre (empty matches all) and matches
// term: the genre equals it, or the name, author or description contains it.
// All comparisons ignore case.
func MatchBook(b model.Book, genre, term string) bool {
	if genre != "" && !strings.EqualFold(b.Genre, genre) {
		return false
	}
	if term == "" {
		return true
	}
	if strings.EqualFold(b.Genre, term) {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(b.Name), term) ||
		strings.Contains(strings.ToLower(b.Author), term) ||
		strings.Contains(strings.ToLower(b.Description), term)
}
