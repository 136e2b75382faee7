package store

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func book(id int, price float64) model.Book {
	return model.Book{ID: id, Name: "Book", Author: "Author", Price: price, Genre: "Fantasy"}
}

func TestCart_AddMergesByID(t *testing.T) {
	t.Parallel()
	for n := 1; n <= 20; n++ {
		c := NewCart()
		for i := 0; i < n; i++ {
			c.Add(book(4, 1))
		}
		require.Equal(t, 1, c.Len())
		q, ok := c.Quantity(4)
		require.True(t, ok)
		require.Equal(t, n, q)
	}
}

func TestCart_TwiceAddedTotal(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 9.99))
	c.Add(book(1, 9.99))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 9.99, lines[0].Book.Price)
	assert.Equal(t, 19.98, c.Total())
}

func TestCart_UpdateQuantityFloorsAtOne(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 5))
	c.UpdateQuantity(1, -5)
	q, _ := c.Quantity(1)
	require.Equal(t, 1, q)

	c.UpdateQuantity(1, 3)
	q, _ = c.Quantity(1)
	require.Equal(t, 4, q)
}

func TestCart_UpdateQuantityClampsOverflow(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	c.UpdateQuantity(1, 2)
	c.UpdateQuantity(1, math.MaxInt)
	q, _ := c.Quantity(1)
	require.Equal(t, math.MaxInt, q)

	c.UpdateQuantity(1, math.MinInt)
	q, _ = c.Quantity(1)
	require.Equal(t, 1, q)
}

func TestCart_UpdateQuantityRandomSequences(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		c := NewCart()
		c.Add(book(1, 1))
		want := 1
		for i := 0; i < 30; i++ {
			d := rng.Intn(11) - 5
			c.UpdateQuantity(1, d)
			want = max(1, want+d)
			q, _ := c.Quantity(1)
			require.GreaterOrEqual(t, q, 1)
			require.Equal(t, want, q)
		}
	}
}

func TestCart_UpdateQuantityUnknownIDIsNoop(t *testing.T) {
	t.Parallel()
	c := NewCart()
	v := c.Version()
	c.UpdateQuantity(9, 1)
	require.Equal(t, 0, c.Len())
	require.Equal(t, v, c.Version())
}

func TestCart_RemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	c.Add(book(2, 1))
	before := c.Lines()

	c.Remove(3)
	require.Equal(t, before, c.Lines())

	c.Remove(1)
	c.Remove(1)
	require.Equal(t, []model.CartLine{{Book: book(2, 1), Quantity: 1}}, c.Lines())
}

func TestCart_ReplaceAllDiscardsLocalState(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	c.Add(book(1, 1))
	c.Add(book(2, 1))

	server := []model.CartLine{{Book: book(3, 2.5), Quantity: 4}, {Book: book(1, 1), Quantity: 1}}
	c.ReplaceAll(server)
	require.Equal(t, server, c.Lines())
	require.Equal(t, 11.0, c.Total())
}

func TestCart_ReplaceAllNormalizes(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.ReplaceAll([]model.CartLine{
		{Book: book(1, 1), Quantity: 0},
		{Book: book(2, 1), Quantity: 2},
		{Book: book(1, 1), Quantity: 3},
	})
	require.Equal(t, []model.CartLine{
		{Book: book(1, 1), Quantity: 4},
		{Book: book(2, 1), Quantity: 2},
	}, c.Lines())
}

func TestCart_ReplaceAllIfVersion(t *testing.T) {
	t.Parallel()
	c := NewCart()
	v := c.Version()
	c.Add(book(1, 1)) // local edit while a fetch is in flight

	require.False(t, c.ReplaceAllIfVersion(v, nil))
	require.Equal(t, 1, c.Len())

	v = c.Version()
	require.True(t, c.ReplaceAllIfVersion(v, []model.CartLine{{Book: book(2, 1), Quantity: 1}}))
	_, ok := c.Quantity(2)
	require.True(t, ok)
}

func TestCart_BeginAddRollbackRemovesNewLine(t *testing.T) {
	t.Parallel()
	c := NewCart()
	op := c.BeginAdd(book(1, 1))
	require.Equal(t, 1, c.Len())
	require.Equal(t, 1, c.Pending())

	require.True(t, c.Rollback(op))
	require.Equal(t, 0, c.Len())
	require.Equal(t, 0, c.Pending())
	require.False(t, c.Rollback(op), "second rollback is ignored")
}

func TestCart_BeginAddRollbackDecrementsExistingLine(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	c.Add(book(1, 1))
	op := c.BeginAdd(book(1, 1))
	q, _ := c.Quantity(1)
	require.Equal(t, 3, q)

	c.Rollback(op)
	q, _ = c.Quantity(1)
	require.Equal(t, 2, q)
}

func TestCart_CommitKeepsChange(t *testing.T) {
	t.Parallel()
	c := NewCart()
	op := c.BeginAdd(book(1, 1))
	require.True(t, c.Commit(op))
	require.False(t, c.Rollback(op))
	require.Equal(t, 1, c.Len())
}

func TestCart_BeginRemoveRollbackRestoresPosition(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	c.Add(book(2, 1))
	c.Add(book(2, 1))
	c.Add(book(3, 1))
	before := c.Lines()

	op := c.BeginRemove(2)
	require.Equal(t, 2, c.Len())
	c.Rollback(op)
	require.Equal(t, before, c.Lines())
}

func TestCart_BeginRemoveRollbackSkipsReaddedLine(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	op := c.BeginRemove(1)
	c.Add(book(1, 1))
	c.Add(book(1, 1))
	c.Rollback(op)
	q, _ := c.Quantity(1)
	require.Equal(t, 2, q)
}

func TestCart_BeginRemoveAbsent(t *testing.T) {
	t.Parallel()
	c := NewCart()
	op := c.BeginRemove(5)
	require.True(t, c.Rollback(op))
	require.Equal(t, 0, c.Len())
}

func TestCart_DerivedViews(t *testing.T) {
	t.Parallel()
	c := NewCart()
	a := model.Book{ID: 1, Name: "Dune", Author: "Herbert", Genre: "SciFi", Price: 10}
	b := model.Book{ID: 2, Name: "Emma", Author: "Austen", Genre: "Classic", Price: 4}
	c.Add(a)
	c.Add(b)
	c.Add(b)

	assert.Equal(t, []model.Purchase{{BookID: 1, Quantity: 1}, {BookID: 2, Quantity: 2}}, c.Purchases())
	assert.Len(t, c.Filter("", ""), 2)
	assert.Len(t, c.Filter("scifi", ""), 1)
	assert.Len(t, c.Filter("", "AUST"), 1)
	assert.Empty(t, c.Filter("Classic", "dune"))
}

func TestMatchBook(t *testing.T) {
	t.Parallel()
	b := model.Book{Name: "Dune", Author: "Frank Herbert", Genre: "SciFi", Description: "desert planet spice"}
	tests := []struct {
		genre, term string
		want        bool
	}{
		{"", "", true},
		{"scifi", "", true},
		{"Classic", "", false},
		{"", "scifi", true},
		{"", "sci", false},
		{"", "spice", true},
		{"", "HERBERT", true},
		{"", "un", true},
		{"Classic", "dune", false},
		{"", "emma", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchBook(b, tt.genre, tt.term), "genre=%q term=%q", tt.genre, tt.term)
	}
}

func TestCart_PruneExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCart()
	fresh := book(1, 1)
	fresh.ReservationExpiresAt = model.Timestamp{Time: now.Add(time.Minute)}
	stale := book(2, 1)
	stale.ReservationExpiresAt = model.Timestamp{Time: now.Add(-time.Minute)}
	c.Add(fresh)
	c.Add(stale)
	c.Add(book(3, 1))

	require.Equal(t, []int{2}, c.PruneExpired(now))
	require.Equal(t, 2, c.Len())
	require.Empty(t, c.PruneExpired(now))
}

func TestCart_LinesIsACopy(t *testing.T) {
	t.Parallel()
	c := NewCart()
	c.Add(book(1, 1))
	lines := c.Lines()
	lines[0].Quantity = 99
	q, _ := c.Quantity(1)
	require.Equal(t, 1, q)
}

func TestCart_ConcurrentAdds(t *testing.T) {
	t.Parallel()
	c := NewCart()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Rollback(c.BeginAdd(book(1, 1)))
			c.Add(book(1, 1))
		}()
	}
	wg.Wait()
	q, _ := c.Quantity(1)
	require.Equal(t, 50, q)
	require.Equal(t, 0, c.Pending())
}
