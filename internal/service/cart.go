package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/bookbazaar/internal/errs"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/store"
	"go.uber.org/zap"
)

// CartService defines cart operations. The local store.Cart is the source
// of truth for rendering; the server copy reconciles into it.
type CartService interface {
	// List reconciles the server cart into the local one and returns its lines.
	List(ctx context.Context) ([]model.CartLine, error)
	// Refresh is List with a forced server read.
	Refresh(ctx context.Context) ([]model.CartLine, error)
	// Add reserves one more copy of b, optimistically.
	Add(ctx context.Context, b model.Book) error
	// Remove drops the line for id, optimistically.
	Remove(ctx context.Context, id int) error
	// UpdateQuantity changes a line locally; the server is not told.
	UpdateQuantity(id, delta int)
	// Checkout buys every line in one batch.
	Checkout(ctx context.Context) error
}

var _ CartService = (*CartServiceImpl)(nil)

// snapshot is a server read tagged with the local version at fetch start.
type snapshot[T any] struct {
	seq     uint64
	version uint64
	data    T
}

// reconciler applies each snapshot at most once and never an older one.
type reconciler struct {
	seq     atomic.Uint64
	mu      sync.Mutex
	applied uint64
}

func (r *reconciler) next() uint64 { return r.seq.Add(1) }

// fresh reports whether seq has not been seen yet and marks it seen.
func (r *reconciler) fresh(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq <= r.applied {
		return false
	}
	r.applied = seq
	return true
}

type cartRow struct {
	model.Book
	QuantityCart *int `json:"quantityCart"`
}

type CartServiceImpl struct {
	api   API
	cache *query.Cache
	cart  *store.Cart
	books BookService
	now   func() time.Time
	log   *zap.Logger
	rec   reconciler
	list  *query.Query[snapshot[[]model.CartLine]]
}

// NewCartService constructs CartService. Checkout goes through books.
func NewCartService(d Deps, books BookService) *CartServiceImpl {
	s := &CartServiceImpl{api: d.API, cache: d.Cache, cart: d.Cart, books: books, now: d.Clock, log: d.Log}
	s.list = query.New(d.Cache, query.CartBooks, s.fetch)
	return s
}

func (s *CartServiceImpl) fetch(ctx context.Context) (snapshot[[]model.CartLine], error) {
	snap := snapshot[[]model.CartLine]{seq: s.rec.next(), version: s.cart.Version()}
	if err := requireSession(s.api, "list cart"); err != nil {
		return snap, err
	}
	rows, err := getJSON[[]cartRow](ctx, s.api, "/books/cart")
	if err != nil {
		return snap, err
	}
	snap.data = make([]model.CartLine, 0, len(rows))
	for _, r := range rows {
		q := 1
		if r.QuantityCart != nil {
			q = *r.QuantityCart
		}
		snap.data = append(snap.data, model.CartLine{Book: r.Book, Quantity: q})
	}
	return snap, nil
}

// Store returns the local cart.
func (s *CartServiceImpl) Store() *store.Cart { return s.cart }

// Status reports the cart read status.
func (s *CartServiceImpl) Status() query.Status { return s.list.State().Status }

func (s *CartServiceImpl) List(ctx context.Context) ([]model.CartLine, error) {
	return s.reconcile(ctx, s.list.Load)
}

func (s *CartServiceImpl) Refresh(ctx context.Context) ([]model.CartLine, error) {
	return s.reconcile(ctx, s.list.Refetch)
}

func (s *CartServiceImpl) reconcile(ctx context.Context, load func(context.Context) (snapshot[[]model.CartLine], error)) ([]model.CartLine, error) {
	snap, err := load(ctx)
	if err != nil {
		return nil, err
	}
	// A pending add or remove is not in any server copy yet.
	if s.rec.fresh(snap.seq) && (s.cart.Pending() > 0 || !s.cart.ReplaceAllIfVersion(snap.version, snap.data)) {
		// local edits since the fetch started
		s.log.Debug("cart snapshot discarded", zap.Uint64("seq", snap.seq))
		s.cache.Invalidate(query.CartBooks)
	}
	if gone := s.cart.PruneExpired(s.now()); len(gone) > 0 {
		s.log.Info("cart reservations expired", zap.Ints("book_ids", gone))
	}
	return s.cart.Lines(), nil
}

func (s *CartServiceImpl) Add(ctx context.Context, b model.Book) error {
	if err := requireSession(s.api, "add to cart"); err != nil {
		return err
	}
	op := s.cart.BeginAdd(b)
	if err := call(ctx, s.api, http.MethodPost, fmt.Sprintf("/books/cart/%d", b.ID), nil); err != nil {
		s.cart.Rollback(op)
		return fmt.Errorf("add book %d to cart: %w", b.ID, err)
	}
	s.cart.Commit(op)
	s.cache.Invalidate(query.CartBooks)
	return nil
}

func (s *CartServiceImpl) Remove(ctx context.Context, id int) error {
	if err := requireSession(s.api, "remove from cart"); err != nil {
		return err
	}
	op := s.cart.BeginRemove(id)
	if err := call(ctx, s.api, http.MethodDelete, fmt.Sprintf("/books/cart/%d", id), nil); err != nil {
		s.cart.Rollback(op)
		return fmt.Errorf("remove book %d from cart: %w", id, err)
	}
	s.cart.Commit(op)
	s.cache.Invalidate(query.CartBooks)
	return nil
}

func (s *CartServiceImpl) UpdateQuantity(id, delta int) {
	s.cart.UpdateQuantity(id, delta)
}

func (s *CartServiceImpl) Checkout(ctx context.Context) error {
	purchases := s.cart.Purchases()
	if len(purchases) == 0 {
		return fmt.Errorf("checkout: cart is empty: %w", errs.ErrValidation)
	}
	if err := s.books.BuyBatch(ctx, purchases); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	for _, p := range purchases {
		s.cart.Remove(p.BookID)
	}
	return nil
}
