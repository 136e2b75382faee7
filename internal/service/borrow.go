package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/validate"
)

// BorrowService defines lending operations.
type BorrowService interface {
	// Borrowed lists the caller's borrowed books with their due dates.
	Borrowed(ctx context.Context) ([]model.Book, error)
	// Borrow lends a book for days days.
	Borrow(ctx context.Context, id, days int) error
	// GiveBack returns a borrowed book.
	GiveBack(ctx context.Context, id int) error
}

var _ BorrowService = (*BorrowServiceImpl)(nil)

// borrowKeys are invalidated by every lending change.
var borrowKeys = []query.Key{query.BorrowedBooks, query.Books, query.Users, query.Me}

type BorrowServiceImpl struct {
	api   API
	cache *query.Cache
	list  *query.Query[[]model.Book]
}

// NewBorrowService constructs BorrowService with required dependencies.
func NewBorrowService(d Deps) *BorrowServiceImpl {
	s := &BorrowServiceImpl{api: d.API, cache: d.Cache}
	s.list = query.New(d.Cache, query.BorrowedBooks, func(ctx context.Context) ([]model.Book, error) {
		if err := requireSession(s.api, "list borrowed"); err != nil {
			return nil, err
		}
		return getJSON[[]model.Book](ctx, s.api, "/books/borrowedBooks")
	})
	return s
}

func (s *BorrowServiceImpl) Borrowed(ctx context.Context) ([]model.Book, error) {
	return s.list.Load(ctx)
}

func (s *BorrowServiceImpl) Borrow(ctx context.Context, id, days int) error {
	if err := requireSession(s.api, "borrow"); err != nil {
		return err
	}
	form := validate.Borrow{Days: days}
	if err := validate.Struct(form); err != nil {
		return fmt.Errorf("borrow book %d: %w", id, err)
	}
	if err := call(ctx, s.api, http.MethodPost, fmt.Sprintf("/books/%d/borrowBook", id), form); err != nil {
		return fmt.Errorf("borrow book %d: %w", id, err)
	}
	s.cache.Invalidate(borrowKeys...)
	return nil
}

func (s *BorrowServiceImpl) GiveBack(ctx context.Context, id int) error {
	if err := requireSession(s.api, "give back"); err != nil {
		return err
	}
	if err := call(ctx, s.api, http.MethodPut, fmt.Sprintf("/books/%d/giveBookBack", id), nil); err != nil {
		return fmt.Errorf("give back book %d: %w", id, err)
	}
	s.cache.Invalidate(borrowKeys...)
	return nil
}
