package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/store"
	"github.com/and161185/bookbazaar/internal/validate"
	"go.uber.org/zap"
)

// BookService defines catalog operations.
type BookService interface {
	// List returns the catalog, cached under query.Books.
	List(ctx context.Context) ([]model.Book, error)
	// Refresh reloads the catalog from the server.
	Refresh(ctx context.Context) ([]model.Book, error)
	// Search filters the cached catalog with store.MatchBook.
	Search(ctx context.Context, genre, term string) ([]model.Book, error)
	// Add creates a catalog entry. Admin only.
	Add(ctx context.Context, form validate.NewBook) (model.Book, error)
	// Delete removes a catalog entry. Admin only.
	Delete(ctx context.Context, id int) error
	// Buy purchases one copy.
	Buy(ctx context.Context, id int) error
	// BuyBatch purchases several books in one request.
	BuyBatch(ctx context.Context, purchases []model.Purchase) error
}

var _ BookService = (*BookServiceImpl)(nil)

type BookServiceImpl struct {
	api   API
	cache *query.Cache
	list  *query.Query[[]model.Book]
	log   *zap.Logger
}

// NewBookService constructs BookService with required dependencies.
func NewBookService(d Deps) *BookServiceImpl {
	s := &BookServiceImpl{api: d.API, cache: d.Cache, log: d.Log}
	s.list = query.New(d.Cache, query.Books, func(ctx context.Context) ([]model.Book, error) {
		if err := requireSession(s.api, "list books"); err != nil {
			return nil, err
		}
		return getJSON[[]model.Book](ctx, s.api, "/books")
	})
	return s
}

// Query exposes the catalog read for status rendering.
func (s *BookServiceImpl) Query() *query.Query[[]model.Book] { return s.list }

func (s *BookServiceImpl) List(ctx context.Context) ([]model.Book, error) {
	return s.list.Load(ctx)
}

func (s *BookServiceImpl) Refresh(ctx context.Context) ([]model.Book, error) {
	return s.list.Refetch(ctx)
}

func (s *BookServiceImpl) Search(ctx context.Context, genre, term string) ([]model.Book, error) {
	all, err := s.list.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Book, 0, len(all))
	for _, b := range all {
		if store.MatchBook(b, genre, term) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *BookServiceImpl) Add(ctx context.Context, form validate.NewBook) (model.Book, error) {
	if err := requireAdmin(s.api, "add book"); err != nil {
		return model.Book{}, err
	}
	if err := validate.Struct(form); err != nil {
		return model.Book{}, fmt.Errorf("add book: %w", err)
	}
	b, err := postJSON[model.Book](ctx, s.api, "/books", form)
	if err != nil {
		return model.Book{}, fmt.Errorf("add book: %w", err)
	}
	s.cache.Invalidate(query.Books)
	return b, nil
}

func (s *BookServiceImpl) Delete(ctx context.Context, id int) error {
	if err := requireAdmin(s.api, "delete book"); err != nil {
		return err
	}
	if err := call(ctx, s.api, http.MethodDelete, fmt.Sprintf("/books/%d", id), nil); err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	s.cache.Invalidate(query.Books)
	return nil
}

func (s *BookServiceImpl) Buy(ctx context.Context, id int) error {
	if err := requireSession(s.api, "buy"); err != nil {
		return err
	}
	if err := call(ctx, s.api, http.MethodPost, fmt.Sprintf("/books/%d/buyBook", id), nil); err != nil {
		return fmt.Errorf("buy book %d: %w", id, err)
	}
	s.cache.Invalidate(query.Books, query.Users, query.Me, query.OrderedBooks)
	return nil
}

type buyBooksRequest struct {
	Purchases []model.Purchase `json:"purchases"`
}

func (s *BookServiceImpl) BuyBatch(ctx context.Context, purchases []model.Purchase) error {
	if err := requireSession(s.api, "buy books"); err != nil {
		return err
	}
	if err := call(ctx, s.api, http.MethodPost, "/books/buyBooks", buyBooksRequest{Purchases: purchases}); err != nil {
		return fmt.Errorf("buy books: %w", err)
	}
	s.cache.Invalidate(query.Books, query.Users, query.Me, query.CartBooks, query.OrderedBooks)
	s.log.Info("batch purchase", zap.Int("books", len(purchases)))
	return nil
}
