package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/store"
	"go.uber.org/zap"
)

// FavoriteService defines favorites operations.
type FavoriteService interface {
	// List reconciles the server favorites into the local set and returns it.
	List(ctx context.Context) ([]model.Book, error)
	// Toggle flips b optimistically and reports whether it is now a favorite.
	Toggle(ctx context.Context, b model.Book) (bool, error)
}

var _ FavoriteService = (*FavoriteServiceImpl)(nil)

type FavoriteServiceImpl struct {
	api   API
	cache *query.Cache
	favs  *store.Favorites
	log   *zap.Logger
	rec   reconciler
	list  *query.Query[snapshot[[]model.Book]]
}

// NewFavoriteService constructs FavoriteService with required dependencies.
func NewFavoriteService(d Deps) *FavoriteServiceImpl {
	s := &FavoriteServiceImpl{api: d.API, cache: d.Cache, favs: d.Favorites, log: d.Log}
	s.list = query.New(d.Cache, query.Favorites, func(ctx context.Context) (snapshot[[]model.Book], error) {
		snap := snapshot[[]model.Book]{seq: s.rec.next(), version: s.favs.Version()}
		if err := requireSession(s.api, "list favorites"); err != nil {
			return snap, err
		}
		books, err := getJSON[[]model.Book](ctx, s.api, "/books/Favorites")
		snap.data = books
		return snap, err
	})
	return s
}

// Store returns the local favorites.
func (s *FavoriteServiceImpl) Store() *store.Favorites { return s.favs }

func (s *FavoriteServiceImpl) List(ctx context.Context) ([]model.Book, error) {
	snap, err := s.list.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.rec.fresh(snap.seq) && !s.favs.ReplaceAllIfVersion(snap.version, snap.data) {
		s.log.Debug("favorites snapshot discarded", zap.Uint64("seq", snap.seq))
		s.cache.Invalidate(query.Favorites)
	}
	return s.favs.Items(), nil
}

func (s *FavoriteServiceImpl) Toggle(ctx context.Context, b model.Book) (bool, error) {
	if err := requireSession(s.api, "toggle favorite"); err != nil {
		return false, err
	}
	op, added := s.favs.BeginToggle(b)
	method, path := http.MethodDelete, fmt.Sprintf("/books/deleteFavorite/%d", b.ID)
	if added {
		method, path = http.MethodPost, fmt.Sprintf("/books/addToFavorites/%d", b.ID)
	}
	if err := call(ctx, s.api, method, path, nil); err != nil {
		s.favs.Rollback(op)
		return !added, fmt.Errorf("toggle favorite %d: %w", b.ID, err)
	}
	s.favs.Commit(op)
	s.cache.Invalidate(query.Favorites, query.Books)
	return added, nil
}
