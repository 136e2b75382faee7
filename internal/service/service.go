// Package service binds each BookBazaar resource to its remote operations,
// the query cache and the local collection stores.
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/bookbazaar/internal/apiclient"
	"github.com/and161185/bookbazaar/internal/errs"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/session"
	"github.com/and161185/bookbazaar/internal/store"
	"go.uber.org/zap"
)

// API is the part of *apiclient.Client the services depend on.
type API interface {
	// Do sends an authenticated request with refresh-and-retry on 401.
	Do(ctx context.Context, r apiclient.Request) (*http.Response, error)
	// Public sends a request without a bearer token.
	Public(ctx context.Context, r apiclient.Request) (*http.Response, error)
	// Session returns the session store the client reads tokens from.
	Session() *session.Store
	// TryAutoLogin restores the session from the refresh cookie.
	TryAutoLogin(ctx context.Context) bool
}

var _ API = (*apiclient.Client)(nil)

// Deps are shared by all services. Everything but API gets a default when nil.
type Deps struct {
	API       API
	Cache     *query.Cache
	Cart      *store.Cart
	Favorites *store.Favorites
	Clock     func() time.Time
	Log       *zap.Logger
}

// Services groups one service per resource.
type Services struct {
	Auth      *AuthServiceImpl
	Books     *BookServiceImpl
	Cart      *CartServiceImpl
	Favorites *FavoriteServiceImpl
	Borrow    *BorrowServiceImpl
	Users     *UserServiceImpl
	Orders    *OrderServiceImpl
}

// New wires all services on shared dependencies.
func New(d Deps) *Services {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Cache == nil {
		d.Cache = query.NewCache(d.Log)
	}
	if d.Cart == nil {
		d.Cart = store.NewCart()
	}
	if d.Favorites == nil {
		d.Favorites = store.NewFavorites()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	// Expiry and failed refreshes log out without going through Auth.
	d.API.Session().Subscribe(func(s model.Session) {
		if !s.IsLoggedIn {
			dropUserState(d.Cache, d.Cart, d.Favorites)
		}
	})
	books := NewBookService(d)
	return &Services{
		Auth:      NewAuthService(d),
		Books:     books,
		Cart:      NewCartService(d, books),
		Favorites: NewFavoriteService(d),
		Borrow:    NewBorrowService(d),
		Users:     NewUserService(d),
		Orders:    NewOrderService(d),
	}
}

// dropUserState forgets every read and local collection of the previous user.
func dropUserState(c *query.Cache, cart *store.Cart, favs *store.Favorites) {
	c.Clear()
	cart.ReplaceAll(nil)
	favs.ReplaceAll(nil)
}

// requireSession fails before any request when nobody is logged in.
func requireSession(api API, op string) error {
	if !api.Session().IsLoggedIn() {
		return fmt.Errorf("%s: %w", op, errs.ErrUnauthenticated)
	}
	return nil
}

// requireAdmin fails before any request unless an admin is logged in.
func requireAdmin(api API, op string) error {
	if err := requireSession(api, op); err != nil {
		return err
	}
	if !api.Session().IsAdmin() {
		return fmt.Errorf("%s: %w", op, errs.ErrForbidden)
	}
	return nil
}

func getJSON[T any](ctx context.Context, api API, path string) (T, error) {
	var out T
	resp, err := api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return out, err
	}
	if err := apiclient.DecodeJSON(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

func postJSON[T any](ctx context.Context, api API, path string, body any) (T, error) {
	var out T
	b, err := apiclient.JSONBody(body)
	if err != nil {
		return out, err
	}
	resp, err := api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: b})
	if err != nil {
		return out, err
	}
	if err := apiclient.DecodeJSON(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

// call sends an authenticated mutation and expects a 2xx answer.
func call(ctx context.Context, api API, method, path string, body any) error {
	req := apiclient.Request{Method: method, Path: path}
	if body != nil {
		b, err := apiclient.JSONBody(body)
		if err != nil {
			return err
		}
		req.Body = b
	}
	resp, err := api.Do(ctx, req)
	if err != nil {
		return err
	}
	return apiclient.Expect(resp)
}
