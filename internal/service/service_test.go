package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/and161185/bookbazaar/internal/apiclient"
	"github.com/and161185/bookbazaar/internal/errs"
	"github.com/and161185/bookbazaar/internal/fakeapi"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/session"
	"github.com/and161185/bookbazaar/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	fake  *fakeapi.Server
	api   *apiclient.Client
	cache *query.Cache
	svc   *Services
	clock *clock

	mu         sync.Mutex
	beforeCart func() // runs inside GET /books/cart before the backend answers
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{clock: &clock{now: time.Now()}}
	e.fake = fakeapi.New(fakeapi.WithClock(e.clock.Now))
	e.fake.Seed()

	h := e.fake.Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == fakeapi.Prefix+"/books/cart" {
			e.mu.Lock()
			hook := e.beforeCart
			e.mu.Unlock()
			if hook != nil {
				hook()
			}
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	api, err := apiclient.New(apiclient.Config{BaseURL: srv.URL + fakeapi.Prefix, Timeout: 5 * time.Second}, session.NewStore())
	require.NoError(t, err)
	e.api = api
	e.cache = query.NewCache(nil)
	e.svc = New(Deps{API: api, Cache: e.cache, Clock: e.clock.Now})
	return e
}

func (e *env) login(t *testing.T, user string) {
	t.Helper()
	_, err := e.svc.Auth.Login(context.Background(), validate.Login{Username: user, Password: user})
	require.NoError(t, err)
}

func (e *env) onCartFetch(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beforeCart = fn
}

func TestAuth_LoginLogout(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Auth.Login(ctx, validate.Login{Username: "reader", Password: "wrong"})
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "wrong username or password", apiErr.Message)

	sess, err := e.svc.Auth.Login(ctx, validate.Login{Username: "reader", Password: "reader"})
	require.NoError(t, err)
	assert.True(t, sess.IsLoggedIn)
	require.NotNil(t, sess.UserID)
	assert.Equal(t, 2, *sess.UserID)
	assert.False(t, e.api.Session().IsAdmin())

	require.NoError(t, e.svc.Auth.Logout(ctx))
	assert.False(t, e.api.Session().IsLoggedIn())
	assert.False(t, e.svc.Auth.AutoLogin(ctx), "refresh cookie cleared by logout")
}

func TestAuth_LoginValidatesBeforeRequest(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	_, err := e.svc.Auth.Login(context.Background(), validate.Login{Username: "reader"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Zero(t, e.fake.Requests())
}

func TestAuth_AutoLoginFromCookie(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "admin")
	e.api.Session().Logout()

	require.True(t, e.svc.Auth.AutoLogin(context.Background()))
	assert.True(t, e.api.Session().IsAdmin(), "role recovered from the refreshed token")
}

func TestAuth_Register(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	form := validate.Registration{Name: "Nina", Lastname: "Novak", Username: "ninan", Email: "nina@bookbazaar.test", Password: "secret1"}

	u, err := e.svc.Auth.Register(ctx, form)
	require.NoError(t, err)
	assert.Equal(t, "ninan", u.Username)

	_, err = e.svc.Auth.Register(ctx, form)
	require.ErrorIs(t, err, errs.ErrConflict)

	form.Email = "not-an-email"
	_, err = e.svc.Auth.Register(ctx, form)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestServices_RequireSessionBeforeAnyRequest(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	dune := model.Book{ID: 1, Name: "Dune", Price: 9.99}

	_, err := e.svc.Books.List(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	require.ErrorIs(t, e.svc.Cart.Add(ctx, dune), errs.ErrUnauthenticated)
	_, err = e.svc.Favorites.Toggle(ctx, dune)
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	require.ErrorIs(t, e.svc.Borrow.Borrow(ctx, 1, 7), errs.ErrUnauthenticated)
	_, err = e.svc.Orders.History(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthenticated)

	assert.Zero(t, e.fake.Requests())
	assert.Zero(t, e.svc.Cart.Store().Len())
	assert.Zero(t, e.svc.Favorites.Store().Len())
}

func TestBooks_ListIsCachedUntilInvalidated(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "reader")
	ctx := context.Background()

	books, err := e.svc.Books.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 3)
	n := e.fake.Requests()

	_, err = e.svc.Books.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, e.fake.Requests(), "served from cache")
	assert.Equal(t, query.StatusSuccess, e.svc.Books.Query().State().Status)

	scifi, err := e.svc.Books.Search(ctx, "SciFi", "")
	require.NoError(t, err)
	assert.Len(t, scifi, 2)
	emma, err := e.svc.Books.Search(ctx, "", "austen")
	require.NoError(t, err)
	require.Len(t, emma, 1)
	assert.Equal(t, "Emma", emma[0].Name)
	byGenre, err := e.svc.Books.Search(ctx, "", "scifi")
	require.NoError(t, err)
	assert.Len(t, byGenre, 2)
	utopia, err := e.svc.Books.Search(ctx, "", "utopia")
	require.NoError(t, err)
	require.Len(t, utopia, 1)
	assert.Equal(t, "The Dispossessed", utopia[0].Name)
	assert.Equal(t, n, e.fake.Requests(), "searches read the cached catalog")

	_, err = e.svc.Books.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, n+1, e.fake.Requests(), "refresh goes to the server")

	require.NoError(t, e.svc.Books.Buy(ctx, 1))
	books, err = e.svc.Books.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, books[0].Quantity, "refetched after buy")
}

func TestBooks_AdminOnly(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	form := validate.NewBook{
		Author: "Octavia Butler", Name: "Kindred", Genre: "SciFi", Price: 11, Quantity: 3, BorrowPrice: 1,
		Description:     "A woman is pulled back in time.",
		DescriptionLong: "Dana is repeatedly pulled from 1976 Los Angeles to an antebellum Maryland plantation.",
	}

	e.login(t, "reader")
	n := e.fake.Requests()
	_, err := e.svc.Books.Add(ctx, form)
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.ErrorIs(t, e.svc.Books.Delete(ctx, 1), errs.ErrForbidden)
	_, err = e.svc.Users.All(ctx)
	require.ErrorIs(t, err, errs.ErrForbidden)
	assert.Equal(t, n, e.fake.Requests())

	e.login(t, "admin")
	_, err = e.svc.Books.List(ctx)
	require.NoError(t, err)
	b, err := e.svc.Books.Add(ctx, form)
	require.NoError(t, err)
	books, err := e.svc.Books.List(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 4)

	_, err = e.svc.Books.Add(ctx, form)
	require.ErrorIs(t, err, errs.ErrConflict)

	require.NoError(t, e.svc.Books.Delete(ctx, b.ID))
	require.ErrorIs(t, e.svc.Books.Delete(ctx, b.ID), errs.ErrNotFound)
	books, err = e.svc.Books.List(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 3)
}

func TestBooks_ExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "reader")
	e.fake.ExpireAccessTokens()

	books, err := e.svc.Books.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 3)
	assert.Equal(t, 1, e.fake.RefreshCalls())
	assert.True(t, e.api.Session().IsLoggedIn())
}

func TestBooks_RevokedRefreshLogsOut(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "reader")
	e.fake.ExpireAccessTokens()
	e.fake.RevokeRefreshTokens()

	_, err := e.svc.Books.List(context.Background())
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	assert.False(t, e.api.Session().IsLoggedIn())
	assert.Equal(t, query.StatusIdle, e.svc.Books.Query().State().Status, "cache cleared by the logout")
}

func TestServices_SessionLossDropsCachedReads(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "reader")
	ctx := context.Background()

	me, err := e.svc.Users.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reader", me.Username)
	_, err = e.svc.Books.List(ctx)
	require.NoError(t, err)
	require.NoError(t, e.svc.Cart.Add(ctx, seededBook(t, e, 1)))
	_, err = e.svc.Favorites.Toggle(ctx, seededBook(t, e, 2))
	require.NoError(t, err)
	n := e.fake.Requests()

	e.api.Session().Logout()

	_, err = e.svc.Users.Me(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	_, err = e.svc.Books.List(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	assert.Equal(t, n, e.fake.Requests(), "no request without a session")
	assert.Zero(t, e.svc.Cart.Store().Len())
	assert.Zero(t, e.svc.Favorites.Store().Len())
}

func TestServices_RevokedRefreshDropsLocalCollections(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "reader")
	ctx := context.Background()
	require.NoError(t, e.svc.Cart.Add(ctx, seededBook(t, e, 1)))

	e.fake.ExpireAccessTokens()
	e.fake.RevokeRefreshTokens()
	_, err := e.svc.Orders.History(ctx)
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	assert.Zero(t, e.svc.Cart.Store().Len())
}

func TestBuy_UpdatesBalanceAndHistory(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "reader")
	ctx := context.Background()

	me, err := e.svc.Users.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, me.Balance)

	require.NoError(t, e.svc.Books.Buy(ctx, 1))
	me, err = e.svc.Users.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90.01, me.Balance)

	orders, err := e.svc.Orders.History(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Dune", orders[0].Name)
	assert.Equal(t, 1, orders[0].OrderedQuantity)
}

func TestUsers_CreateInvalidatesList(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.login(t, "admin")
	ctx := context.Background()

	users, err := e.svc.Users.All(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	_, err = e.svc.Users.Create(ctx, validate.Registration{Name: "Omar", Lastname: "Oduya", Username: "omaro", Email: "omar@bookbazaar.test", Password: "secret1"})
	require.NoError(t, err)
	users, err = e.svc.Users.All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}
