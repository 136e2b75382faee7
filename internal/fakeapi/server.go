// Package fakeapi is an in-memory BookBazaar backend for tests and local demos.
// It serves the same REST surface as the real API under /api, issues HS256
// access tokens and keeps the refresh credential in an HttpOnly cookie.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/bookbazaar/internal/crypto"
	"github.com/and161185/bookbazaar/internal/limiter"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Prefix is where the API is mounted.
const Prefix = "/api"

// RefreshCookie is the name of the refresh credential cookie.
const RefreshCookie = "refresh_token"

type account struct {
	user     model.User
	password crypto.Hash
}

type cartEntry struct {
	qty     int
	expires time.Time
}

type orderEntry struct {
	bookID int
	qty    int
	at     time.Time
}

// Server holds all backend state behind one mutex.
type Server struct {
	mu sync.Mutex

	secret         []byte
	accessTTL      time.Duration
	reservationTTL time.Duration
	now            func() time.Time
	log            *zap.Logger
	hasher         crypto.Params
	logins         limiter.Limiter

	users    map[int]*account
	books    map[int]*model.Book
	cart     map[int]map[int]*cartEntry
	favs     map[int][]int
	borrowed map[int]map[int]time.Time
	orders   map[int][]orderEntry
	refresh  map[string]int
	nextUser int
	nextBook int
	epoch    int

	faults map[string][]int

	requests     atomic.Int32
	refreshCalls atomic.Int32
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source for token expiry and reservations.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option { return func(s *Server) { s.accessTTL = d } }

// WithReservationTTL sets how long a cart entry stays reserved.
func WithReservationTTL(d time.Duration) Option { return func(s *Server) { s.reservationTTL = d } }

// WithLoginLimiter replaces the default lockout of 5 failures per 15 minutes.
func WithLoginLimiter(l limiter.Limiter) Option { return func(s *Server) { s.logins = l } }

// WithPasswordParams sets the Argon2id cost used for stored passwords.
func WithPasswordParams(p crypto.Params) Option { return func(s *Server) { s.hasher = p } }

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option { return func(s *Server) { s.log = log } }

// New returns an empty backend.
func New(opts ...Option) *Server {
	s := &Server{
		secret:         []byte("bookbazaar-test-secret"),
		accessTTL:      10 * time.Minute,
		reservationTTL: 5 * time.Minute,
		now:            time.Now,
		log:            zap.NewNop(),
		hasher:         crypto.Light,
		users:          make(map[int]*account),
		books:          make(map[int]*model.Book),
		cart:           make(map[int]map[int]*cartEntry),
		favs:           make(map[int][]int),
		borrowed:       make(map[int]map[int]time.Time),
		orders:         make(map[int][]orderEntry),
		refresh:        make(map[string]int),
		faults:         make(map[string][]int),
		nextUser:       1,
		nextBook:       1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logins == nil {
		s.logins = limiter.NewMemory(15*time.Minute, 5, 15*time.Minute, s.now)
	}
	return s
}

// Handler returns the router with the API mounted at Prefix.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Route(Prefix, func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Post("/addUser", s.handleAddUser)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/books", s.handleBooks)
			r.Get("/books/borrowedBooks", s.handleBorrowed)
			r.Post("/books/{id}/borrowBook", s.handleBorrow)
			r.Put("/books/{id}/giveBookBack", s.handleGiveBack)
			r.Post("/books/{id}/buyBook", s.handleBuy)
			r.Post("/books/buyBooks", s.handleBuyBatch)
			r.Get("/books/ordered", s.handleOrdered)

			r.Get("/books/cart", s.handleCart)
			r.Post("/books/cart/{id}", s.handleCartAdd)
			r.Delete("/books/cart/{id}", s.handleCartRemove)

			r.Get("/books/Favorites", s.handleFavorites)
			r.Post("/books/addToFavorites/{id}", s.handleFavoriteAdd)
			r.Delete("/books/deleteFavorite/{id}", s.handleFavoriteDelete)

			r.Get("/user/me", s.handleMe)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/books", s.handleBookAdd)
				r.Delete("/books/{id}", s.handleBookDelete)
				r.Get("/users", s.handleUsers)
			})
		})
	})
	return r
}

// ---- seeding and test hooks ----

// AddUser creates an account and returns its id. Empty role means "user".
func (s *Server) AddUser(u model.User, password string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(u, password)
}

func (s *Server) addUserLocked(u model.User, password string) int {
	u.ID = s.nextUser
	s.nextUser++
	if u.Role == "" {
		u.Role = "user"
	}
	if u.Created.IsZero() {
		u.Created = model.Timestamp{Time: s.now().UTC()}
	}
	h, err := s.hasher.HashPassword(password)
	if err != nil {
		// the account exists but nobody can log in
		s.log.Error("hash password", zap.String("username", u.Username), zap.Error(err))
	}
	s.users[u.ID] = &account{user: u, password: h}
	return u.ID
}

// AddBook creates a catalog entry and returns its id.
func (s *Server) AddBook(b model.Book) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBookLocked(b)
}

func (s *Server) addBookLocked(b model.Book) int {
	b.ID = s.nextBook
	s.nextBook++
	s.books[b.ID] = &b
	return b.ID
}

// Book returns the stored catalog entry.
func (s *Server) Book(id int) (model.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return model.Book{}, false
	}
	return *b, true
}

// User returns the stored account.
func (s *Server) User(id int) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[id]
	if !ok {
		return model.User{}, false
	}
	return a.user, true
}

// CartQuantity returns the server-side quantity of bookID in the user's cart.
func (s *Server) CartQuantity(userID, bookID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cart[userID][bookID]; ok {
		return e.qty
	}
	return 0
}

// FailNext makes the next len(statuses) requests to "METHOD /path" (path
// relative to Prefix) answer with the given statuses.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = append(s.faults[route], statuses...)
}

// ExpireAccessTokens makes every issued access token fail with 401.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

// RevokeRefreshTokens drops every refresh credential.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// Requests is the number of requests served so far.
func (s *Server) Requests() int { return int(s.requests.Load()) }

// RefreshCalls is the number of /refresh requests served so far.
func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// Seed fills the backend with an admin, a regular user and a few books.
// Passwords equal the usernames.
func (s *Server) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(model.User{Name: "Ada", Lastname: "Admin", Username: "admin", Email: "admin@bookbazaar.test", Balance: 500, Role: model.RoleAdmin}, "admin")
	s.addUserLocked(model.User{Name: "Rita", Lastname: "Reader", Username: "reader", Email: "reader@bookbazaar.test", Balance: 100}, "reader")
	for _, b := range []model.Book{
		{Author: "Frank Herbert", Name: "Dune", Price: 9.99, Genre: "SciFi", Quantity: 5, BorrowPrice: 1.5,
			Description: "Spice, sand and politics.", DescriptionLong: "Paul Atreides follows his family to the desert planet Arrakis."},
		{Author: "Jane Austen", Name: "Emma", Price: 4.5, Genre: "Classic", Quantity: 2, BorrowPrice: 0.5,
			Description: "A matchmaker in Highbury.", DescriptionLong: "Emma Woodhouse meddles in the love lives of her friends with mixed results."},
		{Author: "Ursula K. Le Guin", Name: "The Dispossessed", Price: 12, Genre: "SciFi", Quantity: 1, BorrowPrice: 2,
			Description: "An ambiguous utopia.", DescriptionLong: "Shevek, a physicist, travels from the anarchist moon Anarres to the planet Urras."},
	} {
		s.addBookLocked(b)
	}
}

// ---- middleware ----

// instrument counts requests, applies injected faults and logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		start := s.now()
		route := r.Method + " " + strings.TrimPrefix(r.URL.Path, Prefix)

		s.mu.Lock()
		status := 0
		if q := s.faults[route]; len(q) > 0 {
			status, s.faults[route] = q[0], q[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("fakeapi",
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", s.now().Sub(start)),
		)
	})
}

// ---- helpers ----

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

type message struct {
	Message string `json:"message"`
}
