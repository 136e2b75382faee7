package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/and161185/bookbazaar/internal/apiclient"
	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/store"
	"github.com/and161185/bookbazaar/internal/validate"
	"go.uber.org/zap"
)

// AuthService defines session lifecycle operations.
type AuthService interface {
	// Login validates the form, authenticates and fills the session store.
	Login(ctx context.Context, form validate.Login) (model.Session, error)
	// Logout clears local state and revokes the refresh cookie server-side.
	Logout(ctx context.Context) error
	// AutoLogin restores a session from a still-valid refresh cookie.
	AutoLogin(ctx context.Context) bool
	// Register creates an account without logging in.
	Register(ctx context.Context, form validate.Registration) (model.User, error)
}

var _ AuthService = (*AuthServiceImpl)(nil)

type AuthServiceImpl struct {
	api   API
	cache *query.Cache
	cart  *store.Cart
	favs  *store.Favorites
	log   *zap.Logger
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(d Deps) *AuthServiceImpl {
	return &AuthServiceImpl{api: d.API, cache: d.Cache, cart: d.Cart, favs: d.Favorites, log: d.Log}
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int    `json:"userId"`
	Role        string `json:"role"`
}

// Login posts the credentials. The refresh cookie lands in the client's jar.
func (s *AuthServiceImpl) Login(ctx context.Context, form validate.Login) (model.Session, error) {
	if err := validate.Struct(form); err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	body, err := apiclient.JSONBody(form)
	if err != nil {
		return model.Session{}, err
	}
	resp, err := s.api.Public(ctx, apiclient.Request{Method: http.MethodPost, Path: "/login", Body: body})
	if err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	var lr loginResponse
	if err := apiclient.DecodeJSON(resp, &lr); err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	if lr.AccessToken == "" {
		return model.Session{}, errors.New("login: response without access token")
	}

	s.resetLocal()
	s.api.Session().Login(lr.AccessToken, lr.UserID, lr.Role)
	s.log.Info("logged in", zap.Int("user_id", lr.UserID), zap.String("role", lr.Role))
	return s.api.Session().Snapshot(), nil
}

// Logout always clears the local session; a failed server call is still reported.
func (s *AuthServiceImpl) Logout(ctx context.Context) error {
	resp, err := s.api.Public(ctx, apiclient.Request{Method: http.MethodPost, Path: "/logout"})
	if err == nil {
		err = apiclient.Expect(resp)
	}
	s.api.Session().Logout()
	s.resetLocal()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// AutoLogin reports whether a session could be restored.
func (s *AuthServiceImpl) AutoLogin(ctx context.Context) bool {
	if s.api.Session().IsLoggedIn() {
		return true
	}
	ok := s.api.TryAutoLogin(ctx)
	if ok {
		s.resetLocal()
	}
	return ok
}

// Register posts the registration form.
func (s *AuthServiceImpl) Register(ctx context.Context, form validate.Registration) (model.User, error) {
	if err := validate.Struct(form); err != nil {
		return model.User{}, fmt.Errorf("register: %w", err)
	}
	body, err := apiclient.JSONBody(form)
	if err != nil {
		return model.User{}, err
	}
	resp, err := s.api.Public(ctx, apiclient.Request{Method: http.MethodPost, Path: "/addUser", Body: body})
	if err != nil {
		return model.User{}, fmt.Errorf("register: %w", err)
	}
	var u model.User
	if err := apiclient.DecodeJSON(resp, &u); err != nil {
		return model.User{}, fmt.Errorf("register: %w", err)
	}
	return u, nil
}

// resetLocal drops everything cached for the previous user.
func (s *AuthServiceImpl) resetLocal() {
	dropUserState(s.cache, s.cart, s.favs)
}
