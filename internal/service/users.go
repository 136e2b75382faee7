package service

import (
	"context"
	"fmt"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/query"
	"github.com/and161185/bookbazaar/internal/validate"
)

// UserService defines account reads and admin user management.
type UserService interface {
	// Me returns the logged-in account, including its balance.
	Me(ctx context.Context) (model.User, error)
	// All lists every account. Admin only.
	All(ctx context.Context) ([]model.User, error)
	// Create registers an account on behalf of an admin.
	Create(ctx context.Context, form validate.Registration) (model.User, error)
}

var _ UserService = (*UserServiceImpl)(nil)

type UserServiceImpl struct {
	api   API
	cache *query.Cache
	me    *query.Query[model.User]
	all   *query.Query[[]model.User]
}

// NewUserService constructs UserService with required dependencies.
func NewUserService(d Deps) *UserServiceImpl {
	s := &UserServiceImpl{api: d.API, cache: d.Cache}
	s.me = query.New(d.Cache, query.Me, func(ctx context.Context) (model.User, error) {
		if err := requireSession(s.api, "me"); err != nil {
			return model.User{}, err
		}
		return getJSON[model.User](ctx, s.api, "/user/me")
	})
	s.all = query.New(d.Cache, query.Users, func(ctx context.Context) ([]model.User, error) {
		if err := requireAdmin(s.api, "list users"); err != nil {
			return nil, err
		}
		return getJSON[[]model.User](ctx, s.api, "/users")
	})
	return s
}

func (s *UserServiceImpl) Me(ctx context.Context) (model.User, error) {
	return s.me.Load(ctx)
}

func (s *UserServiceImpl) All(ctx context.Context) ([]model.User, error) {
	return s.all.Load(ctx)
}

func (s *UserServiceImpl) Create(ctx context.Context, form validate.Registration) (model.User, error) {
	if err := validate.Struct(form); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	u, err := postJSON[model.User](ctx, s.api, "/addUser", form)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	s.cache.Invalidate(query.Users)
	return u, nil
}

// OrderService defines purchase history reads.
type OrderService interface {
	// History lists what the caller bought.
	History(ctx context.Context) ([]model.OrderedBook, error)
}

var _ OrderService = (*OrderServiceImpl)(nil)

type OrderServiceImpl struct {
	list *query.Query[[]model.OrderedBook]
}

// NewOrderService constructs OrderService with required dependencies.
func NewOrderService(d Deps) *OrderServiceImpl {
	return &OrderServiceImpl{
		list: query.New(d.Cache, query.OrderedBooks, func(ctx context.Context) ([]model.OrderedBook, error) {
			if err := requireSession(d.API, "order history"); err != nil {
				return nil, err
			}
			return getJSON[[]model.OrderedBook](ctx, d.API, "/books/ordered")
		}),
	}
}

func (s *OrderServiceImpl) History(ctx context.Context) ([]model.OrderedBook, error) {
	return s.list.Load(ctx)
}
