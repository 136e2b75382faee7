// Package session holds the client's authentication state.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/and161185/bookbazaar/internal/token"
	"go.uber.org/zap"
)

// Timer is the subset of *time.Timer the store needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via WithAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to compute expiry delays.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithAfterFunc overrides the timer factory.
func WithAfterFunc(after AfterFunc) Option { return func(s *Store) { s.after = after } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(s *Store) { s.log = log } }

// Store is the single source of truth for the auth status. It is safe for concurrent use.
//
// Every write bumps a generation counter; an expiry timer only clears the
// session if its generation is still current, so a stale timer can never
// log out a newer session.
type Store struct {
	mu    sync.RWMutex
	cur   model.Session
	gen   uint64
	timer Timer
	subs  []func(model.Session)

	now   func() time.Time
	after AfterFunc
	log   *zap.Logger
}

// NewStore returns an empty (logged out) store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now: time.Now,
		after: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Login marks the session logged in with explicit values and arms the expiry
// timer from the token's exp claim, if any.
func (s *Store) Login(accessToken string, userID int, role string) {
	if accessToken == "" {
		s.Logout()
		return
	}
	claims, _ := token.ParseClaims(accessToken)

	s.mu.Lock()
	uid := userID
	s.cur = model.Session{IsLoggedIn: true, AccessToken: accessToken, UserID: &uid, Role: role}
	s.rearmLocked(claims.ExpiresAt)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("session login", zap.Int("user_id", userID), zap.String("role", role))
	s.notify(snap)
}

// SetToken replaces the access token. userId and role claims overwrite the
// current values when present; otherwise the current values are kept.
func (s *Store) SetToken(accessToken string) {
	if accessToken == "" {
		s.Logout()
		return
	}
	claims, ok := token.ParseClaims(accessToken)

	s.mu.Lock()
	s.cur.AccessToken = accessToken
	s.cur.IsLoggedIn = true
	if claims.UserID != nil {
		uid := *claims.UserID
		s.cur.UserID = &uid
	}
	if claims.Role != nil {
		s.cur.Role = *claims.Role
	}
	s.rearmLocked(claims.ExpiresAt)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("session token replaced", zap.Bool("claims", ok))
	s.notify(snap)
}

// Logout clears all fields. It does not touch the network.
func (s *Store) Logout() {
	s.mu.Lock()
	was := s.cur.IsLoggedIn
	s.cur = model.Session{}
	s.rearmLocked(nil)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if was {
		s.log.Debug("session cleared")
	}
	s.notify(snap)
}

// IsAdmin reports whether the current role is exactly "admin".
func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Role == model.RoleAdmin
}

// IsLoggedIn reports whether an access token is held.
func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.IsLoggedIn
}

// Token returns the current access token or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AccessToken
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a snapshot after every change.
// Listeners run synchronously on the writer's goroutine, outside the lock.
func (s *Store) Subscribe(fn func(model.Session)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() model.Session {
	snap := s.cur
	if s.cur.UserID != nil {
		uid := *s.cur.UserID
		snap.UserID = &uid
	}
	return snap
}

// rearmLocked invalidates any pending timer and, when exp is set, arms a new one.
func (s *Store) rearmLocked(exp *time.Time) {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if exp == nil {
		return
	}
	gen := s.gen
	s.timer = s.after(exp.Sub(s.now()), func() { s.expire(gen) })
}

func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.cur = model.Session{}
	s.gen++
	s.timer = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("access token expired, session cleared")
	s.notify(snap)
}

func (s *Store) notify(snap model.Session) {
	s.mu.RLock()
	subs := slices.Clone(s.subs)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
}
