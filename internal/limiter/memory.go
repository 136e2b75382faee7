package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter: maxFails failures within window block the
// (username, ip) pair for blockFor. It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	rows     map[string]*attempts
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs a Memory limiter. A nil clock means time.Now.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{rows: make(map[string]*attempts), window: window, maxFails: maxFails, blockFor: blockFor, now: now}
}

func key(username string, ipHash []byte) string { return username + "\x00" + string(ipHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); r.blockedUntil.After(now) {
		return false, r.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, key(username, ipHash))
	return nil
}

// Failure records a failed attempt. Counting restarts when the previous
// failure is older than the window.
func (l *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := key(username, ipHash)
	r, ok := l.rows[k]
	if !ok || now.Sub(r.updatedAt) > l.window {
		r = &attempts{}
		l.rows[k] = r
	}
	r.fails++
	r.updatedAt = now
	if r.fails >= l.maxFails {
		r.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
