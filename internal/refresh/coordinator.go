// Package refresh obtains new access tokens from the cookie-held refresh credential.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/bookbazaar/internal/metrics"
	"github.com/and161185/bookbazaar/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Path is the refresh endpoint relative to the API base URL.
const Path = "/refresh"

const flightKey = "refresh"

// Doer sends HTTP requests. *http.Client satisfies it; it must carry the cookie jar.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Coordinator guarantees at most one refresh request in flight. Concurrent
// callers share the outcome of that request.
type Coordinator struct {
	baseURL string
	http    Doer
	store   *session.Store
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	group singleflight.Group
}

// Config holds the coordinator's dependencies. Log and Metrics are optional.
type Config struct {
	BaseURL string
	HTTP    Doer
	Store   *session.Store
	Timeout time.Duration // bounds the refresh request; 0 means 15s
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Coordinator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTP,
		store:   cfg.Store,
		timeout: cfg.Timeout,
		log:     cfg.Log,
		metrics: cfg.Metrics,
	}
}

// Token returns a token to replace stale, the token a request was rejected with.
// If the store already holds a different token, it is returned without a
// refresh. Otherwise the caller joins (or starts) the single in-flight refresh.
// A failed refresh yields ("", false); the coordinator never retries.
func (c *Coordinator) Token(ctx context.Context, stale string) (string, bool) {
	if cur := c.store.Token(); cur != "" && cur != stale {
		return cur, true
	}
	return c.join(ctx)
}

// TryAutoLogin restores a session from a still-valid refresh cookie.
func (c *Coordinator) TryAutoLogin(ctx context.Context) bool {
	_, ok := c.join(ctx)
	return ok
}

func (c *Coordinator) join(ctx context.Context) (string, bool) {
	ch := c.group.DoChan(flightKey, func() (any, error) {
		// Detached from this caller: others may still be waiting when it gives up.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false
		}
		return res.Val.(string), true
	case <-ctx.Done():
		return "", false
	}
}

// tokenResponse accepts both spellings the backend has used.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	CamelToken  string `json:"accessToken"`
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	tok, err := c.requestToken(ctx)
	c.metrics.Refresh(err == nil)
	if err != nil {
		c.log.Info("token refresh failed", zap.Error(err))
		return "", err
	}
	c.store.SetToken(tok)
	c.log.Debug("token refreshed")
	return tok, nil
}

func (c *Coordinator) requestToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create refresh request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return "", fmt.Errorf("refresh returned status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	tok := body.AccessToken
	if tok == "" {
		tok = body.CamelToken
	}
	if tok == "" {
		return "", errors.New("refresh response without access token")
	}
	return tok, nil
}
