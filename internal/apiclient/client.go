// Package apiclient sends requests to the BookBazaar API on behalf of the current session.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/and161185/bookbazaar/internal/errs"
	"github.com/and161185/bookbazaar/internal/metrics"
	"github.com/and161185/bookbazaar/internal/refresh"
	"github.com/and161185/bookbazaar/internal/session"
	"go.uber.org/zap"
)

// Request describes one API call. Path is relative to the base URL.
// Body is kept as bytes so the request can be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
}

// Config holds client settings. Zero values get defaults.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker BreakerConfig
	Log     *zap.Logger
	Metrics *metrics.Metrics
	// Transport is the innermost round tripper; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Client attaches the bearer token to every request and recovers once from a
// 401 by refreshing the token. It is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	store     *session.Store
	refresher *refresh.Coordinator
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// New builds a Client sharing one cookie jar between API and refresh calls.
func New(cfg Config, store *session.Store) (*Client, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	var rt http.RoundTripper = newBreakerTransport(cfg.Transport, cfg.Breaker, cfg.Log, cfg.Metrics)
	rt = &instrumentedTransport{next: rt, log: cfg.Log, metrics: cfg.Metrics}
	hc := &http.Client{Jar: jar, Transport: rt, Timeout: cfg.Timeout}

	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL: base,
		http:    hc,
		store:   store,
		refresher: refresh.New(refresh.Config{
			BaseURL: base,
			HTTP:    hc,
			Store:   store,
			Timeout: cfg.Timeout,
			Log:     cfg.Log,
			Metrics: cfg.Metrics,
		}),
		log:     cfg.Log,
		metrics: cfg.Metrics,
	}, nil
}

// Session returns the store the client reads tokens from.
func (c *Client) Session() *session.Store { return c.store }

// TryAutoLogin restores the session from the refresh cookie, if any.
func (c *Client) TryAutoLogin(ctx context.Context) bool {
	return c.refresher.TryAutoLogin(ctx)
}

// Do sends an authenticated request. On 401 it obtains a token from the
// refresh coordinator and replays the request exactly once. If no token can
// be obtained the session is cleared and an error wrapping
// errs.ErrUnauthenticated is returned. Any other response is returned as-is.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	used := c.store.Token()
	resp, err := c.send(ctx, r, used)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	fresh, ok := c.refresher.Token(ctx, used)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.store.Logout()
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, errs.ErrUnauthenticated)
	}

	c.metrics.Retry()
	c.log.Debug("replaying request after refresh", zap.String("method", r.Method), zap.String("path", r.Path))
	return c.send(ctx, r, fresh)
}

// Public sends a request without a bearer token and without refresh handling.
// Cookies are still sent and stored.
func (c *Client) Public(ctx context.Context, r Request) (*http.Response, error) {
	return c.send(ctx, r, "")
}

func (c *Client) send(ctx context.Context, r Request, bearer string) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+r.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", method, r.Path, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, r.Path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
