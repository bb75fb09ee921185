// Package rest is a net/http Connection to an HBase-style REST gateway.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"

	"github.com/nlimpid/hbrest/config"
	"github.com/nlimpid/hbrest/logger"
	"github.com/nlimpid/hbrest/scanner"
)

const (
	// RequestIDHeader carries a per-request id for correlating gateway logs.
	RequestIDHeader = "X-Request-ID"

	defaultMaxBody = 64 << 20
)

// ErrResponseTooLarge is returned when a reply body exceeds the client's
// size limit.
var ErrResponseTooLarge = errors.New("response too large")

// Client handles communication with the REST gateway. It implements
// scanner.Connection and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *Metrics
	log        *slog.Logger
	timeout    time.Duration
	maxBody    int64
}

var _ scanner.Connection = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. It is applied after all other
// options to a copy of the http.Client in use, so it also covers a client
// passed with WithHTTPClient without modifying it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxBodySize limits reply bodies to n bytes. Larger replies fail with
// ErrResponseTooLarge.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithRateLimit throttles requests to rps per second with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records every request in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxBody: defaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.log == nil {
		c.log = logger.Get()
	}
	return c, nil
}

// FromConfig creates a client from the endpoint, timeout and rate settings
// of cfg. opts are applied after them.
func FromConfig(cfg config.Config, opts ...Option) (*Client, error) {
	base := []Option{WithRateLimit(cfg.RateLimit, cfg.Burst)}
	if cfg.Timeout > 0 {
		base = append(base, WithTimeout(cfg.Timeout))
	}
	return New(cfg.Endpoint, append(base, opts...)...)
}

// BaseURL returns the gateway address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Put sends body as JSON to key.
func (c *Client) Put(ctx context.Context, key string, body any) (*scanner.Response, error) {
	return c.do(ctx, http.MethodPut, key, body)
}

// Get reads key.
func (c *Client) Get(ctx context.Context, key string) (*scanner.Response, error) {
	return c.do(ctx, http.MethodGet, key, nil)
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) (*scanner.Response, error) {
	return c.do(ctx, http.MethodDelete, key, nil)
}

func (c *Client) do(ctx context.Context, method, key string, body any) (*scanner.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s %s: rate limit", method, key)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s: encode body", method, key)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+key, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, key)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(method, "error", time.Since(start))
		c.log.Debug("gateway request failed", "method", method, "key", key, "request_id", reqID, "error", err)
		return nil, errors.Wrapf(err, "%s %s", method, key)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	elapsed := time.Since(start)
	c.metrics.observe(method, strconv.Itoa(resp.StatusCode), elapsed)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: read body", method, key)
	}
	if int64(len(data)) > c.maxBody {
		return nil, errors.Wrapf(ErrResponseTooLarge, "%s %s: body over %d bytes", method, key, c.maxBody)
	}
	c.log.Debug("gateway request",
		"method", method,
		"key", key,
		"status", resp.StatusCode,
		"bytes", len(data),
		"elapsed", elapsed,
		"request_id", reqID,
	)

	out := &scanner.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}
	if resp.StatusCode >= 400 {
		return out, &StatusError{
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(data)),
			Method:  method,
			Key:     key,
		}
	}
	return out, nil
}
