package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/httpx"
)

const maxBodyBytes = 8 << 20

// Recorder receives the outcome of every upstream request.
type Recorder interface {
	RecordProvider(provider, outcome string, d time.Duration)
}

// Client is the HTTP plumbing shared by provider adapters. It builds
// authenticated requests, enforces the client-side rate limit and maps
// failures onto the provider error taxonomy. It never retries.
type Client struct {
	name       string
	baseURL    string
	httpClient HTTPClient
	header     http.Header
	query      url.Values
	limiter    *rate.Limiter
	logger     *zap.Logger
	recorder   Recorder
}

// Option is a configuration option for a provider client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithLimiter enforces a client-side request budget. When the budget is
// exhausted the request fails fast with ErrRateLimited.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRequestsPerMinute is WithLimiter for a per-minute budget. Zero disables it.
func WithRequestsPerMinute(n int) Option {
	if n <= 0 {
		return func(*Client) {}
	}
	return WithLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n))
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder reports request outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates the shared client for provider name.
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    baseURL,
		httpClient: httpx.New(httpx.DefaultTimeout),
		header:     http.Header{},
		query:      url.Values{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetQuery adds a query parameter sent with every request, e.g. an API key.
func (c *Client) SetQuery(key, value string) {
	if value != "" {
		c.query.Set(key, value)
	}
}

// SetHeader adds a header sent with every request.
func (c *Client) SetHeader(key, value string) {
	if value != "" {
		c.header.Set(key, value)
	}
}

// Logger returns the client logger.
func (c *Client) Logger() *zap.Logger { return c.logger }

// Open issues a GET and returns the response after status classification.
// The caller owns the body.
func (c *Client) Open(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.record("rate_limited_local", 0)
		return nil, core.NewProviderError(c.name, core.ErrRateLimited, 0, errors.New("client-side request budget exhausted"))
	}

	q := url.Values{}
	for k, v := range c.query {
		q[k] = v
	}
	for k, v := range params {
		q[k] = v
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, core.NewProviderError(c.name, core.ErrMalformedResponse, 0, fmt.Errorf("building request: %w", err))
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(strings.ToLower(core.ErrNetwork.Code), time.Since(start))
		return nil, core.NewProviderError(c.name, core.ErrNetwork, 0, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		perr := ClassifyStatus(c.name, resp, body)
		c.record(strings.ToLower(perr.Kind.Code), time.Since(start))
		c.logger.Warn("provider request failed",
			zap.String("provider", c.name),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", perr.Kind.Code))
		return nil, perr
	}

	c.record("ok", time.Since(start))
	return resp, nil
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.Open(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return core.NewProviderError(c.name, core.ErrNetwork, resp.StatusCode, fmt.Errorf("reading body: %w", err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.NewProviderError(c.name, core.ErrMalformedResponse, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// Malformed builds a MalformedResponse error for this provider.
func (c *Client) Malformed(format string, args ...any) error {
	return core.NewProviderError(c.name, core.ErrMalformedResponse, 0, fmt.Errorf(format, args...))
}

// NotFound builds a NotFound error for this provider.
func (c *Client) NotFound(format string, args ...any) error {
	return core.NewProviderError(c.name, core.ErrNotFound, 0, fmt.Errorf(format, args...))
}

// RateLimited builds a RateLimited error reported in-band by the provider.
func (c *Client) RateLimited(msg string) error {
	return core.NewProviderError(c.name, core.ErrRateLimited, 0, errors.New(msg))
}

// Auth builds an Auth error reported in-band by the provider.
func (c *Client) Auth(msg string) error {
	return core.NewProviderError(c.name, core.ErrAuth, 0, errors.New(msg))
}

func (c *Client) record(outcome string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordProvider(c.name, outcome, d)
	}
}

// ClassifyStatus maps an HTTP error status onto the provider taxonomy.
func ClassifyStatus(provider string, resp *http.Response, body []byte) *core.ProviderError {
	var kind *core.Error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = core.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = core.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = core.ErrAuth
	case resp.StatusCode >= http.StatusInternalServerError:
		kind = core.ErrNetwork
	default:
		kind = core.ErrMalformedResponse
	}

	var cause error
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		cause = errors.New(snippet)
	}

	perr := core.NewProviderError(provider, kind, resp.StatusCode, cause)
	if kind == core.ErrRateLimited {
		perr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		if perr.RetryAfter == 0 {
			perr.RetryAfter = parseRateLimitReset(resp.Header.Get("X-Rate-Limit-Reset"))
		}
	}
	return perr
}

// parseRateLimitReset reads an epoch-seconds reset header.
func parseRateLimitReset(v string) time.Duration {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	if d := time.Until(time.Unix(secs, 0)); d > 0 {
		return d
	}
	return 0
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ParseFloat reads a provider numeric string; empty, "None" and "-" are 0.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || s == "None" || s == "-" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseInt reads a provider integer string the same way as ParseFloat.
func ParseInt(s string) int64 {
	return int64(ParseFloat(s))
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
