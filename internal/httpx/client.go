// Package httpx provides the shared outbound HTTP client.
package httpx

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent identifies outbound requests.
const DefaultUserAgent = "marketlens/1.0"

// Client is a small wrapper around http.Client with tuned pooling defaults.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// New creates a client with the given overall request timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: DefaultUserAgent,
	}
}

// NewStreaming creates a client without an overall timeout, for long-lived
// streaming responses bounded by the request context instead.
func NewStreaming() *Client {
	c := New(DefaultTimeout)
	c.HTTP.Timeout = 0
	return c
}

// Do sends req, filling in the user agent and default headers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
