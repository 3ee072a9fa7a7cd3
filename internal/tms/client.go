package tms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultUserAgent mimics a desktop browser; the TMS front end rejects
// unknown agents on some broker deployments.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"

const (
	pathLogin = "/atsweb/login"
	pathOrder = "/atsweb/order"
	pathWatch = "/atsweb/watch"
	pathHome  = "/atsweb/home"

	// Exchange is the market identifier sent with quote and order requests.
	Exchange = "NEPSE"
)

// Client talks to a broker's TMS web API. It is safe for concurrent use; the
// only shared mutable state is the pooled HTTP transport.
type Client struct {
	host       string
	httpClient *http.Client
	userAgent  string

	bootstrapInitial time.Duration
	bootstrapTries   uint
}

type Option func(*Client)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithBootstrapRetry sets the first retry delay and the max attempts for
// Bootstrap.
func WithBootstrapRetry(initial time.Duration, tries uint) Option {
	return func(c *Client) {
		if initial > 0 {
			c.bootstrapInitial = initial
		}
		if tries > 0 {
			c.bootstrapTries = tries
		}
	}
}

// NewClient accepts a bare broker host ("tms.example.com.np") or a full
// base URL. A bare host is served over https.
func NewClient(host string, opts ...Option) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("broker host required")
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("broker url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("broker url must be http(s), got %q", host)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("broker url has no host: %q", host)
	}

	c := &Client{
		host:             host,
		httpClient:       &http.Client{Transport: newTransport()},
		userAgent:        DefaultUserAgent,
		bootstrapInitial: 500 * time.Millisecond,
		bootstrapTries:   5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newTransport sizes the pool for many symbols polling the same host at once
// and keeps connections warm for the whole trading session.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 1000
	t.MaxIdleConnsPerHost = 100
	t.MaxConnsPerHost = 100
	t.IdleConnTimeout = 2 * time.Hour
	t.ForceAttemptHTTP2 = true
	t.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 2 * time.Hour,
	}).DialContext
	return t
}

func (c *Client) Host() string { return c.host }

// Close releases idle pooled connections.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

type response struct {
	status int
	body   []byte
}

// do issues one request. form, when non-nil, is sent url-encoded as the body.
// The returned body has the broker's single-quoted pseudo-JSON rewritten to
// plain JSON.
func (c *Client) do(ctx context.Context, method, path string, params, form url.Values, cookie string) (response, error) {
	u := c.host + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return response{}, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return response{status: resp.StatusCode}, err
	}
	return response{status: resp.StatusCode, body: normalizeQuotes(b)}, nil
}

func normalizeQuotes(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte{'\''}, []byte{'"'})
}

func snippet(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
