// Package outbound builds and caches the HTTP clients used for scrape,
// search, translation, and image traffic, direct or through a rotating
// proxy drawn from the proxy service.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/newsgrid/enrichd/internal/netutil"
)

// ErrNoProxy is returned by Fetch when a proxy-routed call is requested with
// an empty proxy address.
var ErrNoProxy = errors.New("outbound: no proxy available")

// Transport pool sizing; one transport is shared per proxy address.
const (
	maxIdleConns        = 256
	maxIdleConnsPerHost = 16
	idleConnTimeout     = 90 * time.Second
)

// FetchOptions controls a single Fetch call.
type FetchOptions struct {
	// RequireStatusOK enforces HTTP 200; otherwise any status is accepted.
	RequireStatusOK bool
	// UserAgent overrides the request User-Agent when non-empty.
	UserAgent string
	// MaxBodyBytes caps the response read when > 0.
	MaxBodyBytes int64
}

// ClientFactory hands out *http.Client instances keyed by proxy address.
// Clients are cached so connection pools survive across articles; the zero
// proxy key is the direct client.
type ClientFactory struct {
	clients *xsync.Map[string, *http.Client]
}

// NewClientFactory creates an empty factory.
func NewClientFactory() *ClientFactory {
	return &ClientFactory{clients: xsync.NewMap[string, *http.Client]()}
}

// Direct returns the shared directly-connected client.
func (f *ClientFactory) Direct() *http.Client {
	return f.clientFor("")
}

// ForProxy returns a client routing through the given "host:port" proxy.
// An empty address yields the direct client.
func (f *ClientFactory) ForProxy(proxy string) (*http.Client, error) {
	if proxy == "" {
		return f.Direct(), nil
	}
	if _, err := ParseProxyURL(proxy); err != nil {
		return nil, err
	}
	return f.clientFor(proxy), nil
}

func (f *ClientFactory) clientFor(proxy string) *http.Client {
	client, _ := f.clients.LoadOrCompute(proxy, func() (*http.Client, bool) {
		transport := &http.Transport{
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
			ForceAttemptHTTP2:   true,
		}
		if proxy != "" {
			proxyURL, err := ParseProxyURL(proxy)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
		return &http.Client{Transport: transport}, false
	})
	return client
}

// Close shuts down idle connections on every cached transport.
func (f *ClientFactory) Close() {
	f.clients.Range(func(_ string, client *http.Client) bool {
		if t, ok := client.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
		return true
	})
}

// Fetch executes an HTTP GET through the given proxy ("" = direct).
// Timeout and cancellation are controlled solely by ctx.
func (f *ClientFactory) Fetch(ctx context.Context, proxy, rawURL string, opts FetchOptions) ([]byte, error) {
	client, err := f.ForProxy(proxy)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("outbound fetch: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if opts.RequireStatusOK && resp.StatusCode != http.StatusOK {
		return nil, &netutil.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	var reader io.Reader = resp.Body
	if opts.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, opts.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("outbound fetch: %w", err)
	}
	return body, nil
}

// ParseProxyURL normalizes a pool entry ("host:port" or a full URL) into a
// proxy URL usable by http.Transport.
func ParseProxyURL(proxy string) (*url.URL, error) {
	s := strings.TrimSpace(proxy)
	if s == "" {
		return nil, ErrNoProxy
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("outbound: invalid proxy %q: %w", proxy, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("outbound: invalid proxy %q: missing host", proxy)
	}
	return u, nil
}
