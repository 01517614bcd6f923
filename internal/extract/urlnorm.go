package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newsgrid/enrichd/internal/netutil"
)

// Hosts that wrap the real article URL behind a redirect.
var redirectorHosts = map[string]bool{
	"news.google.com": true,
	"google.com":      true,
	"www.google.com":  true,
}

const resolveTimeout = 10 * time.Second

// NormalizeURL gates schemes and unwraps known redirector URLs so the scraper
// hits the origin site directly. client may be nil (http.DefaultClient).
func NormalizeURL(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("normalize url: unsupported scheme %q", u.Scheme)
	}

	if !redirectorHosts[strings.ToLower(u.Host)] {
		return u.String(), nil
	}
	return resolveRedirector(ctx, client, u.String())
}

// resolveRedirector follows the redirect chain with a browser User-Agent and
// unwraps Google consent interstitials (the real URL rides in ?continue=).
func resolveRedirector(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	final := rawURL
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("resolve redirector: %w", err)
		}
		req.Header.Set("User-Agent", netutil.BrowserUserAgent)

		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.Request != nil && resp.Request.URL != nil {
			final = resp.Request.URL.String()
		}
		if resp.StatusCode < 400 {
			break
		}
	}

	return unwrapConsent(final), nil
}

// unwrapConsent extracts the continue target from consent.google.com pages.
func unwrapConsent(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if !strings.HasSuffix(strings.ToLower(u.Host), "consent.google.com") {
		return rawURL
	}
	target := u.Query().Get("continue")
	if target == "" {
		return rawURL
	}
	if t, err := url.Parse(target); err == nil && (t.Scheme == "http" || t.Scheme == "https") {
		return t.String()
	}
	return rawURL
}
