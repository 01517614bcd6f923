package netutil

import (
	"context"
	"errors"
	"time"
)

// RetryDownloader decorates a Downloader with proxy-rotated retries and
// exponential backoff for transient transport failures.
type RetryDownloader struct {
	Direct Downloader

	// Attempts is the proxy retry budget after the direct attempt fails.
	// If <= 0, defaults to 3.
	Attempts int
	// BaseDelay is the first backoff; each retry doubles it. If <= 0, 1s.
	BaseDelay time.Duration
	// AttemptTimeout caps each proxy retry attempt duration. If <= 0, 30s.
	AttemptTimeout time.Duration

	// ProxyPicker returns a proxy host:port to route the retry through.
	// Returning ok=false skips proxying for that attempt (plain retry).
	ProxyPicker func() (proxy string, ok bool)
	// ProxyFetch executes the fetch through the given proxy.
	ProxyFetch func(ctx context.Context, proxy, url string) ([]byte, error)
}

// Download attempts direct download first, then falls back to proxy retries.
// The error from the direct attempt is returned when all retries fail.
func (r *RetryDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := r.Direct.Download(ctx, url)
	if err == nil {
		return body, nil
	}

	if !shouldRetry(err) {
		return nil, err
	}
	if r.ProxyFetch == nil {
		return nil, err
	}

	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := r.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	attemptTimeout := r.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}

	for i := 0; i < attempts; i++ {
		// Respect caller cancellation: don't extend lifecycle beyond caller ctx.
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
		delay *= 2

		var proxy string
		if r.ProxyPicker != nil {
			proxy, _ = r.ProxyPicker()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		body, fetchErr := r.ProxyFetch(attemptCtx, proxy, url)
		cancel()
		if fetchErr == nil {
			return body, nil
		}
	}

	return nil, err
}

// shouldRetry reports whether the failure is transient enough to be worth a
// proxy-rotated retry. HTTP status errors and request-setup errors are not.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return false
	}

	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}
