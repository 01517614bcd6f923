package netutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// downloaderFunc lets tests stand in for the direct downloader.
type downloaderFunc func(ctx context.Context, url string) ([]byte, error)

func (f downloaderFunc) Download(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

func TestRetryDownloader_DirectSuccessSkipsRetries(t *testing.T) {
	proxyCalls := 0
	r := &RetryDownloader{
		Direct: downloaderFunc(func(ctx context.Context, url string) ([]byte, error) {
			return []byte("direct"), nil
		}),
		BaseDelay: time.Millisecond,
		ProxyFetch: func(ctx context.Context, proxy, url string) ([]byte, error) {
			proxyCalls++
			return nil, errors.New("should not be called")
		},
	}

	body, err := r.Download(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "direct" {
		t.Fatalf("body: got %q, want %q", string(body), "direct")
	}
	if proxyCalls != 0 {
		t.Fatalf("proxy calls: got %d, want 0", proxyCalls)
	}
}

func TestRetryDownloader_TransientFailureRotatesProxies(t *testing.T) {
	picked := []string{}
	r := &RetryDownloader{
		Direct: downloaderFunc(func(ctx context.Context, url string) ([]byte, error) {
			return nil, errors.New("connection reset")
		}),
		Attempts:  3,
		BaseDelay: time.Millisecond,
		ProxyPicker: func() (string, bool) {
			p := fmt.Sprintf("10.0.0.%d:8080", len(picked)+1)
			picked = append(picked, p)
			return p, true
		},
		ProxyFetch: func(ctx context.Context, proxy, url string) ([]byte, error) {
			if proxy == "10.0.0.2:8080" {
				return []byte("via-proxy"), nil
			}
			return nil, errors.New("proxy failed")
		},
	}

	body, err := r.Download(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "via-proxy" {
		t.Fatalf("body: got %q, want %q", string(body), "via-proxy")
	}
	if len(picked) != 2 {
		t.Fatalf("proxies picked: got %d, want 2", len(picked))
	}
}

func TestRetryDownloader_StatusErrorNotRetried(t *testing.T) {
	proxyCalls := 0
	wantErr := &HTTPStatusError{StatusCode: 404, URL: "http://example.com"}
	r := &RetryDownloader{
		Direct: downloaderFunc(func(ctx context.Context, url string) ([]byte, error) {
			return nil, wantErr
		}),
		BaseDelay: time.Millisecond,
		ProxyFetch: func(ctx context.Context, proxy, url string) ([]byte, error) {
			proxyCalls++
			return []byte("x"), nil
		},
	}

	_, err := r.Download(context.Background(), "http://example.com")
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError passthrough, got %v", err)
	}
	if proxyCalls != 0 {
		t.Fatalf("proxy calls: got %d, want 0", proxyCalls)
	}
}

func TestRetryDownloader_ExhaustedRetriesReturnDirectError(t *testing.T) {
	directErr := errors.New("dial timeout")
	attempts := 0
	r := &RetryDownloader{
		Direct: downloaderFunc(func(ctx context.Context, url string) ([]byte, error) {
			return nil, directErr
		}),
		Attempts:  2,
		BaseDelay: time.Millisecond,
		ProxyFetch: func(ctx context.Context, proxy, url string) ([]byte, error) {
			attempts++
			return nil, errors.New("proxy also down")
		},
	}

	_, err := r.Download(context.Background(), "http://example.com")
	if !errors.Is(err, directErr) {
		t.Fatalf("expected direct error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("proxy attempts: got %d, want 2", attempts)
	}
}

func TestRetryDownloader_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RetryDownloader{
		Direct: downloaderFunc(func(c context.Context, url string) ([]byte, error) {
			cancel()
			return nil, errors.New("transient")
		}),
		Attempts:  5,
		BaseDelay: 50 * time.Millisecond,
		ProxyFetch: func(c context.Context, proxy, url string) ([]byte, error) {
			t.Fatal("proxy fetch should not run after cancel")
			return nil, nil
		},
	}

	start := time.Now()
	_, err := r.Download(ctx, "http://example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("retries should stop promptly on cancel, took %v", elapsed)
	}
}
