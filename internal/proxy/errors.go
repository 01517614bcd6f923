package proxy

import "errors"

// ErrUnauthorized is returned when the provider rejects our API key (401).
var ErrUnauthorized = errors.New("proxy provider: unauthorized")

// ErrRateLimited is returned when the provider throttles us (429).
var ErrRateLimited = errors.New("proxy provider: rate limited")

// ErrNotConfigured is returned when no provider base URL is set.
var ErrNotConfigured = errors.New("proxy provider: not configured")
