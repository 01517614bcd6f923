package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/newsgrid/enrichd/internal/buildinfo"
)

// ProviderClient talks to the upstream proxy provider: a warm-up POST and an
// authenticated list GET returning {success, data, message}.
type ProviderClient struct {
	BaseURL   string
	APIKey    string
	StartPath string
	ListPath  string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

type listResponse struct {
	Success bool     `json:"success"`
	Data    []string `json:"data"`
	Message string   `json:"message"`
}

func (c *ProviderClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *ProviderClient) do(ctx context.Context, method, path string) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy provider: %w", err)
	}
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("User-Agent", "enrichd/"+buildinfo.Version)

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy provider: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("proxy provider: unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy provider: read body: %w", err)
	}
	return body, nil
}

// Start hits the provider's warm endpoint so the upstream pool spins up.
func (c *ProviderClient) Start(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, c.StartPath)
	return err
}

// List fetches the current proxy list. Entries are host:port strings; blank
// and malformed entries are dropped.
func (c *ProviderClient) List(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, c.ListPath)
	if err != nil {
		return nil, err
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("proxy provider: decode list: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("proxy provider: list rejected: %s", parsed.Message)
	}

	out := make([]string, 0, len(parsed.Data))
	for _, p := range parsed.Data {
		p = strings.TrimSpace(p)
		if p == "" || !strings.Contains(p, ":") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
