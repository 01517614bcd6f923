// Package images finds candidate images for an article and materializes them
// into the object bucket.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/newsgrid/enrichd/internal/model"
	"github.com/newsgrid/enrichd/internal/netutil"
	"github.com/newsgrid/enrichd/internal/outbound"
)

// Candidate image dimensions accepted by the quality filter.
const (
	minDimension = 500
	maxDimension = 4000
	minAspect    = 0.5
	maxAspect    = 3.0
	// DefaultMaxImages is how many unique candidates one article collects.
	DefaultMaxImages = 5
)

// Candidate is one image-search result before quality filtering.
type Candidate struct {
	URL    string
	Width  int
	Height int
}

// Searcher runs one image search in one locale.
type Searcher interface {
	Search(ctx context.Context, query, region string, max int) ([]Candidate, error)
}

// acceptable reports whether a candidate survives the quality filter.
func acceptable(c Candidate) bool {
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return false
	}
	if c.Width < minDimension || c.Height < minDimension {
		return false
	}
	if c.Width > maxDimension || c.Height > maxDimension {
		return false
	}
	aspect := float64(c.Width) / float64(c.Height)
	return aspect >= minAspect && aspect <= maxAspect
}

// Finder iterates locales and queries until it has enough unique candidates.
type Finder struct {
	Searcher  Searcher
	MaxImages int
}

// Find returns up to MaxImages unique image URLs for the article. Per-locale
// and per-query failures are logged and skipped; an empty result is valid.
func (f *Finder) Find(ctx context.Context, res *model.ExtractResult, country string) []string {
	max := f.MaxImages
	if max <= 0 {
		max = DefaultMaxImages
	}

	queries := GenerateQueries(res.Entities)
	if title := strings.TrimSpace(res.Title); title != "" {
		queries = append(queries, title)
	}
	if titleEN := strings.TrimSpace(res.TitleEn); titleEN != "" && !strings.EqualFold(titleEN, res.Title) {
		queries = append(queries, titleEN)
	}
	if len(queries) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var collected []string
	for _, region := range ExpandRegions(country, res.Language) {
		for _, query := range queries {
			if len(collected) >= max {
				return collected
			}
			candidates, err := f.Searcher.Search(ctx, query, region, max)
			if err != nil {
				log.Printf("[images] search %q in %s failed: %v", query, region, err)
				continue
			}
			for _, c := range candidates {
				if !acceptable(c) || seen[c.URL] {
					continue
				}
				seen[c.URL] = true
				collected = append(collected, c.URL)
				if len(collected) >= max {
					return collected
				}
			}
		}
	}
	return collected
}

// DuckDuckGoSearcher implements Searcher against the unofficial DuckDuckGo
// image endpoint: a token request against the HTML front page yields a vqd
// value that authorizes the i.js JSON endpoint.
type DuckDuckGoSearcher struct {
	Factory *outbound.ClientFactory
	// ProxyPick supplies a proxy for the retry when the direct call fails.
	// May be nil.
	ProxyPick func() string
	// BaseURL overrides the DuckDuckGo origin in tests.
	BaseURL string
}

var reVqd = regexp.MustCompile(`vqd=['"]?([\d-]+)`)

func (s *DuckDuckGoSearcher) origin() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return "https://duckduckgo.com"
}

// Search fetches one page of image results for query in region.
func (s *DuckDuckGoSearcher) Search(ctx context.Context, query, region string, max int) ([]Candidate, error) {
	vqd, err := s.token(ctx, query)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("l", region)
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("vqd", vqd)
	params.Set("p", "1")
	body, err := s.fetch(ctx, s.origin()+"/i.js?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("image search %q: %w", query, err)
	}

	var payload struct {
		Results []struct {
			Image  string `json:"image"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("image search %q: decode: %w", query, err)
	}

	candidates := make([]Candidate, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.Image == "" {
			continue
		}
		candidates = append(candidates, Candidate{URL: r.Image, Width: r.Width, Height: r.Height})
		if max > 0 && len(candidates) >= max {
			break
		}
	}
	return candidates, nil
}

func (s *DuckDuckGoSearcher) token(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("iax", "images")
	params.Set("ia", "images")
	body, err := s.fetch(ctx, s.origin()+"/?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("vqd token for %q: %w", query, err)
	}
	m := reVqd.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("vqd token for %q: not found in response", query)
	}
	return string(m[1]), nil
}

// fetch tries the direct client first and retries once through a proxy.
func (s *DuckDuckGoSearcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	opts := outbound.FetchOptions{
		RequireStatusOK: true,
		UserAgent:       netutil.BrowserUserAgent,
		MaxBodyBytes:    2 << 20,
	}
	body, err := s.Factory.Fetch(ctx, "", rawURL, opts)
	if err == nil {
		return body, nil
	}
	if s.ProxyPick != nil {
		if proxy := s.ProxyPick(); proxy != "" {
			return s.Factory.Fetch(ctx, proxy, rawURL, opts)
		}
	}
	return nil, err
}
