package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"

	"github.com/newsgrid/enrichd/internal/netutil"
)

// ErrScrapeFailed is returned when both extraction stages produced nothing
// usable for a URL. The pipeline marks the article failed.
var ErrScrapeFailed = errors.New("extract: all stages failed")

// Word-count floors per stage. The headless fallback sees cookie banners and
// navigation shells, so its bar is higher.
const (
	minPrimaryWords  = 1000
	minFallbackWords = 2000
)

// Renderer is the headless-browser fallback stage.
type Renderer interface {
	// Render returns the page HTML after readiness predicates fire.
	// proxy is a pool entry or "" for a direct session.
	Render(ctx context.Context, rawURL, proxy string) (string, error)
}

// FetchFn issues the stage-1 HTTP GET. proxy "" means direct.
type FetchFn func(ctx context.Context, proxy, rawURL string) ([]byte, error)

// Result carries everything one URL yielded.
type Result struct {
	Title         string
	Author        string
	PublishedDate string
	Content       string
	Language      string
	Hostname      string
	MainImage     string
	WordCount     int
	ScrapedAt     time.Time
}

// Extractor runs the two-stage fallback chain for one URL at a time.
type Extractor struct {
	Fetch     FetchFn
	ProxyPick func() (proxy string, ok bool)
	Renderer  Renderer
	Cleaner   *Cleaner

	// RetryDelays is the backoff schedule for proxy-rotated render retries.
	// Defaults to 1s, 2s, 4s.
	RetryDelays []time.Duration

	// CleanContent toggles the regex post-processing passes.
	CleanContent bool
}

func (e *Extractor) retryDelays() []time.Duration {
	if len(e.RetryDelays) > 0 {
		return e.RetryDelays
	}
	return []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
}

// Extract resolves the URL through the fallback chain.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	primary := e.primaryStage(ctx, rawURL)
	if primary != nil && primary.WordCount > minPrimaryWords {
		return e.finalize(primary), nil
	}

	fallback := e.fallbackStage(ctx, rawURL)
	if fallback != nil && fallback.WordCount >= minFallbackWords {
		mergeStages(fallback, primary)
		return e.finalize(fallback), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrScrapeFailed, rawURL)
}

// primaryStage fetches the raw HTML through a random proxy and runs the
// article extractor over it. Returns nil when nothing came back.
func (e *Extractor) primaryStage(ctx context.Context, rawURL string) *Result {
	proxy := ""
	if e.ProxyPick != nil {
		proxy, _ = e.ProxyPick()
	}

	body, err := e.Fetch(ctx, proxy, rawURL)
	if err != nil {
		log.Printf("[extract] primary fetch %s failed: %v", rawURL, err)
		return nil
	}

	res, err := runArticleExtractor(body, rawURL)
	if err != nil {
		log.Printf("[extract] primary parse %s failed: %v", rawURL, err)
		return nil
	}
	return res
}

// fallbackStage renders the page headlessly: one direct quick attempt, then
// proxy-rotated retries with exponential backoff.
func (e *Extractor) fallbackStage(ctx context.Context, rawURL string) *Result {
	if e.Renderer == nil {
		return nil
	}

	if res := e.renderOnce(ctx, rawURL, ""); res != nil && res.WordCount >= minFallbackWords {
		return res
	}

	var best *Result
	for _, delay := range e.retryDelays() {
		select {
		case <-ctx.Done():
			return best
		case <-time.After(delay):
		}

		proxy := ""
		if e.ProxyPick != nil {
			proxy, _ = e.ProxyPick()
		}
		res := e.renderOnce(ctx, rawURL, proxy)
		if res == nil {
			continue
		}
		if best == nil || res.WordCount > best.WordCount {
			best = res
		}
		if res.WordCount >= minFallbackWords {
			return res
		}
	}
	return best
}

func (e *Extractor) renderOnce(ctx context.Context, rawURL, proxy string) *Result {
	html, err := e.Renderer.Render(ctx, rawURL, proxy)
	if err != nil {
		log.Printf("[render] %s (proxy=%q) failed: %v", rawURL, proxy, err)
		return nil
	}
	res, err := runArticleExtractor([]byte(html), rawURL)
	if err != nil {
		log.Printf("[extract] fallback parse %s failed: %v", rawURL, err)
		return nil
	}
	return res
}

// finalize stamps the scrape time, derives the hostname, and cleans content.
func (e *Extractor) finalize(res *Result) *Result {
	res.ScrapedAt = time.Now().UTC()
	if e.CleanContent && e.Cleaner != nil {
		res.Content = e.Cleaner.Clean(res.Content)
		res.WordCount = WordCount(res.Content)
	} else if MatchesErrorPattern(res.Content) {
		res.Content = ErrorPatternSentinel
	}
	return res
}

// mergeStages fills empty fallback fields from the primary stage result.
func mergeStages(fallback, primary *Result) {
	if primary == nil {
		return
	}
	if fallback.Author == "" {
		fallback.Author = primary.Author
	}
	if fallback.PublishedDate == "" {
		fallback.PublishedDate = primary.PublishedDate
	}
	if fallback.MainImage == "" {
		fallback.MainImage = primary.MainImage
	}
	if fallback.Content == "" {
		fallback.Content = primary.Content
		fallback.WordCount = primary.WordCount
	}
	if fallback.Title == "" {
		fallback.Title = primary.Title
	}
	if fallback.Language == "" {
		fallback.Language = primary.Language
	}
}

// runArticleExtractor feeds HTML through go-trafilatura with recall favored,
// mirroring how the harvester treats news pages.
func runArticleExtractor(html []byte, rawURL string) (*Result, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	extracted, err := trafilatura.Extract(bytes.NewReader(html), trafilatura.Options{
		OriginalURL:   pageURL,
		Focus:         trafilatura.FavorRecall,
		IncludeImages: true,
	})
	if err != nil {
		return nil, fmt.Errorf("trafilatura: %w", err)
	}

	content := strings.TrimSpace(extracted.ContentText)
	res := &Result{
		Title:     strings.TrimSpace(extracted.Metadata.Title),
		Author:    strings.TrimSpace(extracted.Metadata.Author),
		Content:   content,
		Language:  strings.TrimSpace(extracted.Metadata.Language),
		Hostname:  netutil.Hostname(rawURL),
		MainImage: strings.TrimSpace(extracted.Metadata.Image),
		WordCount: WordCount(content),
	}
	if !extracted.Metadata.Date.IsZero() {
		res.PublishedDate = extracted.Metadata.Date.Format("2006-01-02")
	}
	return res, nil
}
