// Package pipeline runs the per-article enrichment state machine and the
// batched executor that schedules it.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/newsgrid/enrichd/internal/extract"
	"github.com/newsgrid/enrichd/internal/model"
)

// Pipeline states, recorded in order into ProcessingResult.ProcessingSteps.
const (
	StateNew              = "NEW"
	StateScraped          = "SCRAPED"
	StateLangSet          = "LANG_SET"
	StateTitleTranslated  = "TITLE_TRANSLATED"
	StateEntitiesTagged   = "ENTITIES_TAGGED"
	StateGeotagged        = "GEOTAGGED"
	StateImagesFound      = "IMAGES_FOUND"
	StateImagesDownloaded = "IMAGES_DOWNLOADED"
	StateCompleted        = "COMPLETED"
	StateFailed           = "FAILED"
)

// Language detection samples this much of the content head.
const langSampleChars = 500

// Stage contracts, one per enrichment service. Scrape and language are
// stdlib-shaped so tests can fake them without touching the network.
type (
	// Scraper is the two-stage content extractor.
	Scraper interface {
		Extract(ctx context.Context, rawURL string) (*extract.Result, error)
	}
	// LanguageDetector returns an ISO-639-1 code or "".
	LanguageDetector interface {
		Detect(text string) string
	}
	// Translator returns the translated text and whether any provider succeeded.
	Translator interface {
		Translate(ctx context.Context, text, source, target string, proxies []string) (string, bool)
	}
	// EntityTagger produces the label buckets for one text.
	EntityTagger interface {
		Tag(ctx context.Context, text string) model.EntityBundle
	}
	// GeoTagger ranks sovereign countries for one article.
	GeoTagger interface {
		Tag(title, content string, locs []model.Entity) []model.GeoEntity
	}
	// ImageFinder returns candidate image URLs.
	ImageFinder interface {
		Find(ctx context.Context, res *model.ExtractResult, country string) []string
	}
	// ImageDownloader materializes candidates and returns served URLs.
	ImageDownloader interface {
		Download(ctx context.Context, date, flashpointID, articleID string, candidates []string) []string
	}
	// ProxySnapshot exposes the current proxy cache for translation calls.
	ProxySnapshot interface {
		Snapshot() []string
	}
)

// Toggles enable or disable the optional enrichment stages.
type Toggles struct {
	Geotagging    bool
	ImageSearch   bool
	ImageDownload bool
}

// ArticlePipeline wires the stage services for one deployment. Safe for
// concurrent Process calls; all mutable state lives in the per-call result.
type ArticlePipeline struct {
	Scraper    Scraper
	Detector   LanguageDetector
	Translator Translator
	Tagger     EntityTagger
	Geo        GeoTagger
	Finder     ImageFinder
	Downloader ImageDownloader
	Proxies    ProxySnapshot
	Toggles    Toggles
}

// Process runs one article through the state machine. Scrape failures are
// fatal for the article; every later stage fails soft and the article still
// completes with whatever was enriched so far.
func (p *ArticlePipeline) Process(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
	start := time.Now()
	steps := []string{StateNew}

	scraped, err := p.Scraper.Extract(ctx, entry.URL)
	if err != nil {
		log.Printf("[pipeline] article %s scrape failed: %v", entry.ID, err)
		return model.ProcessingResult{
			ArticleID:         entry.ID,
			FlashpointID:      entry.FlashpointID,
			Status:            model.StatusFailed,
			ProcessingTimeSec: time.Since(start).Seconds(),
			ProcessingSteps:   steps,
			Errors:            []string{fmt.Sprintf("scrape: %v", err)},
			Timestamp:         time.Now().UTC(),
		}
	}

	res := model.NewExtractResult(entry)
	applyScrape(res, scraped)
	steps = append(steps, StateScraped)

	p.runSoft(entry.ID, "language detection", func() {
		res.Language = p.detectLanguage(res.Title, res.Content)
	})
	steps = append(steps, StateLangSet)

	p.runSoft(entry.ID, "title translation", func() {
		res.TitleEn = p.translateTitle(ctx, res.Title, res.Language)
	})
	steps = append(steps, StateTitleTranslated)

	p.runSoft(entry.ID, "entity tagging", func() {
		res.Entities = p.Tagger.Tag(ctx, res.Content)
	})
	steps = append(steps, StateEntitiesTagged)

	if p.Toggles.Geotagging && p.Geo != nil {
		p.runSoft(entry.ID, "geotagging", func() {
			if geo := p.Geo.Tag(res.Title, res.Content, res.Entities.Loc); geo != nil {
				res.GeoEntities = geo
			}
		})
	}
	steps = append(steps, StateGeotagged)

	var candidates []string
	if p.Toggles.ImageSearch && p.Finder != nil {
		p.runSoft(entry.ID, "image search", func() {
			candidates = p.Finder.Find(ctx, res, p.searchCountry(entry, res))
		})
	}
	steps = append(steps, StateImagesFound)

	if len(candidates) > 0 {
		if p.Toggles.ImageDownload && p.Downloader != nil {
			p.runSoft(entry.ID, "image download", func() {
				res.Images = p.Downloader.Download(ctx, date, entry.FlashpointID, entry.ID, candidates)
			})
		} else {
			res.Images = candidates
		}
	}
	steps = append(steps, StateImagesDownloaded, StateCompleted)

	return model.ProcessingResult{
		ArticleID:         entry.ID,
		FlashpointID:      entry.FlashpointID,
		Status:            model.StatusCompleted,
		ProcessingTimeSec: time.Since(start).Seconds(),
		ProcessingSteps:   steps,
		EnrichedData:      res,
		Errors:            []string{},
		Timestamp:         time.Now().UTC(),
	}
}

// runSoft shields the pipeline from a misbehaving stage: the failure is
// logged and the article keeps whatever it had.
func (p *ArticlePipeline) runSoft(articleID, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pipeline] article %s: %s panicked: %v", articleID, stage, r)
		}
	}()
	fn()
}

// applyScrape copies scraped fields over the seeded result, keeping the feed
// entry's values where the scrape came back empty.
func applyScrape(res *model.ExtractResult, scraped *extract.Result) {
	if scraped.Title != "" {
		res.Title = scraped.Title
	}
	res.Author = scraped.Author
	res.Content = scraped.Content
	res.ScrapedAt = scraped.ScrapedAt
	if scraped.PublishedDate != "" {
		res.PublishedDate = scraped.PublishedDate
	}
	if scraped.Hostname != "" {
		res.Hostname = scraped.Hostname
	}
	if scraped.Language != "" {
		res.Language = scraped.Language
	}
}

var reSentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// detectLanguage votes across up to three sentences from the content head
// plus the title; the modal detection wins.
func (p *ArticlePipeline) detectLanguage(title, content string) string {
	if p.Detector == nil {
		return ""
	}
	samples := sampleSentences(content, 3)
	if t := strings.TrimSpace(title); t != "" {
		samples = append(samples, t)
	}

	votes := make(map[string]int)
	var order []string
	for _, sample := range samples {
		lang := p.Detector.Detect(sample)
		if lang == "" {
			continue
		}
		if votes[lang] == 0 {
			order = append(order, lang)
		}
		votes[lang]++
	}

	best := ""
	bestVotes := 0
	for _, lang := range order {
		if votes[lang] > bestVotes {
			best, bestVotes = lang, votes[lang]
		}
	}
	return best
}

// sampleSentences takes up to max sentences from the first langSampleChars
// of content.
func sampleSentences(content string, max int) []string {
	head := content
	if len(head) > langSampleChars {
		head = head[:langSampleChars]
	}
	var out []string
	for _, s := range reSentenceEnd.Split(head, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

func (p *ArticlePipeline) translateTitle(ctx context.Context, title, language string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}
	if language == "en" {
		return title
	}
	if p.Translator == nil {
		return ""
	}
	source := language
	if source == "" {
		source = "auto"
	}
	var proxies []string
	if p.Proxies != nil {
		proxies = p.Proxies.Snapshot()
	}
	translated, ok := p.Translator.Translate(ctx, title, source, "en", proxies)
	if !ok {
		return ""
	}
	return translated
}

// searchCountry picks the locale country for image search: the feed's
// source-country hint when present, otherwise the top geotagged country.
func (p *ArticlePipeline) searchCountry(entry model.FeedEntry, res *model.ExtractResult) string {
	if entry.SourceCountry != "" {
		return entry.SourceCountry
	}
	if len(res.GeoEntities) > 0 {
		return res.GeoEntities[0].Alpha2
	}
	return ""
}
