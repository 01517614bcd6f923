// Package model defines domain structs shared across the pipeline and persistence layers.
package model

import "time"

// FeedEntry is one candidate article row from a date partition. It is written
// by the upstream harvester and read-only to this pipeline; enrichment is
// written back as a separate upsert keyed by (ID, FlashpointID).
type FeedEntry struct {
	ID            string `json:"id"`
	FlashpointID  string `json:"flashpoint_id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Image         string `json:"image,omitempty"`
	Language      string `json:"language,omitempty"`
	SourceCountry string `json:"source_country,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
}

// ExtractResult is the working record for one article. Created by the
// per-article pipeline, owned exclusively by that invocation, and passed by
// value to the store on completion.
type ExtractResult struct {
	ID            string       `json:"id"`
	ParentID      string       `json:"parent_id"`
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	TitleEn       string       `json:"title_en"`
	Author        string       `json:"author,omitempty"`
	PublishedDate string       `json:"published_date,omitempty"`
	Content       string       `json:"content"`
	Hostname      string       `json:"hostname,omitempty"`
	Language      string       `json:"language"`
	Images        []string     `json:"images"`
	Entities      EntityBundle `json:"entities"`
	GeoEntities   []GeoEntity  `json:"geo_entities"`
	ScrapedAt     time.Time    `json:"scraped_at,omitempty"`
}

// NewExtractResult seeds a working record from a feed entry. Images is never
// nil: an empty slice is the "no images" sentinel end-to-end.
func NewExtractResult(entry FeedEntry) *ExtractResult {
	return &ExtractResult{
		ID:          entry.ID,
		ParentID:    entry.FlashpointID,
		URL:         entry.URL,
		Title:       entry.Title,
		Hostname:    entry.Hostname,
		Images:      []string{},
		GeoEntities: []GeoEntity{},
	}
}

// Entity is one named entity with the recognizer's confidence.
type Entity struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// EntityBundle carries the fixed label buckets produced by the entity tagger.
// Each bucket is sorted by descending score, then lowercase text; duplicates
// are merged case-insensitively keeping the max score.
type EntityBundle struct {
	Person   []Entity   `json:"PERSON"`
	Org      []Entity   `json:"ORG"`
	Gpe      []Entity   `json:"GPE"`
	Loc      []Entity   `json:"LOC"`
	Norp     []Entity   `json:"NORP"`
	Event    []Entity   `json:"EVENT"`
	Law      []Entity   `json:"LAW"`
	Date     []Entity   `json:"DATE"`
	Money    []Entity   `json:"MONEY"`
	Quantity []Entity   `json:"QUANTITY"`
	Meta     EntityMeta `json:"meta"`
}

// EntityMeta describes how a bundle was produced.
type EntityMeta struct {
	Chunks int     `json:"chunks"`
	Chars  int     `json:"chars"`
	Model  string  `json:"model"`
	Score  float64 `json:"score"`
}

// Buckets returns label→bucket pairs in a stable order. The returned slices
// alias the bundle; callers must not mutate them.
func (b *EntityBundle) Buckets() map[string][]Entity {
	return map[string][]Entity{
		"PERSON":   b.Person,
		"ORG":      b.Org,
		"GPE":      b.Gpe,
		"LOC":      b.Loc,
		"NORP":     b.Norp,
		"EVENT":    b.Event,
		"LAW":      b.Law,
		"DATE":     b.Date,
		"MONEY":    b.Money,
		"QUANTITY": b.Quantity,
	}
}

// GeoEntity is one resolved sovereign country. Unique by Alpha2 within a result.
type GeoEntity struct {
	Name     string  `json:"name"`
	Alpha2   string  `json:"alpha2"`
	Alpha3   string  `json:"alpha3"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

// Article processing statuses reported in ProcessingResult.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ProcessingResult is the per-article outcome returned by the pipeline.
// EnrichedData is nil when the article failed before producing a record.
type ProcessingResult struct {
	ArticleID         string         `json:"article_id"`
	FlashpointID      string         `json:"flashpoint_id"`
	Status            string         `json:"status"`
	ProcessingTimeSec float64        `json:"processing_time_sec"`
	ProcessingSteps   []string       `json:"processing_steps"`
	EnrichedData      *ExtractResult `json:"enriched_data"`
	Errors            []string       `json:"errors"`
	Timestamp         time.Time      `json:"timestamp"`
}

// BatchSummary aggregates one executor run over a list of articles.
type BatchSummary struct {
	RunID               string             `json:"run_id"`
	Status              string             `json:"status"`
	TotalArticles       int                `json:"total_articles"`
	Processed           int                `json:"processed"`
	Successful          int                `json:"successful"`
	Failed              int                `json:"failed"`
	ProcessingTimeSec   float64            `json:"processing_time_sec"`
	SubBatchesProcessed int                `json:"sub_batches_processed"`
	Results             []ProcessingResult `json:"results"`
}

// EntryKey is the composite identity of a feed entry within a date partition.
type EntryKey struct {
	ID           string
	FlashpointID string
}
