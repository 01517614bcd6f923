// Package feed orchestrates date-level enrichment jobs: loading partition
// entries, scheduling the pipeline over them, and writing results back.
package feed

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/newsgrid/enrichd/internal/model"
	"github.com/newsgrid/enrichd/internal/pipeline"
	"github.com/newsgrid/enrichd/internal/service"
	"github.com/newsgrid/enrichd/internal/state"
)

// EntryStore is the partition-store surface the processor needs.
// *state.FeedStore satisfies it.
type EntryStore interface {
	TableExists(date string) (bool, error)
	EntriesByDate(date string) ([]model.FeedEntry, error)
	EntriesByFlashpoint(date, flashpointID string) ([]model.FeedEntry, error)
	EntryByID(date, flashpointID, articleID string) (model.FeedEntry, error)
	UpsertEnriched(date string, entry model.FeedEntry, res *model.ExtractResult) error
}

// RunRecorder persists per-run accounting. *state.RunLog satisfies it.
type RunRecorder interface {
	RecordRun(date, flashpointID string, startedAt time.Time, summary model.BatchSummary) error
}

// ProxyWarmer warms the upstream proxy provider and starts the background
// refresher before a processing run.
type ProxyWarmer interface {
	PingStart(ctx context.Context) error
}

// Processor is the date-level orchestrator behind the /feed endpoints.
type Processor struct {
	Store    EntryStore
	RunLog   RunRecorder
	Proxies  ProxyWarmer
	Articles pipeline.ArticleProcessor
	// MaxWorkers sizes batch-mode sub-batches.
	MaxWorkers int

	cache *xsync.Map[string, []model.FeedEntry]
}

// NewProcessor wires a processor with an empty entries cache.
func NewProcessor(store EntryStore, runLog RunRecorder, proxies ProxyWarmer, articles pipeline.ArticleProcessor, maxWorkers int) *Processor {
	return &Processor{
		Store:      store,
		RunLog:     runLog,
		Proxies:    proxies,
		Articles:   articles,
		MaxWorkers: maxWorkers,
		cache:      xsync.NewMap[string, []model.FeedEntry](),
	}
}

// WarmUp loads a date partition into the in-memory cache and returns how
// many entries it holds.
func (p *Processor) WarmUp(date string) (int, error) {
	if err := state.ValidateDate(date); err != nil {
		return 0, service.InvalidArgument(err.Error())
	}
	entries, err := p.Store.EntriesByDate(date)
	if err != nil {
		return 0, err
	}
	p.cache.Store(date, entries)
	log.Printf("[feed] warmed %s: %d entries", date, len(entries))
	return len(entries), nil
}

// ProcessAll enriches every entry for a date. batchMode runs sub-batched
// concurrency; otherwise articles run strictly one at a time.
func (p *Processor) ProcessAll(ctx context.Context, date string, batchMode bool) (model.BatchSummary, error) {
	if err := state.ValidateDate(date); err != nil {
		return model.BatchSummary{}, service.InvalidArgument(err.Error())
	}
	entries, err := p.loadEntries(date)
	if err != nil {
		return model.BatchSummary{}, err
	}
	return p.runAndPersist(ctx, date, "", entries, batchMode), nil
}

// ProcessByFlashpoint enriches one flashpoint's entries sequentially.
func (p *Processor) ProcessByFlashpoint(ctx context.Context, date, flashpointID string) (model.BatchSummary, error) {
	if err := state.ValidateDate(date); err != nil {
		return model.BatchSummary{}, service.InvalidArgument(err.Error())
	}
	if flashpointID == "" {
		return model.BatchSummary{}, service.InvalidArgument("flashpoint_id is required")
	}
	entries, err := p.Store.EntriesByFlashpoint(date, flashpointID)
	if err != nil {
		return model.BatchSummary{}, err
	}
	return p.runAndPersist(ctx, date, flashpointID, entries, false), nil
}

// ProcessByArticle enriches exactly one article.
func (p *Processor) ProcessByArticle(ctx context.Context, date, flashpointID, articleID string) (model.ProcessingResult, error) {
	if err := state.ValidateDate(date); err != nil {
		return model.ProcessingResult{}, service.InvalidArgument(err.Error())
	}
	if flashpointID == "" || articleID == "" {
		return model.ProcessingResult{}, service.InvalidArgument("flashpoint_id and article_id are required")
	}
	entry, err := p.Store.EntryByID(date, flashpointID, articleID)
	if err != nil {
		return model.ProcessingResult{}, err
	}

	p.warmProxies(ctx)
	result := p.Articles.Process(ctx, date, entry)
	p.persistOne(date, entry, result)
	return result, nil
}

// ProcessArticleSet enriches the named articles of a date in batch mode.
func (p *Processor) ProcessArticleSet(ctx context.Context, date string, articleIDs []string) (model.BatchSummary, error) {
	if err := state.ValidateDate(date); err != nil {
		return model.BatchSummary{}, service.InvalidArgument(err.Error())
	}
	if len(articleIDs) == 0 {
		return model.BatchSummary{}, service.InvalidArgument("articles_ids must not be empty")
	}
	all, err := p.loadEntries(date)
	if err != nil {
		return model.BatchSummary{}, err
	}

	wanted := make(map[string]bool, len(articleIDs))
	for _, id := range articleIDs {
		wanted[id] = true
	}
	var entries []model.FeedEntry
	for _, e := range all {
		if wanted[e.ID] {
			entries = append(entries, e)
		}
	}
	return p.runAndPersist(ctx, date, "", entries, true), nil
}

// Entries returns the cached entries for a date, if warmed.
func (p *Processor) Entries(date string) ([]model.FeedEntry, bool) {
	return p.cache.Load(date)
}

// Clear drops cached entries; an empty date clears every cached partition.
// Returns the number of dates dropped.
func (p *Processor) Clear(date string) int {
	if date != "" {
		if _, ok := p.cache.LoadAndDelete(date); ok {
			return 1
		}
		return 0
	}
	cleared := 0
	p.cache.Range(func(key string, _ []model.FeedEntry) bool {
		p.cache.Delete(key)
		cleared++
		return true
	})
	return cleared
}

// Stats reports cache occupancy for the /feed/stats endpoint.
type Stats struct {
	CachedDates   int `json:"cached_dates"`
	CachedEntries int `json:"cached_entries"`
}

func (p *Processor) Stats() Stats {
	var s Stats
	p.cache.Range(func(_ string, entries []model.FeedEntry) bool {
		s.CachedDates++
		s.CachedEntries += len(entries)
		return true
	})
	return s
}

// loadEntries prefers the warmed cache and falls back to the store.
func (p *Processor) loadEntries(date string) ([]model.FeedEntry, error) {
	if entries, ok := p.cache.Load(date); ok {
		return entries, nil
	}
	return p.Store.EntriesByDate(date)
}

// runAndPersist executes one run, upserts successes, and records the run.
func (p *Processor) runAndPersist(ctx context.Context, date, flashpointID string, entries []model.FeedEntry, batchMode bool) model.BatchSummary {
	startedAt := time.Now()
	p.warmProxies(ctx)

	var summary model.BatchSummary
	if batchMode {
		ex := &pipeline.Executor{Processor: p.Articles, MaxWorkers: p.MaxWorkers}
		summary = ex.Run(ctx, date, entries)
	} else {
		summary = p.runSequential(ctx, date, entries)
	}

	// The same article ID can appear under two flashpoints in one run, so
	// results join back to entries on the full (id, flashpoint_id) identity.
	byKey := make(map[model.EntryKey]model.FeedEntry, len(entries))
	for _, e := range entries {
		byKey[model.EntryKey{ID: e.ID, FlashpointID: e.FlashpointID}] = e
	}
	for _, result := range summary.Results {
		key := model.EntryKey{ID: result.ArticleID, FlashpointID: result.FlashpointID}
		if entry, ok := byKey[key]; ok {
			p.persistOne(date, entry, result)
		}
	}

	if p.RunLog != nil {
		if err := p.RunLog.RecordRun(date, flashpointID, startedAt, summary); err != nil {
			log.Printf("[feed] run %s not recorded: %v", summary.RunID, err)
		}
	}
	return summary
}

// runSequential is the non-batch path: strictly one article at a time.
func (p *Processor) runSequential(ctx context.Context, date string, entries []model.FeedEntry) model.BatchSummary {
	start := time.Now()
	summary := model.BatchSummary{
		RunID:         uuid.NewString(),
		Status:        model.StatusCompleted,
		TotalArticles: len(entries),
		Results:       []model.ProcessingResult{},
	}
	for _, entry := range entries {
		result := p.Articles.Process(ctx, date, entry)
		summary.Results = append(summary.Results, result)
		summary.Processed++
		if result.Status == model.StatusCompleted {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	summary.ProcessingTimeSec = time.Since(start).Seconds()
	return summary
}

// persistOne upserts one successful article. Storage failures are logged;
// the batch carries on.
func (p *Processor) persistOne(date string, entry model.FeedEntry, result model.ProcessingResult) {
	if result.Status != model.StatusCompleted || result.EnrichedData == nil {
		return
	}
	if err := p.Store.UpsertEnriched(date, entry, result.EnrichedData); err != nil {
		log.Printf("[feed] upsert %s/%s failed: %v", entry.FlashpointID, entry.ID, err)
	}
}

// warmProxies pings the proxy provider and starts the refresher. A dead
// provider is not fatal; scraping falls back to direct connections.
func (p *Processor) warmProxies(ctx context.Context) {
	if p.Proxies == nil {
		return
	}
	if err := p.Proxies.PingStart(ctx); err != nil {
		log.Printf("[feed] proxy warmup failed: %v", err)
	}
}
