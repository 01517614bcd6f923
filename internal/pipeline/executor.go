package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsgrid/enrichd/internal/model"
)

// interBatchPause throttles resource pressure between sub-batch rounds.
const interBatchPause = 100 * time.Millisecond

// ArticleProcessor is what the executor schedules; ArticlePipeline satisfies it.
type ArticleProcessor interface {
	Process(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult
}

// Executor runs articles in contiguous sub-batches of MaxWorkers, one
// goroutine per article, joining results in submission order.
type Executor struct {
	Processor  ArticleProcessor
	MaxWorkers int
}

// Run processes all entries for one date and aggregates the outcome.
func (e *Executor) Run(ctx context.Context, date string, entries []model.FeedEntry) model.BatchSummary {
	start := time.Now()
	summary := model.BatchSummary{
		RunID:         uuid.NewString(),
		Status:        model.StatusCompleted,
		TotalArticles: len(entries),
		Results:       []model.ProcessingResult{},
	}
	if len(entries) == 0 {
		summary.ProcessingTimeSec = time.Since(start).Seconds()
		return summary
	}

	workers := e.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	log.Printf("[pipeline] run %s: %d articles in sub-batches of %d", summary.RunID, len(entries), workers)
	for offset := 0; offset < len(entries); offset += workers {
		if offset > 0 {
			time.Sleep(interBatchPause)
		}
		end := offset + workers
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[offset:end]

		results := make([]model.ProcessingResult, len(batch))
		var wg sync.WaitGroup
		for i, entry := range batch {
			wg.Add(1)
			go func(i int, entry model.FeedEntry) {
				defer wg.Done()
				results[i] = e.processOne(ctx, date, entry)
			}(i, entry)
		}
		wg.Wait()

		for _, r := range results {
			summary.Processed++
			if r.Status == model.StatusCompleted {
				summary.Successful++
			} else {
				summary.Failed++
			}
		}
		summary.Results = append(summary.Results, results...)
		summary.SubBatchesProcessed++
	}

	summary.ProcessingTimeSec = time.Since(start).Seconds()
	log.Printf("[pipeline] run %s done: %d ok, %d failed in %.2fs",
		summary.RunID, summary.Successful, summary.Failed, summary.ProcessingTimeSec)
	return summary
}

// processOne shields sibling articles from a panicking pipeline.
func (e *Executor) processOne(ctx context.Context, date string, entry model.FeedEntry) (result model.ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pipeline] article %s panicked: %v", entry.ID, r)
			result = model.ProcessingResult{
				ArticleID:    entry.ID,
				FlashpointID: entry.FlashpointID,
				Status:       model.StatusFailed,
				Errors:       []string{fmt.Sprintf("pipeline panic: %v", r)},
				Timestamp:    time.Now().UTC(),
			}
		}
	}()
	return e.Processor.Process(ctx, date, entry)
}
