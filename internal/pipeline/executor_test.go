package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newsgrid/enrichd/internal/model"
)

type processorFunc func(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult

func (f processorFunc) Process(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
	return f(ctx, date, entry)
}

func makeEntries(n int) []model.FeedEntry {
	entries := make([]model.FeedEntry, n)
	for i := range entries {
		entries[i] = model.FeedEntry{ID: string(rune('a' + i)), FlashpointID: "fp"}
	}
	return entries
}

func TestRunZeroArticles(t *testing.T) {
	e := &Executor{MaxWorkers: 4, Processor: processorFunc(func(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
		t.Fatal("processor called for empty batch")
		return model.ProcessingResult{}
	})}

	start := time.Now()
	got := e.Run(context.Background(), "2026-08-26", nil)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("empty batch took %v", elapsed)
	}
	if got.Status != model.StatusCompleted || got.TotalArticles != 0 || got.Successful != 0 || got.Failed != 0 {
		t.Fatalf("summary = %+v", got)
	}
	if got.RunID == "" {
		t.Fatal("missing run id")
	}
}

func TestRunPreservesInputOrder(t *testing.T) {
	e := &Executor{MaxWorkers: 3, Processor: processorFunc(func(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
		return model.ProcessingResult{ArticleID: entry.ID, Status: model.StatusCompleted}
	})}

	entries := makeEntries(7)
	got := e.Run(context.Background(), "2026-08-26", entries)
	if got.SubBatchesProcessed != 3 {
		t.Fatalf("sub-batches = %d, want 3", got.SubBatchesProcessed)
	}
	if len(got.Results) != 7 {
		t.Fatalf("results = %d", len(got.Results))
	}
	for i, r := range got.Results {
		if r.ArticleID != entries[i].ID {
			t.Fatalf("result %d = %s, want %s", i, r.ArticleID, entries[i].ID)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak int64
	var mu sync.Mutex
	e := &Executor{MaxWorkers: 2, Processor: processorFunc(func(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
		n := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return model.ProcessingResult{ArticleID: entry.ID, Status: model.StatusCompleted}
	})}

	e.Run(context.Background(), "2026-08-26", makeEntries(6))
	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want ≤2", peak)
	}
}

func TestRunCountsFailures(t *testing.T) {
	e := &Executor{MaxWorkers: 2, Processor: processorFunc(func(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
		if entry.ID == "b" {
			return model.ProcessingResult{ArticleID: entry.ID, Status: model.StatusFailed, Errors: []string{"scrape: boom"}}
		}
		return model.ProcessingResult{ArticleID: entry.ID, Status: model.StatusCompleted}
	})}

	got := e.Run(context.Background(), "2026-08-26", makeEntries(4))
	if got.Successful != 3 || got.Failed != 1 || got.Processed != 4 {
		t.Fatalf("summary = %+v", got)
	}
}

func TestRunCapturesPanics(t *testing.T) {
	e := &Executor{MaxWorkers: 2, Processor: processorFunc(func(ctx context.Context, date string, entry model.FeedEntry) model.ProcessingResult {
		if entry.ID == "a" {
			panic("worker exploded")
		}
		return model.ProcessingResult{ArticleID: entry.ID, Status: model.StatusCompleted}
	})}

	got := e.Run(context.Background(), "2026-08-26", makeEntries(3))
	if got.Failed != 1 || got.Successful != 2 {
		t.Fatalf("summary = %+v", got)
	}
	if got.Results[0].Status != model.StatusFailed || len(got.Results[0].Errors) == 0 {
		t.Fatalf("panicked result = %+v", got.Results[0])
	}
}
