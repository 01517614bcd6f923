// Package metrics keeps process-lifetime counters for the /stats endpoint.
package metrics

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry holds hot-path counters. All updates are lock-free; Snapshot is a
// point-in-time read.
type Registry struct {
	startedAt time.Time

	articlesProcessed *xsync.Counter
	articlesSucceeded *xsync.Counter
	articlesFailed    *xsync.Counter
	batchRuns         *xsync.Counter
	imagesStored      *xsync.Counter
}

// NewRegistry creates a registry anchored at the current time.
func NewRegistry() *Registry {
	return &Registry{
		startedAt:         time.Now(),
		articlesProcessed: xsync.NewCounter(),
		articlesSucceeded: xsync.NewCounter(),
		articlesFailed:    xsync.NewCounter(),
		batchRuns:         xsync.NewCounter(),
		imagesStored:      xsync.NewCounter(),
	}
}

// RecordRun folds one finished run into the counters.
func (r *Registry) RecordRun(processed, succeeded, failed int) {
	r.articlesProcessed.Add(int64(processed))
	r.articlesSucceeded.Add(int64(succeeded))
	r.articlesFailed.Add(int64(failed))
	r.batchRuns.Inc()
}

// AddImagesStored counts uploaded images.
func (r *Registry) AddImagesStored(n int) {
	r.imagesStored.Add(int64(n))
}

// Snapshot is the read side exposed over /stats.
type Snapshot struct {
	UptimeSec         float64 `json:"uptime_sec"`
	ArticlesProcessed int64   `json:"articles_processed"`
	ArticlesSucceeded int64   `json:"articles_succeeded"`
	ArticlesFailed    int64   `json:"articles_failed"`
	BatchRuns         int64   `json:"batch_runs"`
	ImagesStored      int64   `json:"images_stored"`
}

// Snapshot reads every counter once.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		UptimeSec:         time.Since(r.startedAt).Seconds(),
		ArticlesProcessed: r.articlesProcessed.Value(),
		ArticlesSucceeded: r.articlesSucceeded.Value(),
		ArticlesFailed:    r.articlesFailed.Value(),
		BatchRuns:         r.batchRuns.Value(),
		ImagesStored:      r.imagesStored.Value(),
	}
}
