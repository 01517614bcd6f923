package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/newsgrid/enrichd/internal/model"
	"github.com/newsgrid/enrichd/internal/scanloop"
)

// Retention window for processing runs; older rows are swept by the pruner.
const runRetention = 30 * 24 * time.Hour

const (
	pruneMinInterval = time.Hour
	pruneJitterRange = 5 * time.Minute
)

// RunLog records batch executions and per-article outcomes for /stats and
// /feed/stats. Writes happen on the batch path; the retention pruner runs in
// the background between Start and Stop.
type RunLog struct {
	db *sql.DB

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunLog wraps an open database that has had MigrateDB applied.
func NewRunLog(db *sql.DB) *RunLog {
	return &RunLog{db: db, stopCh: make(chan struct{})}
}

// Start launches the retention pruner.
func (l *RunLog) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		scanloop.Run(l.stopCh, pruneMinInterval, pruneJitterRange, func() {
			if n, err := l.PruneBefore(time.Now().Add(-runRetention)); err != nil {
				log.Printf("[runlog] prune failed: %v", err)
			} else if n > 0 {
				log.Printf("[runlog] pruned %d expired runs", n)
			}
		})
	}()
}

// Stop terminates the pruner and waits for it to exit.
func (l *RunLog) Stop() {
	l.once.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// RecordRun persists one batch summary together with its per-article results
// in a single transaction.
func (l *RunLog) RecordRun(date, flashpointID string, startedAt time.Time, summary model.BatchSummary) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("runlog: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO processing_runs
		(id, date, flashpoint_id, status, total_articles, successful, failed,
		 processing_time_sec, sub_batches, started_at_ns, finished_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, date, flashpointID, summary.Status, summary.TotalArticles,
		summary.Successful, summary.Failed, summary.ProcessingTimeSec,
		summary.SubBatchesProcessed, startedAt.UnixNano(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("runlog: insert run %s: %w", summary.RunID, err)
	}

	for _, res := range summary.Results {
		stepsJSON, err := json.Marshal(res.ProcessingSteps)
		if err != nil {
			return fmt.Errorf("runlog: marshal steps: %w", err)
		}
		errorsJSON, err := json.Marshal(res.Errors)
		if err != nil {
			return fmt.Errorf("runlog: marshal errors: %w", err)
		}
		_, err = tx.Exec(`INSERT OR REPLACE INTO article_results
			(run_id, article_id, status, processing_time_sec, steps_json, errors_json, ts_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID, res.ArticleID, res.Status, res.ProcessingTimeSec,
			string(stepsJSON), string(errorsJSON), res.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("runlog: insert result %s/%s: %w", summary.RunID, res.ArticleID, err)
		}
	}

	return tx.Commit()
}

// PruneBefore deletes runs started before the cutoff. Article results cascade.
func (l *RunLog) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := l.db.Exec(`DELETE FROM processing_runs WHERE started_at_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("runlog: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RunStats aggregates the run log for the stats endpoints.
type RunStats struct {
	TotalRuns         int     `json:"total_runs"`
	TotalArticles     int     `json:"total_articles"`
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	AvgProcessingTime float64 `json:"avg_processing_time_sec"`
}

// Stats aggregates all recorded runs.
func (l *RunLog) Stats() (RunStats, error) {
	var s RunStats
	err := l.db.QueryRow(`SELECT
			COUNT(*),
			COALESCE(SUM(total_articles), 0),
			COALESCE(SUM(successful), 0),
			COALESCE(SUM(failed), 0),
			COALESCE(AVG(processing_time_sec), 0)
		FROM processing_runs`).Scan(
		&s.TotalRuns, &s.TotalArticles, &s.Successful, &s.Failed, &s.AvgProcessingTime)
	if err != nil {
		return RunStats{}, fmt.Errorf("runlog: stats: %w", err)
	}
	return s, nil
}

// RunSummaryRow is one persisted run, as listed by the stats endpoints.
type RunSummaryRow struct {
	ID                string  `json:"id"`
	Date              string  `json:"date"`
	FlashpointID      string  `json:"flashpoint_id,omitempty"`
	Status            string  `json:"status"`
	TotalArticles     int     `json:"total_articles"`
	Successful        int     `json:"successful"`
	Failed            int     `json:"failed"`
	ProcessingTimeSec float64 `json:"processing_time_sec"`
	StartedAt         int64   `json:"started_at_ns"`
}

// RecentRuns returns the newest runs, most recent first.
func (l *RunLog) RecentRuns(limit int) ([]RunSummaryRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.Query(`SELECT id, date, flashpoint_id, status, total_articles,
			successful, failed, processing_time_sec, started_at_ns
		FROM processing_runs ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummaryRow
	for rows.Next() {
		var r RunSummaryRow
		if err := rows.Scan(&r.ID, &r.Date, &r.FlashpointID, &r.Status,
			&r.TotalArticles, &r.Successful, &r.Failed, &r.ProcessingTimeSec,
			&r.StartedAt); err != nil {
			return nil, fmt.Errorf("runlog: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
