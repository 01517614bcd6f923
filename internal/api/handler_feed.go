package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/newsgrid/enrichd/internal/feed"
	"github.com/newsgrid/enrichd/internal/metrics"
	"github.com/newsgrid/enrichd/internal/model"
	"github.com/newsgrid/enrichd/internal/state"
)

// backgroundTrigger marks a process request that should return immediately
// and run detached from the request lifecycle.
const backgroundTrigger = "masxai"

// FeedService is the slice of the feed processor the handlers depend on.
type FeedService interface {
	WarmUp(date string) (int, error)
	ProcessAll(ctx context.Context, date string, batchMode bool) (model.BatchSummary, error)
	ProcessByFlashpoint(ctx context.Context, date, flashpointID string) (model.BatchSummary, error)
	ProcessByArticle(ctx context.Context, date, flashpointID, articleID string) (model.ProcessingResult, error)
	ProcessArticleSet(ctx context.Context, date string, articleIDs []string) (model.BatchSummary, error)
	Entries(date string) ([]model.FeedEntry, bool)
	Clear(date string) int
	Stats() feed.Stats
}

type warmupRequest struct {
	Date string `json:"date"`
}

// HandleFeedWarmup preloads a date partition into the entry cache.
func HandleFeedWarmup(svc FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req warmupRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		date := req.Date
		if date == "" {
			date = state.Today()
		}
		total, err := svc.WarmUp(date)
		if err != nil {
			writeProcessingError(w, date, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":        "success",
			"date":          date,
			"total_entries": total,
			"message":       fmt.Sprintf("warmed up %d entries for %s", total, date),
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type processRequest struct {
	Date         string   `json:"date"`
	Trigger      string   `json:"trigger"`
	FlashpointID string   `json:"flashpoint_id"`
	ArticleID    string   `json:"article_id"`
	ArticleIDs   []string `json:"articles_ids"`
}

func startedResponse(date string) map[string]any {
	return map[string]any{
		"status":        "started",
		"date":          date,
		"total_entries": 0,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
}

// runSummary executes fn either detached (background trigger) or inline.
// Inline errors go through the legacy processing-error shapes; background
// failures are logged only.
func runSummary(
	w http.ResponseWriter,
	r *http.Request,
	registry *metrics.Registry,
	date, trigger string,
	fn func(ctx context.Context) (model.BatchSummary, error),
) {
	if trigger == backgroundTrigger {
		go func() {
			summary, err := fn(context.Background())
			if err != nil {
				log.Printf("[api] background processing for %s failed: %v", date, err)
				return
			}
			registry.RecordRun(summary.Processed, summary.Successful, summary.Failed)
		}()
		WriteJSON(w, http.StatusOK, startedResponse(date))
		return
	}

	summary, err := fn(r.Context())
	if err != nil {
		writeProcessingError(w, date, err)
		return
	}
	registry.RecordRun(summary.Processed, summary.Successful, summary.Failed)
	WriteJSON(w, http.StatusOK, summary)
}

// HandleFeedProcess runs the pipeline over every entry for a date.
func HandleFeedProcess(svc FeedService, registry *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		date := req.Date
		if date == "" {
			date = state.Today()
		}
		runSummary(w, r, registry, date, req.Trigger, func(ctx context.Context) (model.BatchSummary, error) {
			return svc.ProcessAll(ctx, date, true)
		})
	}
}

// HandleFeedProcessFlashpoint runs the pipeline over one flashpoint's entries.
func HandleFeedProcessFlashpoint(svc FeedService, registry *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.FlashpointID == "" {
			writeInvalidArgument(w, "flashpoint_id is required")
			return
		}
		date := req.Date
		if date == "" {
			date = state.Today()
		}
		runSummary(w, r, registry, date, req.Trigger, func(ctx context.Context) (model.BatchSummary, error) {
			return svc.ProcessByFlashpoint(ctx, date, req.FlashpointID)
		})
	}
}

// HandleFeedProcessArticle runs the pipeline for a single article.
func HandleFeedProcessArticle(svc FeedService, registry *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.Date == "" {
			writeInvalidArgument(w, "date is required")
			return
		}
		if req.FlashpointID == "" {
			writeInvalidArgument(w, "flashpoint_id is required")
			return
		}
		if req.ArticleID == "" {
			writeInvalidArgument(w, "article_id is required")
			return
		}

		if req.Trigger == backgroundTrigger {
			go func() {
				result, err := svc.ProcessByArticle(context.Background(), req.Date, req.FlashpointID, req.ArticleID)
				if err != nil {
					log.Printf("[api] background article %s failed: %v", req.ArticleID, err)
					return
				}
				recordResult(registry, result)
			}()
			WriteJSON(w, http.StatusOK, startedResponse(req.Date))
			return
		}

		result, err := svc.ProcessByArticle(r.Context(), req.Date, req.FlashpointID, req.ArticleID)
		if err != nil {
			writeProcessingError(w, req.Date, err)
			return
		}
		recordResult(registry, result)
		WriteJSON(w, http.StatusOK, result)
	}
}

func recordResult(registry *metrics.Registry, result model.ProcessingResult) {
	if result.Status == model.StatusCompleted {
		registry.RecordRun(1, 1, 0)
	} else {
		registry.RecordRun(1, 0, 1)
	}
}

// HandleFeedProcessBatchArticles runs the pipeline for an explicit article set.
func HandleFeedProcessBatchArticles(svc FeedService, registry *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if req.Date == "" {
			writeInvalidArgument(w, "date is required")
			return
		}
		if len(req.ArticleIDs) == 0 {
			writeInvalidArgument(w, "articles_ids must be a non-empty list")
			return
		}
		runSummary(w, r, registry, req.Date, req.Trigger, func(ctx context.Context) (model.BatchSummary, error) {
			return svc.ProcessArticleSet(ctx, req.Date, req.ArticleIDs)
		})
	}
}

// HandleFeedEntries returns the cached entries for a date.
func HandleFeedEntries(svc FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := PathParam(r, "date")
		if err := state.ValidateDate(date); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		entries, ok := svc.Entries(date)
		if !ok {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "no entries loaded for "+date)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"date":          date,
			"total_entries": len(entries),
			"entries":       entries,
		})
	}
}

// HandleFeedStats reports entry-cache and run-log statistics.
func HandleFeedStats(svc FeedService, runs RunStatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"cache":     svc.Stats(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if runStats, err := runs.Stats(); err == nil {
			body["runs"] = runStats
		} else {
			body["runs"] = map[string]string{"error": err.Error()}
		}
		WriteJSON(w, http.StatusOK, body)
	}
}

// HandleFeedClear drops all cached entries.
func HandleFeedClear(svc FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cleared := svc.Clear("")
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":        "cleared",
			"cleared_dates": cleared,
		})
	}
}

// HandleFeedClearDate drops the cached entries for one date.
func HandleFeedClearDate(svc FeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := PathParam(r, "date")
		if err := state.ValidateDate(date); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		cleared := svc.Clear(date)
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":        "cleared",
			"date":          date,
			"cleared_dates": cleared,
		})
	}
}
