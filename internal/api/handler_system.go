package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/newsgrid/enrichd/internal/metrics"
	"github.com/newsgrid/enrichd/internal/state"
)

const egressCheckTimeout = 5 * time.Second

// RunStatsSource reads aggregate run statistics from the run log.
type RunStatsSource interface {
	Stats() (state.RunStats, error)
}

// DBPinger checks row-store liveness.
type DBPinger interface {
	Ping() error
}

// HandleRoot serves the service banner.
func HandleRoot(version string) http.HandlerFunc {
	endpoints := []string{
		"GET /health",
		"GET /stats",
		"POST /feed/warmup",
		"POST /feed/process",
		"POST /feed/process/flashpoint",
		"POST /feed/process/article",
		"POST /feed/process/batch_articles",
		"GET /feed/entries/{date}",
		"GET /feed/stats",
		"DELETE /feed/clear/{date}",
		"DELETE /feed/clear",
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"message":   "enrichd news enrichment service",
			"version":   version,
			"status":    "operational",
			"endpoints": endpoints,
		})
	}
}

// HandleReady reports process liveness. Always 200 once the server accepts
// connections.
func HandleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// HealthConfig carries the dependencies the health endpoint inspects.
type HealthConfig struct {
	DB          DBPinger
	ProxyCount  func() int
	MaxWorkers  int
	CleanText   bool
	Geotagging  bool
	ImageSearch bool
	EgressURL   string
	Client      *http.Client
}

type componentStatus struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

func healthy(details string) componentStatus {
	return componentStatus{Status: "healthy", Details: details}
}

func unhealthy(details string) componentStatus {
	return componentStatus{Status: "unhealthy", Details: details}
}

func toggled(enabled bool, details string) componentStatus {
	if !enabled {
		return componentStatus{Status: "disabled"}
	}
	return healthy(details)
}

// HandleHealth reports per-component health plus an outbound egress check.
func HandleHealth(cfg HealthConfig) http.HandlerFunc {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"thread_pool":  healthy(fmtWorkers(cfg.MaxWorkers)),
			"scraper":      healthy(fmtProxies(cfg.ProxyCount)),
			"text_cleaner": toggled(cfg.CleanText, ""),
			"geotagger":    toggled(cfg.Geotagging, ""),
			"image_finder": toggled(cfg.ImageSearch, ""),
		}

		if cfg.DB != nil {
			if err := cfg.DB.Ping(); err != nil {
				components["database"] = unhealthy(err.Error())
			} else {
				components["database"] = healthy("")
			}
		} else {
			components["database"] = unhealthy("not configured")
		}

		components["outbound_ping"] = checkEgress(r.Context(), client, cfg.EgressURL)

		overall := "healthy"
		for _, c := range components {
			if c.Status == "unhealthy" {
				overall = "unhealthy"
				break
			}
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"overall":    overall,
			"components": components,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func fmtWorkers(n int) string {
	return "max_workers=" + strconv.Itoa(n)
}

func fmtProxies(count func() int) string {
	if count == nil {
		return "no proxy pool"
	}
	return strconv.Itoa(count()) + " proxies cached"
}

func checkEgress(ctx context.Context, client *http.Client, url string) componentStatus {
	if url == "" {
		return componentStatus{Status: "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, egressCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return unhealthy(err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return unhealthy(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return unhealthy("egress check returned " + resp.Status)
	}
	return healthy("reached " + url)
}

// HandleStats reports pipeline, thread-pool, and database statistics.
func HandleStats(registry *metrics.Registry, runs RunStatsSource, feedSvc FeedService, maxWorkers int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := registry.Snapshot()

		body := map[string]any{
			"uptime_sec": snap.UptimeSec,
			"pipeline":   snap,
			"thread_pool": map[string]int{
				"max_workers": maxWorkers,
			},
			"feed":      feedSvc.Stats(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if runStats, err := runs.Stats(); err == nil {
			body["database"] = runStats
		} else {
			body["database"] = map[string]string{"error": err.Error()}
		}
		WriteJSON(w, http.StatusOK, body)
	}
}
