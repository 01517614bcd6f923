package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/newsgrid/enrichd/internal/metrics"
)

// Config wires the server's routes to their dependencies.
type Config struct {
	ListenAddress string
	Port          int
	Version       string

	APIKey        string
	RequireAPIKey bool
	MaxBodyBytes  int64

	Feed     FeedService
	Registry *metrics.Registry
	Runs     RunStatsSource
	Health   HealthConfig
}

// Server wraps the HTTP server and mux for the enrichd control plane.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates an API server wired with all routes. The banner and
// readiness endpoints are always open; everything else sits behind the API
// key when RequireAPIKey is set.
func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", HandleRoot(cfg.Version))
	mux.Handle("GET /ready", HandleReady())

	protected := http.NewServeMux()
	protected.Handle("GET /health", HandleHealth(cfg.Health))
	protected.Handle("GET /stats", HandleStats(cfg.Registry, cfg.Runs, cfg.Feed, cfg.Health.MaxWorkers))

	protected.Handle("POST /feed/warmup", HandleFeedWarmup(cfg.Feed))
	protected.Handle("POST /feed/process", HandleFeedProcess(cfg.Feed, cfg.Registry))
	protected.Handle("POST /feed/process/flashpoint", HandleFeedProcessFlashpoint(cfg.Feed, cfg.Registry))
	protected.Handle("POST /feed/process/article", HandleFeedProcessArticle(cfg.Feed, cfg.Registry))
	protected.Handle("POST /feed/process/batch_articles", HandleFeedProcessBatchArticles(cfg.Feed, cfg.Registry))
	protected.Handle("GET /feed/entries/{date}", HandleFeedEntries(cfg.Feed))
	protected.Handle("GET /feed/stats", HandleFeedStats(cfg.Feed, cfg.Runs))
	protected.Handle("DELETE /feed/clear", HandleFeedClear(cfg.Feed))
	protected.Handle("DELETE /feed/clear/{date}", HandleFeedClearDate(cfg.Feed))

	var inner http.Handler = RequestBodyLimitMiddleware(cfg.MaxBodyBytes, protected)
	if cfg.RequireAPIKey {
		inner = AuthMiddleware(cfg.APIKey, inner)
	}
	mux.Handle("/", inner)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
