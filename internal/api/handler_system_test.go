package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newsgrid/enrichd/internal/metrics"
)

type pingFail struct{}

func (pingFail) Ping() error { return errors.New("database is locked") }

func TestRootBanner(t *testing.T) {
	h := newTestServer(&fakeFeed{}).Handler()

	rec := doJSON(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decodeMap(t, rec)
	if m["status"] != "operational" || m["version"] != "test" {
		t.Errorf("body = %v", m)
	}
	if _, ok := m["endpoints"].([]any); !ok {
		t.Errorf("endpoints missing: %v", m)
	}
}

func TestReady(t *testing.T) {
	h := newTestServer(&fakeFeed{}).Handler()

	rec := doJSON(t, h, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if m := decodeMap(t, rec); m["status"] != "ready" {
		t.Errorf("body = %v", m)
	}
}

func TestHealthAllHealthy(t *testing.T) {
	egress := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer egress.Close()

	srv := NewServer(Config{
		Version:  "test",
		Feed:     &fakeFeed{},
		Registry: metrics.NewRegistry(),
		Runs:     fakeRuns{},
		Health: HealthConfig{
			DB:          pingOK{},
			ProxyCount:  func() int { return 5 },
			MaxWorkers:  4,
			CleanText:   true,
			Geotagging:  true,
			ImageSearch: false,
			EgressURL:   egress.URL,
		},
	})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decodeMap(t, rec)
	if m["overall"] != "healthy" {
		t.Errorf("overall = %v", m["overall"])
	}
	components, _ := m["components"].(map[string]any)
	for _, name := range []string{"thread_pool", "database", "scraper", "text_cleaner", "geotagger", "image_finder", "outbound_ping"} {
		if _, ok := components[name]; !ok {
			t.Errorf("missing component %q in %v", name, components)
		}
	}
	imageFinder, _ := components["image_finder"].(map[string]any)
	if imageFinder["status"] != "disabled" {
		t.Errorf("image_finder = %v", imageFinder)
	}
	ping, _ := components["outbound_ping"].(map[string]any)
	if ping["status"] != "healthy" {
		t.Errorf("outbound_ping = %v", ping)
	}
}

func TestHealthUnhealthyDatabase(t *testing.T) {
	srv := NewServer(Config{
		Version:  "test",
		Feed:     &fakeFeed{},
		Registry: metrics.NewRegistry(),
		Runs:     fakeRuns{},
		Health:   HealthConfig{DB: pingFail{}, MaxWorkers: 4},
	})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	m := decodeMap(t, rec)
	if m["overall"] != "unhealthy" {
		t.Errorf("overall = %v", m["overall"])
	}
	components, _ := m["components"].(map[string]any)
	db, _ := components["database"].(map[string]any)
	if db["status"] != "unhealthy" || db["details"] != "database is locked" {
		t.Errorf("database = %v", db)
	}
}

func TestHealthEgressDisabledWithoutURL(t *testing.T) {
	h := newTestServer(&fakeFeed{}).Handler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	m := decodeMap(t, rec)
	components, _ := m["components"].(map[string]any)
	ping, _ := components["outbound_ping"].(map[string]any)
	if ping["status"] != "disabled" {
		t.Errorf("outbound_ping = %v", ping)
	}
}

func TestStats(t *testing.T) {
	registry := metrics.NewRegistry()
	registry.RecordRun(10, 8, 2)

	srv := NewServer(Config{
		Version:  "test",
		Feed:     &fakeFeed{},
		Registry: registry,
		Runs:     fakeRuns{},
		Health:   HealthConfig{DB: pingOK{}, MaxWorkers: 7},
	})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decodeMap(t, rec)
	pipeline, _ := m["pipeline"].(map[string]any)
	if pipeline["articles_processed"] != float64(10) {
		t.Errorf("pipeline = %v", pipeline)
	}
	pool, _ := m["thread_pool"].(map[string]any)
	if pool["max_workers"] != float64(7) {
		t.Errorf("thread_pool = %v", pool)
	}
	if _, ok := m["uptime_sec"].(float64); !ok {
		t.Errorf("uptime_sec missing: %v", m)
	}
}
