package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setEnvs sets multiple env vars and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// requiredEnvs returns the minimum env vars needed for LoadEnvConfig to succeed.
func requiredEnvs() map[string]string {
	return map[string]string{
		"ENRICHD_API_KEY": "feed-secret",
	}
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	setEnvs(t, requiredEnvs())

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Directories
	assertEqual(t, "StateDir", cfg.StateDir, "/var/lib/enrichd")
	assertEqual(t, "BlobDir", cfg.BlobDir, "/var/lib/enrichd/blobs")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "0.0.0.0")

	// Network
	assertEqual(t, "Port", cfg.Port, 8000)
	assertEqual(t, "APIMaxBodyBytes", cfg.APIMaxBodyBytes, 1<<20)

	// Auth
	assertEqual(t, "APIKey", cfg.APIKey, "feed-secret")
	assertEqual(t, "RequireAPIKey", cfg.RequireAPIKey, false)

	// Row store
	assertEqual(t, "DBPath", cfg.DBPath, "/var/lib/enrichd/enrichd.db")
	assertEqual(t, "DBBatchSize", cfg.DBBatchSize, 100)

	// Object store
	assertEqual(t, "BlobBaseURL", cfg.BlobBaseURL, "")
	assertEqual(t, "BlobBucket", cfg.BlobBucket, "article-images")
	assertEqual(t, "BlobSignedURLs", cfg.BlobSignedURLs, false)
	assertEqual(t, "BlobSignedURLTTL", cfg.BlobSignedURLTTL, time.Hour)

	// Pipeline
	assertEqual(t, "MaxWorkers", cfg.MaxWorkers, 4)
	assertEqual(t, "MaxArticleChars", cfg.MaxArticleChars, 100000)

	// Outbound HTTP
	assertEqual(t, "RequestTimeout", cfg.RequestTimeout, 30*time.Second)
	assertEqual(t, "RetryAttempts", cfg.RetryAttempts, 3)
	assertEqual(t, "RetryDelay", cfg.RetryDelay, time.Second)

	// Proxy provider
	assertEqual(t, "ProxyBase", cfg.ProxyBase, "")
	assertEqual(t, "ProxyStartPath", cfg.ProxyStartPath, "/start")
	assertEqual(t, "ProxyListPath", cfg.ProxyListPath, "/proxies")
	assertEqual(t, "ProxyRefreshInterval", cfg.ProxyRefreshInterval, 180*time.Second)
	assertEqual(t, "ProxyProbeURL", cfg.ProxyProbeURL, "https://httpbin.org/ip")
	assertEqual(t, "ProxyProbeTimeout", cfg.ProxyProbeTimeout, 5*time.Second)
	assertEqual(t, "ProxyProbeConcurrency", cfg.ProxyProbeConcurrency, 10)

	// Feature toggles
	assertEqual(t, "EnableImageSearch", cfg.EnableImageSearch, true)
	assertEqual(t, "EnableImageDownload", cfg.EnableImageDownload, true)
	assertEqual(t, "EnableGeotagging", cfg.EnableGeotagging, true)
	assertEqual(t, "EnableCleanText", cfg.EnableCleanText, true)

	// Image download
	assertEqual(t, "ImageDownloadMaxBytes", cfg.ImageDownloadMaxBytes, 5*1024*1024)
	assertEqual(t, "ImageDownloadMaxConcurrency", cfg.ImageDownloadMaxConcurrency, 4)

	// Entity recognition
	assertEqual(t, "NEREndpoint", cfg.NEREndpoint, "")
	assertEqual(t, "NERModel", cfg.NERModel, "Davlan/distilbert-base-multilingual-cased-ner-hrl")
	assertEqual(t, "NERChunkChars", cfg.NERChunkChars, 20000)

	// Headless renderer
	assertEqual(t, "BrowserEnabled", cfg.BrowserEnabled, true)
	assertEqual(t, "BrowserPageTimeout", cfg.BrowserPageTimeout, 100*time.Second)
	assertEqual(t, "BrowserOverallTimeout", cfg.BrowserOverallTimeout, 60*time.Second)

	// Health
	assertEqual(t, "EgressCheckURL", cfg.EgressCheckURL, "https://api.ipify.org")
}

func TestLoadEnvConfig_EnvOverrides(t *testing.T) {
	envs := requiredEnvs()
	envs["ENRICHD_STATE_DIR"] = "/tmp/enrichd"
	envs["ENRICHD_LISTEN_ADDRESS"] = "127.0.0.1"
	envs["ENRICHD_PORT"] = "9000"
	envs["ENRICHD_MAX_WORKERS"] = "8"
	envs["ENRICHD_DB_PATH"] = "/tmp/feeds.db"
	envs["ENRICHD_BLOB_BASE_URL"] = "https://cdn.example.com/"
	envs["ENRICHD_BLOB_BUCKET"] = "imgs"
	envs["ENRICHD_REQUEST_TIMEOUT"] = "45s"
	envs["ENRICHD_PROXY_BASE"] = "https://proxies.example.com/v1/"
	envs["ENRICHD_PROXY_REFRESH_INTERVAL"] = "5m"
	envs["ENRICHD_PROXY_PROBE_CONCURRENCY"] = "20"
	envs["ENRICHD_ENABLE_IMAGE_SEARCH"] = "false"
	envs["ENRICHD_IMAGE_DOWNLOAD_MAX_BYTES"] = "1048576"
	envs["ENRICHD_NER_ENDPOINT"] = "http://ner.internal:8080/predict"
	envs["ENRICHD_NER_CHUNK_CHARS"] = "10000"
	envs["ENRICHD_BROWSER_ENABLED"] = "false"
	setEnvs(t, envs)

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "StateDir", cfg.StateDir, "/tmp/enrichd")
	assertEqual(t, "BlobDir", cfg.BlobDir, "/tmp/enrichd/blobs")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "127.0.0.1")
	assertEqual(t, "Port", cfg.Port, 9000)
	assertEqual(t, "MaxWorkers", cfg.MaxWorkers, 8)
	assertEqual(t, "DBPath", cfg.DBPath, "/tmp/feeds.db")
	assertEqual(t, "BlobBaseURL", cfg.BlobBaseURL, "https://cdn.example.com")
	assertEqual(t, "BlobBucket", cfg.BlobBucket, "imgs")
	assertEqual(t, "RequestTimeout", cfg.RequestTimeout, 45*time.Second)
	assertEqual(t, "ProxyBase", cfg.ProxyBase, "https://proxies.example.com/v1")
	assertEqual(t, "ProxyRefreshInterval", cfg.ProxyRefreshInterval, 5*time.Minute)
	assertEqual(t, "ProxyProbeConcurrency", cfg.ProxyProbeConcurrency, 20)
	assertEqual(t, "EnableImageSearch", cfg.EnableImageSearch, false)
	assertEqual(t, "ImageDownloadMaxBytes", cfg.ImageDownloadMaxBytes, 1048576)
	assertEqual(t, "NEREndpoint", cfg.NEREndpoint, "http://ner.internal:8080/predict")
	assertEqual(t, "NERChunkChars", cfg.NERChunkChars, 10000)
	assertEqual(t, "BrowserEnabled", cfg.BrowserEnabled, false)
}

func TestLoadEnvConfig_MissingAPIKey(t *testing.T) {
	os.Unsetenv("ENRICHD_API_KEY")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for missing ENRICHD_API_KEY")
	}
	assertContains(t, err.Error(), "ENRICHD_API_KEY must be defined (can be empty)")
}

func TestLoadEnvConfig_EmptyKeyAllowedWhenDefined(t *testing.T) {
	t.Setenv("ENRICHD_API_KEY", "")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "APIKey", cfg.APIKey, "")
}

func TestLoadEnvConfig_RequireKeyWithEmptyKey(t *testing.T) {
	t.Setenv("ENRICHD_API_KEY", "")
	t.Setenv("ENRICHD_REQUIRE_API_KEY", "true")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for empty key with ENRICHD_REQUIRE_API_KEY")
	}
	assertContains(t, err.Error(), "ENRICHD_API_KEY must not be empty when ENRICHD_REQUIRE_API_KEY is enabled")
}

func TestLoadEnvConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad_port", "ENRICHD_PORT", "99999", "ENRICHD_PORT: port must be 1-65535"},
		{"bad_int", "ENRICHD_MAX_WORKERS", "four", "ENRICHD_MAX_WORKERS: invalid integer"},
		{"zero_workers", "ENRICHD_MAX_WORKERS", "0", "ENRICHD_MAX_WORKERS: must be positive"},
		{"bad_duration", "ENRICHD_REQUEST_TIMEOUT", "30", "ENRICHD_REQUEST_TIMEOUT: invalid duration"},
		{"negative_duration", "ENRICHD_PROXY_REFRESH_INTERVAL", "-3m", "ENRICHD_PROXY_REFRESH_INTERVAL must be positive"},
		{"bad_bool", "ENRICHD_ENABLE_GEOTAGGING", "maybe", "ENRICHD_ENABLE_GEOTAGGING: invalid boolean"},
		{"bad_url", "ENRICHD_PROXY_BASE", "not a url", "ENRICHD_PROXY_BASE: must be a valid http(s) URL"},
		{"ftp_url", "ENRICHD_NER_ENDPOINT", "ftp://models.example.com", "ENRICHD_NER_ENDPOINT: must be a valid http(s) URL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setEnvs(t, requiredEnvs())
			t.Setenv(tc.key, tc.value)

			_, err := LoadEnvConfig()
			if err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.value)
			}
			assertContains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadEnvConfig_SignedURLsRequireSecret(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("ENRICHD_BLOB_SIGNED_URLS", "true")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for signed URLs without signing secret")
	}
	assertContains(t, err.Error(), "ENRICHD_BLOB_SIGNING_SECRET must not be empty")

	t.Setenv("ENRICHD_BLOB_SIGNING_SECRET", "s3cr3t-signing-key")
	if _, err := LoadEnvConfig(); err != nil {
		t.Fatalf("unexpected error with secret set: %v", err)
	}
}

func TestLoadEnvConfig_AccumulatesErrors(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("ENRICHD_PORT", "0")
	t.Setenv("ENRICHD_MAX_WORKERS", "-1")
	t.Setenv("ENRICHD_REQUEST_TIMEOUT", "bogus")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected aggregated validation error")
	}
	msg := err.Error()
	assertContains(t, msg, "config validation failed:")
	assertContains(t, msg, "ENRICHD_PORT")
	assertContains(t, msg, "ENRICHD_MAX_WORKERS")
	assertContains(t, msg, "ENRICHD_REQUEST_TIMEOUT")
	if got := strings.Count(msg, "\n"); got < 3 {
		t.Errorf("expected one line per failure, got %d newlines in %q", got, msg)
	}
}

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
