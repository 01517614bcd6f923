// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvConfig holds all environment-variable-driven settings (not hot-updatable).
type EnvConfig struct {
	// Directories
	StateDir string
	BlobDir  string

	// Network
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int

	// Auth (empty key means auth disabled)
	APIKey        string
	RequireAPIKey bool

	// Row store
	DBPath      string
	DBBatchSize int

	// Object store
	BlobBaseURL       string
	BlobBucket        string
	BlobSignedURLs    bool
	BlobSignedURLTTL  time.Duration
	BlobSigningSecret string

	// Pipeline
	MaxWorkers      int
	MaxArticleChars int

	// Outbound HTTP
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// Proxy provider
	ProxyBase             string
	ProxyAPIKey           string
	ProxyStartPath        string
	ProxyListPath         string
	ProxyRefreshInterval  time.Duration
	ProxyProbeURL         string
	ProxyProbeTimeout     time.Duration
	ProxyProbeConcurrency int

	// Feature toggles
	EnableImageSearch   bool
	EnableImageDownload bool
	EnableGeotagging    bool
	EnableCleanText     bool

	// Image download
	ImageDownloadMaxBytes       int
	ImageDownloadMaxConcurrency int

	// Entity recognition
	NEREndpoint   string
	NERAPIToken   string
	NERModel      string
	NERChunkChars int

	// Headless renderer
	BrowserEnabled        bool
	BrowserPageTimeout    time.Duration
	BrowserOverallTimeout time.Duration

	// Health
	EgressCheckURL string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("ENRICHD_STATE_DIR", "/var/lib/enrichd")
	cfg.BlobDir = envStr("ENRICHD_BLOB_DIR", filepath.Join(cfg.StateDir, "blobs"))
	cfg.ListenAddress = strings.TrimSpace(envStr("ENRICHD_LISTEN_ADDRESS", "0.0.0.0"))

	// --- Network ---
	cfg.Port = envInt("ENRICHD_PORT", 8000, &errs)
	cfg.APIMaxBodyBytes = envInt("ENRICHD_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Auth (must be defined; empty means auth disabled) ---
	apiKey, hasAPIKey := os.LookupEnv("ENRICHD_API_KEY")
	cfg.APIKey = apiKey
	cfg.RequireAPIKey = envBool("ENRICHD_REQUIRE_API_KEY", false, &errs)

	// --- Row store ---
	cfg.DBPath = envStr("ENRICHD_DB_PATH", filepath.Join(cfg.StateDir, "enrichd.db"))
	cfg.DBBatchSize = envInt("ENRICHD_DB_BATCH_SIZE", 100, &errs)

	// --- Object store ---
	cfg.BlobBaseURL = strings.TrimRight(envStr("ENRICHD_BLOB_BASE_URL", ""), "/")
	cfg.BlobBucket = envStr("ENRICHD_BLOB_BUCKET", "article-images")
	cfg.BlobSignedURLs = envBool("ENRICHD_BLOB_SIGNED_URLS", false, &errs)
	cfg.BlobSignedURLTTL = envDuration("ENRICHD_BLOB_SIGNED_URL_TTL", time.Hour, &errs)
	cfg.BlobSigningSecret = envStr("ENRICHD_BLOB_SIGNING_SECRET", "")

	// --- Pipeline ---
	cfg.MaxWorkers = envInt("ENRICHD_MAX_WORKERS", 4, &errs)
	cfg.MaxArticleChars = envInt("ENRICHD_MAX_ARTICLE_CHARS", 100000, &errs)

	// --- Outbound HTTP ---
	cfg.RequestTimeout = envDuration("ENRICHD_REQUEST_TIMEOUT", 30*time.Second, &errs)
	cfg.RetryAttempts = envInt("ENRICHD_RETRY_ATTEMPTS", 3, &errs)
	cfg.RetryDelay = envDuration("ENRICHD_RETRY_DELAY", time.Second, &errs)

	// --- Proxy provider ---
	cfg.ProxyBase = strings.TrimRight(envStr("ENRICHD_PROXY_BASE", ""), "/")
	cfg.ProxyAPIKey = envStr("ENRICHD_PROXY_API_KEY", "")
	cfg.ProxyStartPath = envStr("ENRICHD_PROXY_START_PATH", "/start")
	cfg.ProxyListPath = envStr("ENRICHD_PROXY_LIST_PATH", "/proxies")
	cfg.ProxyRefreshInterval = envDuration("ENRICHD_PROXY_REFRESH_INTERVAL", 180*time.Second, &errs)
	cfg.ProxyProbeURL = envStr("ENRICHD_PROXY_PROBE_URL", "https://httpbin.org/ip")
	cfg.ProxyProbeTimeout = envDuration("ENRICHD_PROXY_PROBE_TIMEOUT", 5*time.Second, &errs)
	cfg.ProxyProbeConcurrency = envInt("ENRICHD_PROXY_PROBE_CONCURRENCY", 10, &errs)

	// --- Feature toggles ---
	cfg.EnableImageSearch = envBool("ENRICHD_ENABLE_IMAGE_SEARCH", true, &errs)
	cfg.EnableImageDownload = envBool("ENRICHD_ENABLE_IMAGE_DOWNLOAD", true, &errs)
	cfg.EnableGeotagging = envBool("ENRICHD_ENABLE_GEOTAGGING", true, &errs)
	cfg.EnableCleanText = envBool("ENRICHD_ENABLE_CLEAN_TEXT", true, &errs)

	// --- Image download ---
	cfg.ImageDownloadMaxBytes = envInt("ENRICHD_IMAGE_DOWNLOAD_MAX_BYTES", 5*1024*1024, &errs)
	cfg.ImageDownloadMaxConcurrency = envInt("ENRICHD_IMAGE_DOWNLOAD_MAX_CONCURRENCY", 4, &errs)

	// --- Entity recognition ---
	cfg.NEREndpoint = envStr("ENRICHD_NER_ENDPOINT", "")
	cfg.NERAPIToken = envStr("ENRICHD_NER_API_TOKEN", "")
	cfg.NERModel = envStr("ENRICHD_NER_MODEL", "Davlan/distilbert-base-multilingual-cased-ner-hrl")
	cfg.NERChunkChars = envInt("ENRICHD_NER_CHUNK_CHARS", 20000, &errs)

	// --- Headless renderer ---
	cfg.BrowserEnabled = envBool("ENRICHD_BROWSER_ENABLED", true, &errs)
	cfg.BrowserPageTimeout = envDuration("ENRICHD_BROWSER_PAGE_TIMEOUT", 100*time.Second, &errs)
	cfg.BrowserOverallTimeout = envDuration("ENRICHD_BROWSER_OVERALL_TIMEOUT", 60*time.Second, &errs)

	// --- Health ---
	cfg.EgressCheckURL = envStr("ENRICHD_EGRESS_CHECK_URL", "https://api.ipify.org")

	// --- Validation ---
	if !hasAPIKey {
		errs = append(errs, "ENRICHD_API_KEY must be defined (can be empty)")
	}
	if cfg.RequireAPIKey && cfg.APIKey == "" {
		errs = append(errs, "ENRICHD_API_KEY must not be empty when ENRICHD_REQUIRE_API_KEY is enabled")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "ENRICHD_LISTEN_ADDRESS must not be empty")
	}

	validatePort("ENRICHD_PORT", cfg.Port, &errs)
	validatePositive("ENRICHD_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("ENRICHD_DB_BATCH_SIZE", cfg.DBBatchSize, &errs)
	validatePositive("ENRICHD_MAX_WORKERS", cfg.MaxWorkers, &errs)
	validatePositive("ENRICHD_MAX_ARTICLE_CHARS", cfg.MaxArticleChars, &errs)
	validatePositive("ENRICHD_RETRY_ATTEMPTS", cfg.RetryAttempts, &errs)
	validatePositive("ENRICHD_PROXY_PROBE_CONCURRENCY", cfg.ProxyProbeConcurrency, &errs)
	validatePositive("ENRICHD_IMAGE_DOWNLOAD_MAX_BYTES", cfg.ImageDownloadMaxBytes, &errs)
	validatePositive("ENRICHD_IMAGE_DOWNLOAD_MAX_CONCURRENCY", cfg.ImageDownloadMaxConcurrency, &errs)
	validatePositive("ENRICHD_NER_CHUNK_CHARS", cfg.NERChunkChars, &errs)

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, "ENRICHD_REQUEST_TIMEOUT must be positive")
	}
	if cfg.RetryDelay <= 0 {
		errs = append(errs, "ENRICHD_RETRY_DELAY must be positive")
	}
	if cfg.ProxyRefreshInterval <= 0 {
		errs = append(errs, "ENRICHD_PROXY_REFRESH_INTERVAL must be positive")
	}
	if cfg.ProxyProbeTimeout <= 0 {
		errs = append(errs, "ENRICHD_PROXY_PROBE_TIMEOUT must be positive")
	}
	if cfg.BrowserPageTimeout <= 0 {
		errs = append(errs, "ENRICHD_BROWSER_PAGE_TIMEOUT must be positive")
	}
	if cfg.BrowserOverallTimeout <= 0 {
		errs = append(errs, "ENRICHD_BROWSER_OVERALL_TIMEOUT must be positive")
	}
	if cfg.BlobSignedURLTTL <= 0 {
		errs = append(errs, "ENRICHD_BLOB_SIGNED_URL_TTL must be positive")
	}
	if cfg.BlobSignedURLs && cfg.BlobSigningSecret == "" {
		errs = append(errs, "ENRICHD_BLOB_SIGNING_SECRET must not be empty when ENRICHD_BLOB_SIGNED_URLS is enabled")
	}

	validateURL("ENRICHD_PROXY_BASE", cfg.ProxyBase, &errs)
	validateURL("ENRICHD_PROXY_PROBE_URL", cfg.ProxyProbeURL, &errs)
	validateURL("ENRICHD_NER_ENDPOINT", cfg.NEREndpoint, &errs)
	validateURL("ENRICHD_EGRESS_CHECK_URL", cfg.EgressCheckURL, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

// validateURL accepts empty values; non-empty values must parse as http(s) URLs.
func validateURL(name, value string, errs *[]string) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		*errs = append(*errs, fmt.Sprintf("%s: must be a valid http(s) URL, got %q", name, value))
	}
}
