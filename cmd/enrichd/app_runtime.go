package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/newsgrid/enrichd/internal/api"
	"github.com/newsgrid/enrichd/internal/blob"
	"github.com/newsgrid/enrichd/internal/buildinfo"
	"github.com/newsgrid/enrichd/internal/config"
	"github.com/newsgrid/enrichd/internal/extract"
	"github.com/newsgrid/enrichd/internal/feed"
	"github.com/newsgrid/enrichd/internal/geotag"
	"github.com/newsgrid/enrichd/internal/images"
	"github.com/newsgrid/enrichd/internal/langdetect"
	"github.com/newsgrid/enrichd/internal/metrics"
	"github.com/newsgrid/enrichd/internal/netutil"
	"github.com/newsgrid/enrichd/internal/nlp"
	"github.com/newsgrid/enrichd/internal/outbound"
	"github.com/newsgrid/enrichd/internal/pipeline"
	"github.com/newsgrid/enrichd/internal/probe"
	"github.com/newsgrid/enrichd/internal/proxy"
	"github.com/newsgrid/enrichd/internal/render"
	"github.com/newsgrid/enrichd/internal/state"
	"github.com/newsgrid/enrichd/internal/translate"
)

type enrichApp struct {
	envCfg     *config.EnvConfig
	runLog     *state.RunLog
	proxySvc   *proxy.Service
	translator *translate.Service
	factory    *outbound.ClientFactory
	apiSrv     *api.Server
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	if envCfg.RequireAPIKey && config.IsWeakKey(envCfg.APIKey) {
		log.Println("Warning: ENRICHD_API_KEY is weak; use a long random value")
	}

	db, err := state.OpenDB(envCfg.DBPath)
	if err != nil {
		return fmt.Errorf("open row store: %w", err)
	}
	if err := state.MigrateDB(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate row store: %w", err)
	}
	log.Println("Row store ready")

	app, err := newEnrichApp(envCfg, db)
	if err != nil {
		_ = db.Close()
		return err
	}

	serverErrCh := app.startServer()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if err := db.Close(); err != nil {
		log.Printf("Row store close error: %v", err)
	}
	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func newEnrichApp(envCfg *config.EnvConfig, db *sql.DB) (*enrichApp, error) {
	app := &enrichApp{envCfg: envCfg}

	feedStore := state.NewFeedStore(db)
	app.runLog = state.NewRunLog(db)

	blobStore, err := blob.NewDiskStore(envCfg.BlobDir, envCfg.BlobBucket, envCfg.BlobBaseURL, blob.SignedURLConfig{
		Enabled: envCfg.BlobSignedURLs,
		Secret:  envCfg.BlobSigningSecret,
		TTL:     envCfg.BlobSignedURLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	log.Println("Blob store ready")

	app.factory = outbound.NewClientFactory()

	provider := &proxy.ProviderClient{
		BaseURL:   envCfg.ProxyBase,
		APIKey:    envCfg.ProxyAPIKey,
		StartPath: envCfg.ProxyStartPath,
		ListPath:  envCfg.ProxyListPath,
	}
	prober := probe.New(probe.Config{
		Concurrency: envCfg.ProxyProbeConcurrency,
		Timeout:     envCfg.ProxyProbeTimeout,
		Probe:       probe.HTTPProbe(app.factory, envCfg.ProxyProbeURL),
	})
	app.proxySvc = proxy.NewService(proxy.ServiceConfig{
		Provider:        provider,
		Prober:          prober,
		RefreshInterval: envCfg.ProxyRefreshInterval,
	})

	detector := langdetect.New()

	app.translator, err = translate.NewService(translate.ServiceConfig{
		Detector: detector,
		Clients: func(proxyAddr string) *http.Client {
			client, err := app.factory.ForProxy(proxyAddr)
			if err != nil {
				return app.factory.Direct()
			}
			return client
		},
	})
	if err != nil {
		return nil, fmt.Errorf("translator: %w", err)
	}

	var renderer extract.Renderer
	if envCfg.BrowserEnabled {
		renderer = render.NewChromeRenderer(render.Config{
			PageTimeout:    envCfg.BrowserPageTimeout,
			OverallTimeout: envCfg.BrowserOverallTimeout,
			UserAgent:      netutil.BrowserUserAgent,
		})
		log.Println("Headless renderer enabled")
	}

	scrapeOpts := outbound.FetchOptions{
		RequireStatusOK: true,
		UserAgent:       netutil.BrowserUserAgent,
	}
	extractor := &extract.Extractor{
		// First attempt goes through the proxy the extractor picked; transient
		// failures rotate to fresh proxies with exponential backoff.
		Fetch: func(ctx context.Context, proxyAddr, rawURL string) ([]byte, error) {
			dl := &netutil.RetryDownloader{
				Direct: netutil.DownloaderFunc(func(ctx context.Context, url string) ([]byte, error) {
					return app.factory.Fetch(ctx, proxyAddr, url, scrapeOpts)
				}),
				Attempts:       envCfg.RetryAttempts,
				BaseDelay:      envCfg.RetryDelay,
				AttemptTimeout: envCfg.RequestTimeout,
				ProxyPicker:    app.proxySvc.Random,
				ProxyFetch: func(ctx context.Context, p, url string) ([]byte, error) {
					return app.factory.Fetch(ctx, p, url, scrapeOpts)
				},
			}
			return dl.Download(ctx, rawURL)
		},
		ProxyPick:    app.proxySvc.Random,
		Renderer:     renderer,
		Cleaner:      &extract.Cleaner{MaxChars: envCfg.MaxArticleChars},
		CleanContent: envCfg.EnableCleanText,
	}

	entityTagger := &nlp.Tagger{
		Recognizer: &nlp.HTTPRecognizer{
			Endpoint: envCfg.NEREndpoint,
			APIToken: envCfg.NERAPIToken,
		},
		Model:      envCfg.NERModel,
		ChunkChars: envCfg.NERChunkChars,
	}

	geoIndex, err := geotag.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("gazetteer: %w", err)
	}
	geoTagger := &geotag.Tagger{Index: geoIndex, ChunkChars: envCfg.NERChunkChars}

	searcher := &images.DuckDuckGoSearcher{
		Factory: app.factory,
		ProxyPick: func() string {
			p, _ := app.proxySvc.Random()
			return p
		},
	}
	registry := metrics.NewRegistry()
	downloader := images.NewDownloader(blobStore, app.factory)
	downloader.MaxBytes = int64(envCfg.ImageDownloadMaxBytes)
	downloader.MaxConcurrency = envCfg.ImageDownloadMaxConcurrency
	downloader.Metrics = registry

	articles := &pipeline.ArticlePipeline{
		Scraper:    extractor,
		Detector:   detector,
		Translator: app.translator,
		Tagger:     entityTagger,
		Geo:        geoTagger,
		Finder:     &images.Finder{Searcher: searcher},
		Downloader: downloader,
		Proxies:    app.proxySvc,
		Toggles: pipeline.Toggles{
			Geotagging:    envCfg.EnableGeotagging,
			ImageSearch:   envCfg.EnableImageSearch,
			ImageDownload: envCfg.EnableImageDownload,
		},
	}

	feedProc := feed.NewProcessor(feedStore, app.runLog, app.proxySvc, articles, envCfg.MaxWorkers)

	app.apiSrv = api.NewServer(api.Config{
		ListenAddress: envCfg.ListenAddress,
		Port:          envCfg.Port,
		Version:       buildinfo.Version,
		APIKey:        envCfg.APIKey,
		RequireAPIKey: envCfg.RequireAPIKey,
		MaxBodyBytes:  int64(envCfg.APIMaxBodyBytes),
		Feed:          feedProc,
		Registry:      registry,
		Runs:          app.runLog,
		Health: api.HealthConfig{
			DB:          db,
			ProxyCount:  func() int { return len(app.proxySvc.Snapshot()) },
			MaxWorkers:  envCfg.MaxWorkers,
			CleanText:   envCfg.EnableCleanText,
			Geotagging:  envCfg.EnableGeotagging,
			ImageSearch: envCfg.EnableImageSearch,
			EgressURL:   envCfg.EgressCheckURL,
			Client:      app.factory.Direct(),
		},
	})

	app.startBackgroundServices()
	return app, nil
}

func (a *enrichApp) startBackgroundServices() {
	a.runLog.Start()
	log.Println("Run log pruner started")

	a.proxySvc.Start()
	log.Println("Proxy refresher started")
}

func (a *enrichApp) startServer() <-chan error {
	serverErrCh := make(chan error, 1)
	go func() {
		addr := net.JoinHostPort(a.envCfg.ListenAddress, strconv.Itoa(a.envCfg.Port))
		log.Printf("enrichd %s listening on http://%s", buildinfo.Version, addr)
		if err := a.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case serverErrCh <- fmt.Errorf("api server: %w", err):
			default:
			}
		}
	}()
	return serverErrCh
}

func waitForShutdown(serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Printf("Received signal %s, shutting down...", sig)
		return nil
	case err := <-serverErrCh:
		log.Printf("Received server runtime error (%v), shutting down...", err)
		return err
	}
}

func (a *enrichApp) shutdown(ctx context.Context) {
	if err := a.apiSrv.Shutdown(ctx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}
	log.Println("API server stopped")

	a.proxySvc.Stop()
	log.Println("Proxy refresher stopped")

	a.translator.Close()
	log.Println("Translator closed")

	a.factory.Close()
	log.Println("Outbound clients closed")

	a.runLog.Stop()
	log.Println("Run log pruner stopped")
	log.Println("Server stopped")
}
