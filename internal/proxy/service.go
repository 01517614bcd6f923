// Package proxy maintains the pool of outbound HTTP proxies: provider fetch,
// liveness validation, and a cron-scheduled background refresh.
package proxy

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Lister is the provider surface the service depends on.
type Lister interface {
	Start(ctx context.Context) error
	List(ctx context.Context) ([]string, error)
}

// Validator filters a fetched list down to live proxies.
type Validator interface {
	Validate(ctx context.Context, proxies []string) []string
}

// ServiceConfig configures the proxy Service.
type ServiceConfig struct {
	Provider Lister
	Prober   Validator
	// RefreshInterval is the background refresh cadence. Defaults to 180s.
	RefreshInterval time.Duration
	// EmptyRetryDelay is the pause before the single retry when a refresh
	// yields zero live proxies. Defaults to 2s.
	EmptyRetryDelay time.Duration
}

// Service owns the shared proxy cache. Reads snapshot the slice under a short
// lock; the refresher replaces it atomically. One instance lives for the
// whole process.
type Service struct {
	provider Lister
	prober   Validator

	mu        sync.Mutex
	cache     []string
	updatedAt time.Time

	refreshMu       sync.Mutex // serializes refreshes (manual vs scheduled)
	emptyRetryDelay time.Duration

	cron       *cron.Cron
	startOnce  sync.Once
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// NewService creates the service. Background refresh does not run until Start.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 180 * time.Second
	}
	retryDelay := cfg.EmptyRetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	s := &Service{
		provider:        cfg.Provider,
		prober:          cfg.Prober,
		emptyRetryDelay: retryDelay,
		cron:            cron.New(),
		lifeCtx:         lifeCtx,
		lifeCancel:      lifeCancel,
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.refresh(s.lifeCtx); err != nil {
			log.Printf("[proxy] scheduled refresh failed: %v", err)
		}
	}); err != nil {
		log.Printf("[proxy] invalid refresh schedule %q: %v", spec, err)
	}
	return s
}

// Start launches the background refresher. Idempotent.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.cron.Start()
		log.Println("[proxy] background refresher started")
	})
}

// Stop cancels in-flight refreshes and halts the scheduler.
func (s *Service) Stop() {
	s.lifeCancel()
	s.cron.Stop()
}

// PingStart warms the upstream provider, starts the refresher, and fills the
// cache when it is cold so the first run has proxies before the first
// scheduled tick.
func (s *Service) PingStart(ctx context.Context) error {
	if err := s.provider.Start(ctx); err != nil {
		return fmt.Errorf("ping start: %w", err)
	}
	s.Start()
	if _, err := s.Get(ctx, false); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}
	return nil
}

// Get returns the current cache. When the cache is empty or forceRefresh is
// set, it fetches and validates synchronously before returning.
func (s *Service) Get(ctx context.Context, forceRefresh bool) ([]string, error) {
	snapshot := s.Snapshot()
	if len(snapshot) > 0 && !forceRefresh {
		return snapshot, nil
	}
	return s.refresh(ctx)
}

// Snapshot returns a copy of the cache without triggering a refresh.
func (s *Service) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cache))
	copy(out, s.cache)
	return out
}

// Random picks one proxy from the cache. ok is false when the pool is empty.
func (s *Service) Random() (proxy string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) == 0 {
		return "", false
	}
	return s.cache[rand.IntN(len(s.cache))], true
}

// UpdatedAt reports when the cache was last replaced.
func (s *Service) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// refresh fetches, validates, and swaps the cache. When validation leaves
// zero proxies it retries once after a short pause; a second empty result is
// surfaced as an empty list, not an error.
func (s *Service) refresh(ctx context.Context) ([]string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	live, err := s.fetchAndValidate(ctx)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.emptyRetryDelay):
		}
		live, err = s.fetchAndValidate(ctx)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.cache = live
	s.updatedAt = time.Now()
	s.mu.Unlock()

	log.Printf("[proxy] refreshed pool: %d live", len(live))
	return append([]string(nil), live...), nil
}

func (s *Service) fetchAndValidate(ctx context.Context) ([]string, error) {
	fetched, err := s.provider.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return nil, nil
	}
	live := s.prober.Validate(ctx, fetched)
	log.Printf("[proxy] validated pool: %d live / %d fetched", len(live), len(fetched))
	return live, nil
}
