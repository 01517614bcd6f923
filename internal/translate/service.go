package translate

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sony/gobreaker"
)

const (
	cacheCapacity = 100_000
	callTimeout   = 12 * time.Second

	breakerFailureThreshold = 3
	breakerOpenDuration     = 120 * time.Second
)

// LanguageDetector resolves the source language when callers pass "auto".
type LanguageDetector interface {
	Detect(text string) string
}

// ClientPicker hands out the HTTP client for one provider call. proxy is a
// pool entry or "" for a direct connection.
type ClientPicker func(proxy string) *http.Client

// ServiceConfig configures the translation service.
type ServiceConfig struct {
	// Providers overrides the production cascade (tests).
	Providers []Provider
	Detector  LanguageDetector
	// Clients builds per-proxy HTTP clients. Defaults to ignoring the proxy
	// and using http.DefaultClient.
	Clients ClientPicker
}

// Service is the process-wide translator. Results are cached in an LRU keyed
// by (source, target, text); each provider sits behind a circuit breaker, and
// a provider whose breaker opens is disabled for the rest of the process.
type Service struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	disabled  *xsync.Map[string, struct{}]
	cache     otter.Cache[string, string]
	detector  LanguageDetector
	clients   ClientPicker
}

// NewService builds the translator.
func NewService(cfg ServiceConfig) (*Service, error) {
	providers := cfg.Providers
	if len(providers) == 0 {
		providers = defaultProviders()
	}
	clients := cfg.Clients
	if clients == nil {
		clients = func(string) *http.Client { return http.DefaultClient }
	}

	cache, err := otter.MustBuilder[string, string](cacheCapacity).Build()
	if err != nil {
		return nil, fmt.Errorf("translate: build cache: %w", err)
	}

	s := &Service{
		providers: providers,
		breakers:  make(map[string]*gobreaker.CircuitBreaker, len(providers)),
		disabled:  xsync.NewMap[string, struct{}](),
		cache:     cache,
		detector:  cfg.Detector,
		clients:   clients,
	}

	for _, p := range providers {
		name := p.Name()
		s.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "translate/" + name,
			MaxRequests: 1,
			Timeout:     breakerOpenDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureThreshold
			},
			OnStateChange: func(cbName string, from, to gobreaker.State) {
				log.Printf("[translate] breaker %s: %s -> %s", cbName, from, to)
				if to == gobreaker.StateOpen {
					s.disabled.Store(strings.TrimPrefix(cbName, "translate/"), struct{}{})
				}
			},
		})
	}
	return s, nil
}

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}

// Translate renders text from source (ISO-639-1 or "auto") into target.
// ok is false when every enabled provider failed; Translate never errors.
// proxies, when non-empty, route provider calls through a random pool entry.
func (s *Service) Translate(ctx context.Context, text, source, target string, proxies []string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if target == "" {
		target = "en"
	}
	if source == "" {
		source = "auto"
	}
	if source == "auto" && s.detector != nil {
		if detected := s.detector.Detect(text); detected != "" {
			source = detected
		}
	}
	if source == target {
		return text, true
	}

	key := source + "|" + target + "|" + text
	if cached, ok := s.cache.Get(key); ok {
		return cached, true
	}

	order := rand.Perm(len(s.providers))
	for _, idx := range order {
		p := s.providers[idx]
		name := p.Name()
		if _, off := s.disabled.Load(name); off {
			continue
		}
		if !p.Accepts(text, source, target) {
			continue
		}

		out, err := s.callProvider(ctx, p, text, source, target, proxies)
		if err != nil {
			log.Printf("[translate] %s failed: %v", name, err)
			continue
		}
		s.cache.Set(key, out)
		return out, true
	}
	return "", false
}

func (s *Service) callProvider(ctx context.Context, p Provider, text, source, target string, proxies []string) (string, error) {
	proxy := ""
	if len(proxies) > 0 {
		proxy = proxies[rand.IntN(len(proxies))]
	}
	client := s.clients(proxy)

	result, err := s.breakers[p.Name()].Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		out, err := p.Translate(callCtx, client, text, source, target)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(out) == "" {
			return nil, fmt.Errorf("%s: empty response", p.Name())
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
