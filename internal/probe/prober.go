// Package probe validates outbound proxy liveness with bounded concurrency.
package probe

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/newsgrid/enrichd/internal/outbound"
)

// ProbeFn issues one liveness check through the given proxy. Injectable for
// testing; production uses HTTPProbe.
type ProbeFn func(ctx context.Context, proxy string) error

// Config configures the Prober.
type Config struct {
	// Concurrency bounds in-flight probes. Defaults to 10.
	Concurrency int
	// Timeout is the per-probe budget. Defaults to 5s.
	Timeout time.Duration
	// Probe executes the check. Required.
	Probe ProbeFn
}

// Prober filters a proxy list down to the entries that pass a liveness probe.
type Prober struct {
	sem     chan struct{}
	timeout time.Duration
	probe   ProbeFn
}

// New creates a Prober.
func New(cfg Config) *Prober {
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cfg.Probe == nil {
		panic("probe: Config.Probe is required")
	}
	return &Prober{
		sem:     make(chan struct{}, conc),
		timeout: timeout,
		probe:   cfg.Probe,
	}
}

// Validate probes every proxy and returns the live ones in input order.
// Individual probe failures are dropped, not surfaced.
func (p *Prober) Validate(ctx context.Context, proxies []string) []string {
	if len(proxies) == 0 {
		return nil
	}

	alive := make([]bool, len(proxies))
	var wg sync.WaitGroup
	for i, proxy := range proxies {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return collect(proxies, alive)
		}

		wg.Add(1)
		go func(i int, proxy string) {
			defer wg.Done()
			defer func() { <-p.sem }()

			probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			if err := p.probe(probeCtx, proxy); err != nil {
				log.Printf("[probe] %s failed: %v", proxy, err)
				return
			}
			alive[i] = true
		}(i, proxy)
	}
	wg.Wait()
	return collect(proxies, alive)
}

func collect(proxies []string, alive []bool) []string {
	var out []string
	for i, ok := range alive {
		if ok {
			out = append(out, proxies[i])
		}
	}
	return out
}

// HTTPProbe returns a ProbeFn that fetches probeURL through the proxy using
// the shared client factory. Any 2xx/3xx/4xx response counts as live: the
// proxy relayed traffic, which is all the pool cares about.
func HTTPProbe(factory *outbound.ClientFactory, probeURL string) ProbeFn {
	return func(ctx context.Context, proxy string) error {
		_, err := factory.Fetch(ctx, proxy, probeURL, outbound.FetchOptions{
			MaxBodyBytes: 4096,
		})
		if err != nil {
			return fmt.Errorf("probe %s: %w", proxy, err)
		}
		return nil
	}
}
