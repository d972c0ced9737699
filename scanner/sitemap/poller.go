// Package sitemap pulls known endpoints from the site map provider into the
// watch list
package sitemap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
)

const (
	// BurstThreshold new endpoints in a single poll before the extra delay kicks in
	BurstThreshold = 500
	// DefaultBurstDelay inserted before processing a large delta
	DefaultBurstDelay = 2 * time.Second

	providerAttempts = 3
	providerDelay    = 200 * time.Millisecond
)

// Importer receives new endpoints
type Importer interface {
	ImportEndpointsContext(ctx context.Context, urls []string, source auditk.Source) (int, error)
}

// Poller checks the site map every frequency while enabled. Stopping is
// cooperative: the loop exits after its current sleep.
type Poller struct {
	provider   auditk.SiteMapProvider
	importer   Importer
	baseURL    string
	frequency  time.Duration
	burstDelay time.Duration

	enabled atomic.Bool
	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	seen map[string]struct{}
}

// New poller for the target in cfg
func New(cfg *auditk.Config, provider auditk.SiteMapProvider, importer Importer) *Poller {
	return &Poller{
		provider:   provider,
		importer:   importer,
		baseURL:    cfg.TargetURL,
		frequency:  auditk.NearestPollFrequency(cfg.PollFrequency),
		burstDelay: DefaultBurstDelay,
		seen:       make(map[string]struct{}),
	}
}

// SetFrequency overrides the snapped poll frequency, a running loop picks it
// up after its current sleep
func (p *Poller) SetFrequency(d time.Duration) {
	p.mu.Lock()
	p.frequency = d
	p.mu.Unlock()
}

// SetTarget points the poller at a new base url. Endpoints seen for the
// previous target are forgotten.
func (p *Poller) SetTarget(baseURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.baseURL == baseURL {
		return
	}
	p.baseURL = baseURL
	p.seen = make(map[string]struct{})
}

// Target the poller queries
func (p *Poller) Target() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baseURL
}

func (p *Poller) pollFrequency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frequency
}

// SetBurstDelay overrides the delay used for large deltas
func (p *Poller) SetBurstDelay(d time.Duration) {
	p.burstDelay = d
}

// Enabled reports whether the poller should keep running
func (p *Poller) Enabled() bool {
	return p.enabled.Load()
}

// Start polling in the background. Calling Start on a running poller only
// re-enables it.
func (p *Poller) Start(ctx context.Context) {
	p.enabled.Store(true)
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.run(ctx)
	}()
}

// Stop asks the loop to exit, it returns immediately
func (p *Poller) Stop() {
	p.enabled.Store(false)
}

// Wait for the loop to exit
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	log.Info().Str("target", p.Target()).Dur("frequency", p.pollFrequency()).Msg("site map monitoring started")
	for p.enabled.Load() {
		if n, err := p.PollOnce(ctx); err != nil {
			log.Warn().Err(err).Str("target", p.Target()).Msg("site map poll failed")
		} else if n > 0 {
			log.Info().Int("imported", n).Msg("site map poll imported new endpoints")
		}

		select {
		case <-ctx.Done():
			p.enabled.Store(false)
		case <-time.After(p.pollFrequency()):
		}
	}
	log.Info().Str("target", p.Target()).Msg("site map monitoring stopped")
}

// PollOnce fetches the site map and imports endpoints not seen by a previous
// poll as sitemap-auto
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	entries, err := p.fetch(ctx)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	fresh := make([]string, 0)
	for _, entry := range entries {
		if entry == nil || entry.URL == "" {
			continue
		}
		if _, ok := p.seen[entry.URL]; ok {
			continue
		}
		p.seen[entry.URL] = struct{}{}
		fresh = append(fresh, entry.URL)
	}
	p.mu.Unlock()

	if len(fresh) == 0 {
		return 0, nil
	}
	if len(fresh) > BurstThreshold && p.burstDelay > 0 {
		log.Info().Int("new", len(fresh)).Msg("large site map delta, delaying import")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(p.burstDelay):
		}
	}
	return p.importer.ImportEndpointsContext(ctx, fresh, auditk.SourceSitemapAuto)
}

// Seen is the number of distinct endpoints observed so far
func (p *Poller) Seen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func (p *Poller) fetch(ctx context.Context) ([]*auditk.SiteMapEntry, error) {
	return fetchWithRetry(ctx, p.provider, p.Target())
}

// ImportOnce pulls the site map a single time and imports every endpoint
// with source sitemap
func ImportOnce(ctx context.Context, provider auditk.SiteMapProvider, importer Importer, baseURL string) (int, error) {
	entries, err := fetchWithRetry(ctx, provider, baseURL)
	if err != nil {
		return 0, err
	}
	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry != nil && entry.URL != "" {
			urls = append(urls, entry.URL)
		}
	}
	return importer.ImportEndpointsContext(ctx, urls, auditk.SourceSitemap)
}

func fetchWithRetry(ctx context.Context, provider auditk.SiteMapProvider, baseURL string) ([]*auditk.SiteMapEntry, error) {
	if provider == nil {
		return nil, errors.New("no site map provider")
	}
	var entries []*auditk.SiteMapEntry
	op := func() error {
		var err error
		entries, err = provider.ListKnownEndpoints(ctx, baseURL)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(providerDelay), providerAttempts-1), ctx)
	err := backoff.RetryNotify(op, bo, func(err error, _ time.Duration) {
		log.Debug().Err(err).Str("target", baseURL).Msg("site map provider failed, retrying")
	})
	if err != nil {
		return nil, errors.Wrap(err, "list known endpoints")
	}
	return entries, nil
}
