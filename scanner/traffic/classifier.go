// Package traffic turns observed requests into watch list state changes
package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
	"golang.org/x/time/rate"
)

// HighlightColor applied to proxy traffic that hits an unreviewed watch item
const HighlightColor = "cyan"

// Watchlist is the part of the engine the classifier drives
type Watchlist interface {
	Classify(path, fullURL string) bool
	IsAudited(kind auditk.AuditKind, path, fullURL string) bool
	MarkAudited(kind auditk.AuditKind, path, fullURL string) (int, auditk.Outcome)
	MarkAuditedBatch(kind auditk.AuditKind, fullURLs []string) int
}

// Observer is told about every classification
type Observer interface {
	Classified(origin auditk.ToolOrigin, action auditk.ClassifyAction)
}

// Classifier consumes traffic events one at a time. Scanner traffic is
// marked at most at the limiter's rate; the rest is queued and flushed in
// batches.
type Classifier struct {
	watch    Watchlist
	scope    auditk.ScopeService
	limiter  *rate.Limiter
	interval time.Duration
	observer Observer

	mu      sync.Mutex
	pending []string
	queued  map[string]struct{}
}

// New classifier over watch. A nil scope service allows everything.
func New(cfg *auditk.Config, watch Watchlist, scope auditk.ScopeService) *Classifier {
	interval := cfg.ScanMarkInterval
	if interval <= 0 {
		interval = auditk.DefaultScanMarkInterval
	}
	burst := cfg.ScanMarkBurst
	if burst <= 0 {
		burst = 1
	}
	if scope == nil {
		scope = NewScopeService()
	}
	return &Classifier{
		watch:    watch,
		scope:    scope,
		limiter:  rate.NewLimiter(rate.Every(interval), burst),
		interval: interval,
		pending:  make([]string, 0),
		queued:   make(map[string]struct{}),
	}
}

// SetObserver for classification accounting
func (c *Classifier) SetObserver(o Observer) {
	c.observer = o
}

// OnRequest classifies one event. Events that are not requests, or come from
// an untracked tool, are ignored without side effects.
func (c *Classifier) OnRequest(ctx context.Context, evt *auditk.TrafficEvent) *auditk.Classification {
	if evt == nil {
		return &auditk.Classification{Action: auditk.ActIgnored, Outcome: auditk.Success("no event")}
	}
	eventCtx := auditk.NewContext(ctx, evt)
	eventCtx.AddHandler(c.filterOrigin, c.filterScope, c.filterWatched, c.dispatch)
	eventCtx.Next()

	if c.observer != nil {
		c.observer.Classified(evt.Origin, eventCtx.Result.Action)
	}
	return eventCtx.Result
}

func (c *Classifier) filterOrigin(ctx *auditk.Context) {
	evt := ctx.Event
	if evt == nil || !evt.IsRequest || !evt.Origin.Tracked() || evt.URL == "" {
		ctx.Finish(auditk.ActIgnored, auditk.Success("not a tracked request"))
	}
}

func (c *Classifier) filterScope(ctx *auditk.Context) {
	if scope := c.scope.Check(ctx.Event.URL); scope != auditk.InScope {
		ctx.Finish(auditk.ActIgnored, auditk.Success(scope.String()))
	}
}

func (c *Classifier) filterWatched(ctx *auditk.Context) {
	if !c.watch.Classify(ctx.Event.Path(), ctx.Event.URL) {
		ctx.Finish(auditk.ActNotWatched, auditk.Success(""))
	}
}

func (c *Classifier) dispatch(ctx *auditk.Context) {
	evt := ctx.Event
	path := evt.Path()

	switch evt.Origin {
	case auditk.ToolProxy:
		if c.watch.IsAudited(auditk.AuditManual, path, evt.URL) {
			ctx.Finish(auditk.ActAlreadyAudited, auditk.Success(""))
			return
		}
		ctx.Result.Annotation = &auditk.Annotation{Highlight: HighlightColor, Comment: "watch list"}
		ctx.Finish(auditk.ActHighlighted, auditk.Success(""))

	case auditk.ToolRepeater:
		n, outcome := c.watch.MarkAudited(auditk.AuditManual, path, evt.URL)
		if n == 0 {
			ctx.Finish(auditk.ActAlreadyAudited, outcome)
			return
		}
		ctx.Finish(auditk.ActMarkedManual, outcome)

	case auditk.ToolScanner:
		if c.watch.IsAudited(auditk.AuditScanned, path, evt.URL) {
			ctx.Finish(auditk.ActAlreadyAudited, auditk.Success(""))
			return
		}
		if !c.limiter.Allow() {
			c.enqueue(evt.URL)
			ctx.Finish(auditk.ActQueuedScanned, auditk.Success("queued"))
			return
		}
		n, outcome := c.watch.MarkAudited(auditk.AuditScanned, path, evt.URL)
		if n == 0 {
			ctx.Finish(auditk.ActAlreadyAudited, outcome)
			return
		}
		ctx.Finish(auditk.ActMarkedScanned, outcome)
	}
}

func (c *Classifier) enqueue(fullURL string) {
	key := auditk.TrimQuery(fullURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queued[key]; ok {
		return
	}
	c.queued[key] = struct{}{}
	c.pending = append(c.pending, fullURL)
}

// Pending scanned marks waiting for the next flush
func (c *Classifier) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush marks every queued request as scanned and returns how many items changed
func (c *Classifier) Flush() int {
	c.mu.Lock()
	batch := c.pending
	c.pending = make([]string, 0)
	c.queued = make(map[string]struct{})
	c.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	marked := c.watch.MarkAuditedBatch(auditk.AuditScanned, batch)
	log.Debug().Int("queued", len(batch)).Int("marked", marked).Msg("flushed scanned marks")
	return marked
}

// Run flushes the queue every interval until ctx is done, then flushes once more
func (c *Classifier) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Flush()
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}
