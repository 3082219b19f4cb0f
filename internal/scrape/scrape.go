package scrape

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pfrederiksen/ticketscout/internal/event"
	"github.com/pfrederiksen/ticketscout/internal/extract"
	"github.com/pfrederiksen/ticketscout/internal/fetch"
	"github.com/pfrederiksen/ticketscout/internal/filter"
	"github.com/pfrederiksen/ticketscout/internal/logger"
	"github.com/pfrederiksen/ticketscout/internal/metrics"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second
	// MaxRetryAfter caps how long a server's Retry-After can delay a retry.
	MaxRetryAfter = time.Minute
)

// Config tunes the orchestrator.
type Config struct {
	// MaxRetries is the number of extra attempts after a transient fetch
	// error. Negative disables retries.
	MaxRetries int
	RetryDelay time.Duration
	Observer   Observer
	// Now stamps scraped events; defaults to time.Now.
	Now func() time.Time
}

// Stats describes what happened inside a successful call.
type Stats struct {
	Items    int
	Skipped  int
	Rejected int
	Dropped  map[filter.Reason]int
	Waited   time.Duration
}

// Result is the outcome of a successful scrape call.
type Result struct {
	Platform string
	URL      string
	Events   []*event.Event
	Attempts int
	Stats    Stats
	Duration time.Duration
}

// Orchestrator runs scrapes against the adapters in a registry.
type Orchestrator struct {
	registry  *source.Registry
	fetcher   *fetch.Fetcher
	extractor *extract.Extractor
	validator *filter.Validator
	metrics   *metrics.Metrics
	log       *logger.Logger
	cfg       Config
}

// New creates an orchestrator. A nil logger discards output and nil metrics
// record nothing.
func New(registry *source.Registry, fetcher *fetch.Fetcher, cfg Config, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{
		registry:  registry,
		fetcher:   fetcher,
		extractor: extract.New(log),
		validator: filter.NewValidator(log),
		metrics:   m,
		log:       log,
		cfg:       cfg,
	}
}

// Scrape looks up the adapter for key and scrapes it with the given criteria.
func (o *Orchestrator) Scrape(ctx context.Context, key string, criteria map[string]any) (*Result, error) {
	a, ok := o.registry.Get(key)
	if !ok {
		t := &tracker{platform: key, observe: o.cfg.Observer}
		t.to(Failed)
		o.metrics.ObserveScrape(key, string(FailureUnknownPlatform), 0, 0, o.cfg.Now())
		return nil, &Failure{Kind: FailureUnknownPlatform, Platform: key}
	}
	return o.ScrapeAdapter(ctx, a, criteria)
}

// ScrapeAdapter runs one scrape call for a. The returned error is always a
// *Failure.
func (o *Orchestrator) ScrapeAdapter(ctx context.Context, a *source.Adapter, raw map[string]any) (*Result, error) {
	start := time.Now()
	log := o.log.With(logger.Fields{"platform": a.Key})
	t := &tracker{platform: a.Key, observe: o.cfg.Observer}

	fail := func(kind FailureKind, attempts int, err error) (*Result, error) {
		t.to(Failed)
		o.metrics.ObserveScrape(a.Key, string(kind), 0, 0, o.cfg.Now())
		o.recordProxies(a.Key)
		logger.IncrCounter("scrape." + a.Key + ".failed")
		log.Error("scrape failed", logger.Fields{"kind": string(kind), "attempts": attempts}, err)
		return nil, &Failure{Kind: kind, Platform: a.Key, Attempts: attempts, Err: err}
	}

	if a.Disabled {
		return fail(FailureDisabled, 0, nil)
	}
	criteria, err := source.ParseCriteria(raw)
	if err != nil {
		return fail(FailureInvalidCriteria, 0, err)
	}
	searchURL, err := a.BuildSearchURL(criteria)
	if err != nil {
		return fail(FailureNetwork, 0, &fetch.Error{Kind: fetch.Permanent, URL: a.BaseURL, Reason: "malformed search url", Err: err})
	}
	if ignored := unsupportedCriteria(a, criteria); len(ignored) > 0 {
		log.Debug("platform search ignores criteria", logger.Fields{"criteria": strings.Join(ignored, ",")})
	}

	stats := Stats{}
	doc, attempts, err := o.fetch(ctx, a, searchURL, t, &stats, log)
	if err != nil {
		return fail(FailureNetwork, attempts, err)
	}

	t.to(Parsing)
	records := o.extractor.Extract(doc, a)

	t.to(Normalizing)
	var events []*event.Event
	for rec := range records.All() {
		evt, ok := o.validator.Accept(rec, a, doc.URL, o.cfg.Now())
		if !ok {
			stats.Rejected++
			continue
		}
		events = append(events, evt)
	}
	stats.Items = records.Items()
	stats.Skipped = records.Skipped()

	t.to(Filtering)
	outcome := filter.Apply(events, criteria)
	stats.Dropped = outcome.Dropped

	t.to(Done)
	duration := time.Since(start)
	o.metrics.ObserveScrape(a.Key, "ok", len(outcome.Events), stats.Skipped, o.cfg.Now())
	o.recordProxies(a.Key)
	logger.RecordTiming("scrape."+a.Key, duration)
	logger.AddCounter("scrape."+a.Key+".events", int64(len(outcome.Events)))
	log.Info("scrape complete", logger.Fields{
		"events":      len(outcome.Events),
		"items":       stats.Items,
		"skipped":     stats.Skipped,
		"rejected":    stats.Rejected,
		"dropped":     outcome.DroppedTotal(),
		"attempts":    attempts,
		"duration_ms": duration.Milliseconds(),
	})

	return &Result{
		Platform: a.Key,
		URL:      searchURL,
		Events:   outcome.Events,
		Attempts: attempts,
		Stats:    stats,
		Duration: duration,
	}, nil
}

// fetch performs the throttled GET with retries. It returns the number of
// GET attempts made.
func (o *Orchestrator) fetch(ctx context.Context, a *source.Adapter, url string, t *tracker, stats *Stats, log *logger.Logger) (*fetch.RawDocument, int, error) {
	var (
		doc      *fetch.RawDocument
		attempts int
		lastErr  error
	)
	bo := &retryAfterBackOff{BackOff: backoff.NewConstantBackOff(o.cfg.RetryDelay)}

	op := func() error {
		t.to(RateLimitWait)
		waited, err := o.fetcher.Throttle(ctx, a)
		stats.Waited += waited
		o.metrics.ObserveWait(a.Key, waited)
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}

		t.to(Fetching)
		attempts++
		begin := time.Now()
		d, err := o.fetcher.Get(ctx, url, a)
		elapsed := time.Since(begin)
		if err != nil {
			lastErr = err
			var fe *fetch.Error
			if errors.As(err, &fe) && fe.Transient() {
				o.metrics.ObserveRequest(a.Key, metrics.OutcomeTransient, elapsed)
				bo.hint = min(fe.RetryAfter, MaxRetryAfter)
				return err
			}
			o.metrics.ObserveRequest(a.Key, metrics.OutcomePermanent, elapsed)
			return backoff.Permanent(err)
		}
		o.metrics.ObserveRequest(a.Key, metrics.OutcomeSuccess, elapsed)
		doc = d
		return nil
	}

	notify := func(err error, wait time.Duration) {
		o.metrics.IncRetry(a.Key)
		log.Warn("transient fetch error, retrying", logger.Fields{
			"attempt":  attempts,
			"retry_in": wait.String(),
			"error":    err.Error(),
		})
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(o.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return nil, attempts, err
	}
	return doc, attempts, nil
}

// retryAfterBackOff stretches the next delay to a server-requested
// Retry-After when that is longer.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next != backoff.Stop && b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// Outcome is one platform's result from ScrapeMany.
type Outcome struct {
	Platform string
	Result   *Result
	Err      error
}

// unsupportedCriteria lists the criteria set in c that the platform's search
// cannot narrow; they are only applied by the filter chain, if at all.
func unsupportedCriteria(a *source.Adapter, c source.Criteria) []string {
	var keys []string
	for _, key := range []string{
		source.CriteriaKeyword, source.CriteriaCity, source.CriteriaVenue, source.CriteriaCategory,
		source.CriteriaDateFrom, source.CriteriaDateTo, source.CriteriaPriceMin, source.CriteriaPriceMax,
	} {
		if c.Value(key, "") != "" && !a.Supports(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (o *Orchestrator) recordProxies(platform string) {
	healthy, failures, ok := o.fetcher.ProxyHealth(platform)
	if !ok {
		return
	}
	o.metrics.ObserveProxies(platform, healthy, failures)
	logger.SetGauge("proxies."+platform+".healthy", float64(healthy))
}

// ScrapeMany scrapes every key concurrently, one goroutine per platform, and
// returns the outcomes sorted by platform key. A failing platform never
// affects the others.
func (o *Orchestrator) ScrapeMany(ctx context.Context, keys []string, criteria map[string]any) []Outcome {
	outcomes := make([]Outcome, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			res, err := o.Scrape(ctx, key, criteria)
			outcomes[i] = Outcome{Platform: key, Result: res, Err: err}
		}(i, key)
	}
	wg.Wait()

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Platform < outcomes[j].Platform
	})
	return outcomes
}
