package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/event"
	"github.com/pfrederiksen/ticketscout/internal/fetch"
	"github.com/pfrederiksen/ticketscout/internal/filter"
	"github.com/pfrederiksen/ticketscout/internal/logger"
	"github.com/pfrederiksen/ticketscout/internal/metrics"
	"github.com/pfrederiksen/ticketscout/internal/proxy"
	"github.com/pfrederiksen/ticketscout/internal/ratelimit"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

const listingHTML = `<!DOCTYPE html>
<html><body>
<div class="event"><h3>Coldplay</h3><span class="venue">Wembley Stadium</span><span class="date">14/03/2026</span><span class="price">£85.00 - £150.00</span><a href="/e/1">Tickets</a></div>
<div class="event"><h3>Adele</h3><span class="venue">Hyde Park</span><span class="date">21/03/2026</span><span class="price">£95.00</span><span class="status">Sold out</span><a href="/e/2">Tickets</a></div>
<div class="event"><h3> coldplay </h3><span class="venue">Wembley  Stadium</span><span class="date">14/03/2026</span><a href="/e/1b">Tickets</a></div>
<div class="event"><span class="venue">A listing without a title</span></div>
</body></html>`

const htmlAdapter = `
key: %s
base_url: %s
currency: GBP
locale: en-GB
min_request_interval_ms: %d
search:
  path: /search
  params:
    q: keyword
extraction:
  format: html
  items: [div.event]
  fields:
    title: h3
    venue: .venue
    date: .date
    price: .price
    availability: .status
    link:
      selectors: [a]
      attr: href
`

const jsonAdapter = `
key: %s
base_url: %s
currency: EUR
locale: de-DE
min_request_interval_ms: %d
search:
  path: /api/events
  params:
    query: keyword
extraction:
  format: json
  items: [events]
  fields:
    title: name
    venue: venue
    date: date
    price: price
    link: url
`

// server counts requests and replies with the handler's status and body.
type server struct {
	*httptest.Server
	mu     sync.Mutex
	starts []time.Time
	hits   atomic.Int32
}

func newServer(t *testing.T, h func(n int, w http.ResponseWriter, r *http.Request)) *server {
	t.Helper()
	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.starts = append(s.starts, time.Now())
		s.mu.Unlock()
		n := int(s.hits.Add(1))
		h(n, w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func htmlOK(_ int, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, listingHTML)
}

func newOrchestrator(t *testing.T, cfg Config, log *logger.Logger, m *metrics.Metrics, adapters ...string) *Orchestrator {
	t.Helper()
	reg := source.NewRegistry()
	for _, doc := range adapters {
		if err := reg.Merge([]byte(doc)); err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	f := fetch.New(fetch.Config{Timeout: 5 * time.Second}, ratelimit.New(ratelimit.NewMemoryStore()), nil, log)
	return New(reg, f, cfg, log, m)
}

func TestScrape_EndToEnd(t *testing.T) {
	var query string
	srv := newServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		htmlOK(n, w, r)
	})
	m := metrics.New()
	o := newOrchestrator(t, Config{}, nil, m, fmt.Sprintf(htmlAdapter, "testsite", srv.URL, 0))

	res, err := o.Scrape(context.Background(), "testsite", map[string]any{"keyword": "coldplay adele"})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	if query != "coldplay adele" {
		t.Errorf("search query = %q", query)
	}
	if res.URL != srv.URL+"/search?q=coldplay+adele" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2 (one rejected, one duplicate)", len(res.Events))
	}
	if res.Stats.Items != 4 || res.Stats.Rejected != 1 || res.Stats.Dropped[filter.ReasonDuplicate] != 1 {
		t.Errorf("Stats = %+v", res.Stats)
	}

	coldplay, adele := res.Events[0], res.Events[1]
	if coldplay.Title != "Coldplay" || coldplay.URL != srv.URL+"/e/1" {
		t.Errorf("first occurrence should win, got %q %q", coldplay.Title, coldplay.URL)
	}
	if coldplay.EventDate == nil || coldplay.EventDate.String() != "2026-03-14" {
		t.Errorf("EventDate = %v", coldplay.EventDate)
	}
	if coldplay.PriceMin.StringFixed(2) != "85.00" || coldplay.PriceMax.StringFixed(2) != "150.00" {
		t.Errorf("price = %v - %v", coldplay.PriceMin, coldplay.PriceMax)
	}
	if coldplay.Currency != "GBP" || coldplay.Platform != "testsite" || coldplay.ScrapedAt.IsZero() {
		t.Errorf("event = %+v", coldplay)
	}
	if adele.Availability != event.AvailabilitySoldOut {
		t.Errorf("Adele availability = %q", adele.Availability)
	}
}

func TestScrape_MalformedItemIsSkipped(t *testing.T) {
	srv := newServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"events":[
			{"name":"Rammstein","venue":"Olympiastadion","date":"14.03.2026","price":"89,90 €","url":"/e/1"},
			42,
			{"name":"Helene Fischer","venue":"Lanxess Arena","date":"21.03.2026","price":"69,00 €","url":"/e/2"}
		]}`)
	})

	var buf bytes.Buffer
	log := logger.New(logger.LevelWarn, &buf)
	o := newOrchestrator(t, Config{}, log, nil, fmt.Sprintf(jsonAdapter, "jsonsite", srv.URL, 0))

	res, err := o.Scrape(context.Background(), "jsonsite", nil)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Stats.Skipped != 1 {
		t.Errorf("Stats.Skipped = %d, want 1", res.Stats.Skipped)
	}
	if !strings.Contains(buf.String(), "skipping malformed item") {
		t.Errorf("expected a logged skip, got:\n%s", buf.String())
	}
	if res.Events[0].PriceMin.StringFixed(2) != "89.90" {
		t.Errorf("price = %v", res.Events[0].PriceMin)
	}
}

func TestScrape_RateLimitAcrossCalls(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a two second rate-limit window")
	}

	srv := newServer(t, htmlOK)
	o := newOrchestrator(t, Config{}, nil, nil, fmt.Sprintf(htmlAdapter, "slowsite", srv.URL, 2000))

	first := time.Now()
	var wg sync.WaitGroup
	var second *Result
	var secondErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(500*time.Millisecond - time.Since(first))
		second, secondErr = o.Scrape(context.Background(), "slowsite", nil)
	}()

	if _, err := o.Scrape(context.Background(), "slowsite", nil); err != nil {
		t.Fatalf("first Scrape() error = %v", err)
	}
	wg.Wait()
	if secondErr != nil {
		t.Fatalf("second Scrape() error = %v", secondErr)
	}

	srv.mu.Lock()
	starts := append([]time.Time(nil), srv.starts...)
	srv.mu.Unlock()
	if len(starts) != 2 {
		t.Fatalf("server saw %d requests, want 2", len(starts))
	}
	if gap := starts[1].Sub(starts[0]); gap < 1500*time.Millisecond {
		t.Errorf("second fetch started %v after the first, want at least 1.5s", gap)
	}
	if second.Stats.Waited < time.Second {
		t.Errorf("second call waited %v for its slot", second.Stats.Waited)
	}
}

func TestScrape_PermanentErrorIsNotRetried(t *testing.T) {
	srv := newServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	m := metrics.New()
	o := newOrchestrator(t, Config{MaxRetries: 3}, nil, m, fmt.Sprintf(htmlAdapter, "gone", srv.URL, 0))

	_, err := o.Scrape(context.Background(), "gone", nil)

	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureNetwork {
		t.Fatalf("Scrape() error = %v, want network failure", err)
	}
	if f.Attempts != 1 || srv.hits.Load() != 1 {
		t.Errorf("Attempts = %d, server hits = %d; want exactly one request", f.Attempts, srv.hits.Load())
	}
	var fe *fetch.Error
	if !errors.As(err, &fe) || fe.Kind != fetch.Permanent || fe.StatusCode != http.StatusNotFound {
		t.Errorf("wrapped fetch error = %v", fe)
	}
}

func TestScrape_TransientErrorsAreRetried(t *testing.T) {
	srv := newServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		htmlOK(n, w, r)
	})
	m := metrics.New()
	o := newOrchestrator(t, Config{}, nil, m, fmt.Sprintf(htmlAdapter, "flaky", srv.URL, 0))

	res, err := o.Scrape(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.Attempts != 3 || srv.hits.Load() != 3 {
		t.Errorf("Attempts = %d, hits = %d; want 3", res.Attempts, srv.hits.Load())
	}
	if len(res.Events) != 2 {
		t.Errorf("got %d events after recovery", len(res.Events))
	}
}

func TestScrape_RetryBudgetExhausted(t *testing.T) {
	srv := newServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	o := newOrchestrator(t, Config{MaxRetries: 2}, nil, nil, fmt.Sprintf(htmlAdapter, "down", srv.URL, 0))

	_, err := o.Scrape(context.Background(), "down", nil)

	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureNetwork {
		t.Fatalf("Scrape() error = %v, want network failure", err)
	}
	if f.Attempts != 3 || srv.hits.Load() != 3 {
		t.Errorf("Attempts = %d, hits = %d; want 1 + 2 retries", f.Attempts, srv.hits.Load())
	}
	if !fetch.IsTransient(err) {
		t.Errorf("expected the last transient fetch error to be wrapped, got %v", err)
	}
}

func TestScrape_HonorsRetryAfter(t *testing.T) {
	srv := newServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		htmlOK(n, w, r)
	})
	o := newOrchestrator(t, Config{}, nil, nil, fmt.Sprintf(htmlAdapter, "busy", srv.URL, 0))

	start := time.Now()
	res, err := o.Scrape(context.Background(), "busy", nil)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retried after %v, want at least the 1s Retry-After", elapsed)
	}
}

func TestScrape_FailsBeforeNetwork(t *testing.T) {
	srv := newServer(t, htmlOK)
	disabled := fmt.Sprintf(htmlAdapter, "off", srv.URL, 0) + "disabled: true\n"
	o := newOrchestrator(t, Config{}, nil, nil, disabled, fmt.Sprintf(htmlAdapter, "on", srv.URL, 0))

	tests := []struct {
		name     string
		key      string
		criteria map[string]any
		want     FailureKind
	}{
		{"disabled adapter", "off", nil, FailureDisabled},
		{"unknown platform", "nope", nil, FailureUnknownPlatform},
		{"invalid price", "on", map[string]any{"price_min": "cheap"}, FailureInvalidCriteria},
		{"inverted dates", "on", map[string]any{"date_from": "2026-05-01", "date_to": "2026-04-01"}, FailureInvalidCriteria},
		{"negative max results", "on", map[string]any{"max_results": -1}, FailureInvalidCriteria},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Scrape(context.Background(), tt.key, tt.criteria)
			var f *Failure
			if !errors.As(err, &f) || f.Kind != tt.want {
				t.Fatalf("Scrape() error = %v, want %s", err, tt.want)
			}
			if f.Attempts != 0 || f.Platform != tt.key {
				t.Errorf("Failure = %+v", f)
			}
		})
	}

	if srv.hits.Load() != 0 {
		t.Errorf("server saw %d requests, want none", srv.hits.Load())
	}
}

func TestScrape_ObserverSeesTransitions(t *testing.T) {
	srv := newServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		htmlOK(n, w, r)
	})

	var mu sync.Mutex
	var seen []string
	cfg := Config{Observer: func(platform string, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, from.String()+">"+to.String())
	}}
	o := newOrchestrator(t, cfg, nil, nil, fmt.Sprintf(htmlAdapter, "watched", srv.URL, 0))

	if _, err := o.Scrape(context.Background(), "watched", nil); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	want := []string{
		"idle>rate_limit_wait",
		"rate_limit_wait>fetching",
		"fetching>rate_limit_wait",
		"rate_limit_wait>fetching",
		"fetching>parsing",
		"parsing>normalizing",
		"normalizing>filtering",
		"filtering>done",
	}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("transitions:\n got %v\nwant %v", seen, want)
	}
}

func TestScrape_CriteriaFilters(t *testing.T) {
	srv := newServer(t, htmlOK)
	o := newOrchestrator(t, Config{}, nil, nil, fmt.Sprintf(htmlAdapter, "filtered", srv.URL, 0))

	res, err := o.Scrape(context.Background(), "filtered", map[string]any{"price_max": 90, "venue": "wembley"})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].Title != "Coldplay" {
		t.Errorf("events = %v", res.Events)
	}

	res, err = o.Scrape(context.Background(), "filtered", map[string]any{"max_results": 1})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(res.Events) != 1 || res.Stats.Dropped[filter.ReasonLimit] != 1 {
		t.Errorf("max_results: %d events, dropped %v", len(res.Events), res.Stats.Dropped)
	}
}

func TestScrapeMany(t *testing.T) {
	ok := newServer(t, htmlOK)
	broken := newServer(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	o := newOrchestrator(t, Config{}, nil, nil,
		fmt.Sprintf(htmlAdapter, "b-ok", ok.URL, 0),
		fmt.Sprintf(htmlAdapter, "a-broken", broken.URL, 0),
	)

	outcomes := o.ScrapeMany(context.Background(), []string{"b-ok", "a-broken", "c-missing"}, nil)
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}

	if outcomes[0].Platform != "a-broken" || outcomes[0].Err == nil {
		t.Errorf("outcome 0 = %+v", outcomes[0])
	}
	if outcomes[1].Platform != "b-ok" || outcomes[1].Err != nil || len(outcomes[1].Result.Events) != 2 {
		t.Errorf("outcome 1 = %+v", outcomes[1])
	}
	var f *Failure
	if !errors.As(outcomes[2].Err, &f) || f.Kind != FailureUnknownPlatform {
		t.Errorf("outcome 2 = %+v", outcomes[2])
	}
}

func TestScrape_CancelledContext(t *testing.T) {
	srv := newServer(t, htmlOK)
	o := newOrchestrator(t, Config{}, nil, nil, fmt.Sprintf(htmlAdapter, "slow", srv.URL, 60000))

	// Take the only slot in the current window.
	if _, err := o.Scrape(context.Background(), "slow", nil); err != nil {
		t.Fatalf("first Scrape() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := o.Scrape(ctx, "slow", nil)

	var f *Failure
	if !errors.As(err, &f) || f.Kind != FailureNetwork || !fetch.IsTransient(err) {
		t.Fatalf("Scrape() error = %v, want transient network failure", err)
	}
	if srv.hits.Load() != 1 {
		t.Errorf("cancelled call reached the server")
	}
}

func TestScrape_LogsCriteriaThePlatformIgnores(t *testing.T) {
	srv := newServer(t, htmlOK)
	var buf bytes.Buffer
	doc := strings.Replace(fmt.Sprintf(htmlAdapter, "testsite", srv.URL, 0), "search:\n", "supported_criteria: [keyword]\nsearch:\n", 1)
	o := newOrchestrator(t, Config{}, logger.New(logger.LevelDebug, &buf), nil, doc)

	if _, err := o.Scrape(context.Background(), "testsite", map[string]any{"keyword": "coldplay", "venue": "Wembley", "price_max": 100}); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "platform search ignores criteria") || !strings.Contains(out, `"criteria":"venue,price_max"`) {
		t.Errorf("log output:\n%s", out)
	}
}

func TestScrape_RecordsProxyHealth(t *testing.T) {
	proxySrv := newServer(t, htmlOK)

	// Nothing listens on the discard port, so the first attempt fails over.
	rot, err := proxy.NewRotator(proxy.Config{List: []string{"http://127.0.0.1:9", proxySrv.URL}, Cooldown: time.Minute})
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}
	reg := source.NewRegistry()
	if err := reg.Merge([]byte(fmt.Sprintf(htmlAdapter, "proxied", "http://tickets.invalid", 0))); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	m := metrics.New()
	f := fetch.New(fetch.Config{Timeout: 2 * time.Second}, nil, rot, nil)
	o := New(reg, f, Config{RetryDelay: 10 * time.Millisecond}, nil, m)

	res, err := o.Scrape(context.Background(), "proxied", nil)
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}

	path := filepath.Join(t.TempDir(), "ticketscout.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`ticketscout_proxies_healthy{platform="proxied"} 1`,
		`ticketscout_proxy_failures{platform="proxied"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestStateString(t *testing.T) {
	if Normalizing.String() != "normalizing" || State(99).String() != "unknown" {
		t.Errorf("unexpected state names")
	}
	if !Done.Terminal() || !Failed.Terminal() || Fetching.Terminal() {
		t.Errorf("unexpected terminal states")
	}
}
