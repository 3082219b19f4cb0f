package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/logger"
	"github.com/pfrederiksen/ticketscout/internal/normalize"
	"github.com/pfrederiksen/ticketscout/internal/proxy"
	"github.com/pfrederiksen/ticketscout/internal/ratelimit"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptJSON = "application/json,text/plain;q=0.9,*/*;q=0.8"
)

// Config tunes the fetcher.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgents   []string
	// Transport is used for direct connections. Proxied requests get their
	// own transport per proxy. Defaults to a clone of http.DefaultTransport.
	Transport http.RoundTripper
}

// RawDocument is a fetched response body with its metadata.
type RawDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Proxy       string
	FetchedAt   time.Time
	Truncated   bool
}

// Fetcher throttles and performs GET requests for adapters.
type Fetcher struct {
	cfg     Config
	limiter *ratelimit.Limiter
	proxies *proxy.Rotator
	log     *logger.Logger

	mu         sync.Mutex
	transports map[*proxy.Proxy]*http.Transport
}

// New creates a fetcher. A nil limiter gets an in-memory one; a nil rotator
// means every request connects directly.
func New(cfg Config, limiter *ratelimit.Limiter, proxies *proxy.Rotator, log *logger.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{
		cfg:        cfg,
		limiter:    limiter,
		proxies:    proxies,
		log:        log,
		transports: make(map[*proxy.Proxy]*http.Transport),
	}
}

// Fetch waits for the adapter's rate-limit slot and performs one GET.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, a *source.Adapter) (*RawDocument, error) {
	if _, err := f.Throttle(ctx, a); err != nil {
		return nil, err
	}
	return f.Get(ctx, rawURL, a)
}

// Throttle blocks until the adapter's next request slot and returns how long
// it waited. The slot is consumed even when the wait is cancelled.
func (f *Fetcher) Throttle(ctx context.Context, a *source.Adapter) (time.Duration, error) {
	waited, err := f.limiter.Wait(ctx, a.Key, a.MinInterval())
	if err != nil {
		reason := "rate limit wait failed"
		if ctx.Err() != nil {
			reason = "cancelled during rate limit wait"
		}
		return waited, &Error{Kind: Transient, URL: a.BaseURL, Reason: reason, Err: err}
	}
	if waited > 0 {
		f.log.Debug("rate limit wait", logger.Fields{"platform": a.Key, "waited_ms": waited.Milliseconds()})
	}
	return waited, nil
}

// ProxyHealth reports the usable proxy count and recorded failures for
// platform. ok is false when no proxy pool is configured.
func (f *Fetcher) ProxyHealth(platform string) (healthy, failures int, ok bool) {
	if f.proxies.Len() == 0 {
		return 0, 0, false
	}
	return f.proxies.Healthy(platform), f.proxies.Failures(platform), true
}

// Get performs a single GET attempt for rawURL on behalf of a. It does not
// wait for the rate limiter; use Fetch or call Throttle first.
func (f *Fetcher) Get(ctx context.Context, rawURL string, a *source.Adapter) (*RawDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{Kind: Permanent, URL: rawURL, Reason: "malformed url", Err: err}
	}

	p := f.proxies.Next(a.Key)
	client := &http.Client{Transport: f.transportFor(p)}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: Permanent, URL: rawURL, Reason: "creating request", Err: err}
	}
	f.setHeaders(req, a)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		fe := classifyTransportError(reqCtx, rawURL, err)
		if fe.Transient() {
			f.proxies.ReportFailure(a.Key, p)
		}
		f.log.Debug("request failed", logger.Fields{"platform": a.Key, "url": rawURL, "proxy": p.String(), "kind": string(fe.Kind)})
		return nil, fe
	}
	defer resp.Body.Close()

	body, truncated, err := readBody(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		f.proxies.ReportFailure(a.Key, p)
		return nil, classifyTransportError(reqCtx, rawURL, err)
	}

	if fe := classifyStatus(rawURL, resp); fe != nil {
		if fe.Transient() {
			f.proxies.ReportFailure(a.Key, p)
		}
		return nil, fe
	}

	if !a.SkipBotCheck && !isJSON(resp.Header.Get("Content-Type")) && looksLikeChallenge(body) {
		f.proxies.ReportFailure(a.Key, p)
		return nil, &Error{Kind: Transient, URL: rawURL, StatusCode: resp.StatusCode, Reason: "bot challenge detected"}
	}

	f.proxies.ReportSuccess(a.Key, p)
	if truncated {
		f.log.Warn("response body truncated", logger.Fields{"platform": a.Key, "url": rawURL, "limit_bytes": f.cfg.MaxBodyBytes})
	}
	f.log.Debug("fetched", logger.Fields{
		"platform":    a.Key,
		"url":         rawURL,
		"status":      resp.StatusCode,
		"bytes":       len(body),
		"proxy":       p.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return &RawDocument{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Proxy:       p.String(),
		FetchedAt:   time.Now().UTC(),
		Truncated:   truncated,
	}, nil
}

func (f *Fetcher) setHeaders(req *http.Request, a *source.Adapter) {
	req.Header.Set("User-Agent", f.userAgent())
	if a.Extraction.Format == source.FormatJSON {
		req.Header.Set("Accept", acceptJSON)
	} else {
		req.Header.Set("Accept", acceptHTML)
	}
	req.Header.Set("Accept-Language", normalize.AcceptLanguage(a.Locale))
	req.Header.Set("Cache-Control", "no-cache")
}

func (f *Fetcher) userAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return DefaultUserAgent
	}
	return f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
}

func (f *Fetcher) transportFor(p *proxy.Proxy) http.RoundTripper {
	if p == nil {
		return f.cfg.Transport
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.transports[p]; ok {
		return t
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = http.ProxyURL(p.URL)
	f.transports[p] = t
	return t
}

func readBody(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

func classifyTransportError(ctx context.Context, rawURL string, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: Transient, URL: rawURL, Reason: "timeout", Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: Transient, URL: rawURL, Reason: "cancelled", Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return &Error{Kind: Permanent, URL: rawURL, Reason: "unknown host", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: Transient, URL: rawURL, Reason: "timeout", Err: err}
	}
	return &Error{Kind: Transient, URL: rawURL, Reason: "connection error", Err: err}
}

func classifyStatus(rawURL string, resp *http.Response) *Error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &Error{
			Kind:       Transient,
			URL:        rawURL,
			StatusCode: code,
			Reason:     "rate limited by server",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	case code >= 500:
		return &Error{Kind: Transient, URL: rawURL, StatusCode: code, Reason: "server error"}
	}
	return &Error{Kind: Permanent, URL: rawURL, StatusCode: code, Reason: "unexpected status"}
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

var challengeMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("cf-challenge"),
	[]byte("cf-browser-verification"),
	[]byte("checking your browser"),
	[]byte("verify you are human"),
	[]byte("unusual traffic"),
	[]byte("_incapsula_resource"),
	[]byte("access denied"),
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

// looksLikeChallenge reports whether a 2xx body is an anti-bot interstitial
// rather than content.
func looksLikeChallenge(body []byte) bool {
	head := body
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	lower := bytes.ToLower(head)
	for _, m := range challengeMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return len(body) < 500 && bytes.Contains(lower, []byte("<script"))
}
