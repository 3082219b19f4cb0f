// Package proxy hands out egress proxies per request attempt and tracks their
// health per platform.
//
// Selection is round-robin over the configured pool. A proxy that failed for a
// platform is skipped for that platform until its cooldown expires or a
// success is reported. When the pool is empty or every entry is cooling down,
// Next returns nil and the caller connects directly.
package proxy

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// DefaultCooldown is how long a failed proxy is skipped for a platform.
const DefaultCooldown = 5 * time.Minute

// Config describes a proxy pool.
type Config struct {
	List     []string
	Username string
	Password string
	Cooldown time.Duration
}

// Proxy is one egress endpoint.
type Proxy struct {
	URL *url.URL
}

// String returns the proxy address without credentials.
func (p *Proxy) String() string {
	if p == nil || p.URL == nil {
		return ""
	}
	return p.URL.Scheme + "://" + p.URL.Host
}

type healthKey struct {
	platform string
	proxy    int
}

// Rotator selects proxies round-robin and remembers per-platform failures.
// It is safe for concurrent use by several platform scrapes.
type Rotator struct {
	mu       sync.Mutex
	pool     []*Proxy
	index    map[*Proxy]int
	cursor   map[string]int
	until    map[healthKey]time.Time
	failures map[string]int
	cooldown time.Duration
	now      func() time.Time
}

// NewRotator parses the configured proxy list. Credentials, when set, are
// applied to every entry that does not carry its own.
func NewRotator(cfg Config) (*Rotator, error) {
	r := &Rotator{
		index:    make(map[*Proxy]int),
		cursor:   make(map[string]int),
		until:    make(map[healthKey]time.Time),
		failures: make(map[string]int),
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
	if r.cooldown <= 0 {
		r.cooldown = DefaultCooldown
	}

	for _, raw := range cfg.List {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy %q: %w", raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy %q must be an absolute URL", raw)
		}
		if u.User == nil && cfg.Username != "" && cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		}
		p := &Proxy{URL: u}
		r.index[p] = len(r.pool)
		r.pool = append(r.pool, p)
	}
	return r, nil
}

// Len returns the pool size.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.pool)
}

// Next returns the next healthy proxy for platform, or nil for a direct
// connection.
func (r *Rotator) Next(platform string) *Proxy {
	if r == nil || len(r.pool) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	start := r.cursor[platform]
	for i := 0; i < len(r.pool); i++ {
		idx := (start + i) % len(r.pool)
		key := healthKey{platform: platform, proxy: idx}
		if until, ok := r.until[key]; ok {
			if now.Before(until) {
				continue
			}
			delete(r.until, key)
		}
		r.cursor[platform] = idx + 1
		return r.pool[idx]
	}
	return nil
}

// ReportFailure marks p unhealthy for platform until the cooldown expires.
func (r *Rotator) ReportFailure(platform string, p *Proxy) {
	if r == nil || p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[p]
	if !ok {
		return
	}
	r.until[healthKey{platform: platform, proxy: idx}] = r.now().Add(r.cooldown)
	r.failures[platform]++
}

// ReportSuccess clears any unhealthy mark p has for platform.
func (r *Rotator) ReportSuccess(platform string, p *Proxy) {
	if r == nil || p == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.index[p]; ok {
		delete(r.until, healthKey{platform: platform, proxy: idx})
	}
}

// Failures returns how many proxy failures were reported for platform.
func (r *Rotator) Failures(platform string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[platform]
}

// Healthy returns how many proxies are currently usable for platform.
func (r *Rotator) Healthy(platform string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for idx := range r.pool {
		if until, ok := r.until[healthKey{platform: platform, proxy: idx}]; ok && now.Before(until) {
			continue
		}
		n++
	}
	return n
}
