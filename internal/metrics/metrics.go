package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ticketscout"

// Request outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
)

// Metrics holds the scrape collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	scrapes     *prometheus.CounterVec
	events      *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	retries     *prometheus.CounterVec
	fetchDur    *prometheus.HistogramVec
	rateWait    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	proxyOK     *prometheus.GaugeVec
	proxyFails  *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "HTTP requests to ticket platforms by outcome",
	}, []string{"platform", "outcome"})
	m.scrapes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scrapes_total",
		Help:      "Completed scrape calls by result",
	}, []string{"platform", "result"})
	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events returned after filtering",
	}, []string{"platform"})
	m.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_skipped_total",
		Help:      "Items dropped because extraction failed",
	}, []string{"platform"})
	m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Fetch attempts retried after a transient failure",
	}, []string{"platform"})
	m.fetchDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time spent in a single fetch attempt",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"platform"})
	m.rateWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for a rate-limit slot",
		Buckets:   []float64{0, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"platform"})
	m.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful scrape",
	}, []string{"platform"})

	m.proxyOK = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "proxies_healthy",
		Help:      "Proxies currently usable for the platform",
	}, []string{"platform"})
	m.proxyFails = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "proxy_failures",
		Help:      "Proxy failures recorded for the platform",
	}, []string{"platform"})

	m.registry.MustRegister(
		m.requests, m.scrapes, m.events, m.skipped, m.retries,
		m.fetchDur, m.rateWait, m.lastSuccess, m.proxyOK, m.proxyFails,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one fetch attempt.
func (m *Metrics) ObserveRequest(platform, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(platform, outcome).Inc()
	m.fetchDur.WithLabelValues(platform).Observe(d.Seconds())
}

// ObserveWait records time spent waiting for the rate limiter.
func (m *Metrics) ObserveWait(platform string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateWait.WithLabelValues(platform).Observe(d.Seconds())
}

// IncRetry counts a retried fetch.
func (m *Metrics) IncRetry(platform string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(platform).Inc()
}

// ObserveScrape records the end of a scrape call. result is "ok" or a
// failure kind; events and skipped are only meaningful for "ok".
func (m *Metrics) ObserveScrape(platform, result string, events, skipped int, at time.Time) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(platform, result).Inc()
	if result != "ok" {
		return
	}
	m.events.WithLabelValues(platform).Add(float64(events))
	m.skipped.WithLabelValues(platform).Add(float64(skipped))
	m.lastSuccess.WithLabelValues(platform).Set(float64(at.Unix()))
}

// ObserveProxies records the proxy pool state for platform.
func (m *Metrics) ObserveProxies(platform string, healthy, failures int) {
	if m == nil {
		return
	}
	m.proxyOK.WithLabelValues(platform).Set(float64(healthy))
	m.proxyFails.WithLabelValues(platform).Set(float64(failures))
}

// WriteTextfile writes every collector in the Prometheus text format to
// path, atomically replacing the file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
