// Package metrics exposes scrape counters and latencies as Prometheus
// collectors on a private registry.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests. The CLI writes the registry to a node_exporter
// textfile after each run.
package metrics
