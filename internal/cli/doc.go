// Package cli implements the command-line interface for ticketscout.
//
// The cli package provides the Cobra-based CLI with a platforms command that
// lists the configured adapters and a scrape command that runs searches,
// formats output (text/JSON/iCalendar), sorts results, and tracks listings
// across runs. It wires configuration, rate limiting, proxies, metrics and
// storage into the scrape orchestrator.
package cli
