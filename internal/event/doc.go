// Package event defines the normalized event record every source adapter produces.
//
// An Event is the uniform output unit of a scrape: a required title, optional
// venue, calendar date, local time and price band, a closed availability
// taxonomy, an absolute URL and the platform it came from. Events carry a
// deterministic SHA1-based ID derived from the platform and the normalized
// (title, venue, date) key, so the same listing keeps its identity across runs
// and can be diffed against a previous snapshot.
package event
