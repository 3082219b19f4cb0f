// Package source describes ticket platforms as declarative adapters.
//
// An adapter is plain data loaded from YAML: base URL, locale, currency,
// request interval, a search URL template and extraction rules that map
// event fields to CSS selectors or JSON paths. The builtin adapters are
// embedded in the binary; a config file may add or override entries.
// Behaviour that cannot be expressed as data is attached with
// Registry.SetURLBuilder.
package source
