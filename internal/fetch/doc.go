// Package fetch retrieves source documents over HTTP.
//
// A fetch is two steps. Throttle waits for the platform's rate-limit slot and
// always consumes it, even if the request that follows fails. Get performs a
// single GET through the next healthy proxy (or directly), with a per-request
// timeout and browser-like headers derived from the adapter's locale.
//
// Failures are returned as *Error and classified as transient (timeouts,
// connection errors, 5xx, 429, bot challenges) or permanent (other 4xx,
// unknown hosts, malformed URLs). Retrying is left to the caller.
package fetch
