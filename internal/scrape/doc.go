// Package scrape drives one platform scrape from criteria to filtered events.
//
// A call moves through the states
//
//	Idle → RateLimitWait → Fetching → Parsing → Normalizing → Filtering → Done
//
// and can fail only before any network activity (unknown platform, disabled
// adapter, invalid criteria) or while fetching. Transient fetch errors go
// back to RateLimitWait for another attempt until the retry budget is spent;
// permanent errors fail at once. Everything after the fetch degrades to
// fewer events instead of failing.
//
// Calls for different platforms are independent and may run concurrently;
// ScrapeMany runs one goroutine per platform.
package scrape
