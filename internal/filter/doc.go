// Package filter turns raw records into validated events and applies a
// caller's criteria to them.
//
// Validation rejects records without a title and normalizes every other
// field through package normalize. Criteria filtering is applied in a fixed
// order: price band overlap, venue substring, category, date range,
// deduplication by (title, venue, date), and finally the max-results cap, so
// the cap always counts distinct, matching events in extraction order.
//
// Example usage:
//
//	v := filter.NewValidator(log)
//	for rec := range records.All() {
//		if evt, ok := v.Accept(rec, adapter, doc.URL, now); ok {
//			events = append(events, evt)
//		}
//	}
//	out := filter.Apply(events, criteria)
package filter
