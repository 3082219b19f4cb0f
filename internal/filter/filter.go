package filter

import (
	"fmt"
	"strings"

	"github.com/pfrederiksen/ticketscout/internal/event"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

// Reason names why an event was dropped.
type Reason string

const (
	ReasonPrice     Reason = "price"
	ReasonVenue     Reason = "venue"
	ReasonCategory  Reason = "category"
	ReasonDate      Reason = "date"
	ReasonDuplicate Reason = "duplicate"
	ReasonLimit     Reason = "limit"
)

// Outcome is the result of applying criteria to a batch of events.
type Outcome struct {
	Events  []*event.Event
	Dropped map[Reason]int
}

// DroppedTotal returns how many events were removed for any reason.
func (o Outcome) DroppedTotal() int {
	n := 0
	for _, c := range o.Dropped {
		n += c
	}
	return n
}

// Apply filters events by c and removes duplicates, keeping extraction
// order. The first occurrence of a (title, venue, date) key wins. At most
// c.MaxResults events are kept; zero means no cap.
func Apply(events []*event.Event, c source.Criteria) Outcome {
	out := Outcome{
		Events:  make([]*event.Event, 0, len(events)),
		Dropped: make(map[Reason]int),
	}
	seen := make(map[string]bool, len(events))

	for _, evt := range events {
		if reason, ok := Matches(evt, c); !ok {
			out.Dropped[reason]++
			continue
		}

		key := DedupKey(evt)
		if seen[key] {
			out.Dropped[ReasonDuplicate]++
			continue
		}
		seen[key] = true

		if c.MaxResults > 0 && len(out.Events) >= c.MaxResults {
			out.Dropped[ReasonLimit]++
			continue
		}
		out.Events = append(out.Events, evt)
	}
	return out
}

// DedupKey is the identity of a listing within one scrape.
func DedupKey(evt *event.Event) string {
	return evt.Key()
}

// Matches reports whether evt satisfies the criteria, and if not, the first
// criterion it failed. Missing event data never excludes an event: unpriced
// events pass price bounds, undated events pass date bounds and
// uncategorized events pass a category filter.
func Matches(evt *event.Event, c source.Criteria) (Reason, bool) {
	if !matchesPrice(evt, c) {
		return ReasonPrice, false
	}
	if c.Venue != "" && !strings.Contains(strings.ToLower(evt.Venue), strings.ToLower(c.Venue)) {
		return ReasonVenue, false
	}
	if c.Category != "" && evt.Category != "" && !strings.EqualFold(c.Category, evt.Category) {
		return ReasonCategory, false
	}
	if evt.EventDate != nil {
		if c.DateFrom != nil && evt.EventDate.Before(event.DateOf(*c.DateFrom)) {
			return ReasonDate, false
		}
		if c.DateTo != nil && evt.EventDate.After(event.DateOf(*c.DateTo)) {
			return ReasonDate, false
		}
	}
	return "", true
}

// matchesPrice keeps events whose price band overlaps the requested band.
func matchesPrice(evt *event.Event, c source.Criteria) bool {
	lo, hi, ok := evt.PriceBand()
	if !ok {
		return true
	}
	if c.PriceMax != nil && lo.GreaterThan(*c.PriceMax) {
		return false
	}
	if c.PriceMin != nil && hi.LessThan(*c.PriceMin) {
		return false
	}
	return true
}

// Describe returns a human-readable summary of the active criteria.
// Format: "Keyword: coldplay | From: Mar 1, 2026 | Price: 20-80 | Max: 10"
func Describe(c source.Criteria) string {
	var parts []string

	if c.Keyword != "" {
		parts = append(parts, fmt.Sprintf("Keyword: %s", c.Keyword))
	}
	if c.City != "" {
		parts = append(parts, fmt.Sprintf("City: %s", c.City))
	}
	if c.Venue != "" {
		parts = append(parts, fmt.Sprintf("Venue: %s", c.Venue))
	}
	if c.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s", c.Category))
	}
	if c.DateFrom != nil {
		parts = append(parts, fmt.Sprintf("From: %s", c.DateFrom.Format("Jan 2, 2006")))
	}
	if c.DateTo != nil {
		parts = append(parts, fmt.Sprintf("To: %s", c.DateTo.Format("Jan 2, 2006")))
	}
	if c.PriceMin != nil || c.PriceMax != nil {
		lo, hi := "", ""
		if c.PriceMin != nil {
			lo = c.PriceMin.String()
		}
		if c.PriceMax != nil {
			hi = c.PriceMax.String()
		}
		parts = append(parts, fmt.Sprintf("Price: %s-%s", lo, hi))
	}
	if c.MaxResults > 0 {
		parts = append(parts, fmt.Sprintf("Max: %d", c.MaxResults))
	}

	if len(parts) == 0 {
		return "No active filters"
	}
	return strings.Join(parts, " | ")
}
