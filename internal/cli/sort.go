package cli

import (
	"sort"
	"strings"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate     SortOrder = "date"
	SortByTitle    SortOrder = "title"
	SortByPrice    SortOrder = "price"
	SortByPlatform SortOrder = "platform"
)

func validSortOrder(s SortOrder) bool {
	switch s {
	case SortByDate, SortByTitle, SortByPrice, SortByPlatform:
		return true
	}
	return false
}

// sortEvents sorts a slice of events based on the specified sort order
func sortEvents(events []*event.Event, sortOrder SortOrder) {
	switch sortOrder {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortByTitle:
		sort.SliceStable(events, func(i, j int) bool {
			ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
			if ti != tj {
				return ti < tj
			}
			// If titles are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByPrice:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByPrice(events[i], events[j])
		})
	case SortByPlatform:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Platform != events[j].Platform {
				return events[i].Platform < events[j].Platform
			}
			// If platforms are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate compares two events by their date and time
// Returns true if event i should come before event j
func compareByDate(i, j *event.Event) bool {
	// If both dates are known, compare them
	if i.EventDate != nil && j.EventDate != nil {
		if *i.EventDate != *j.EventDate {
			return i.EventDate.Before(*j.EventDate)
		}
		if i.EventTime != j.EventTime {
			return i.EventTime < j.EventTime
		}
	}

	// If only one date is known, put the dated one first
	if i.EventDate != nil && j.EventDate == nil {
		return true
	}
	if i.EventDate == nil && j.EventDate != nil {
		return false
	}

	return strings.ToLower(i.Title) < strings.ToLower(j.Title)
}

// compareByPrice orders by the lower price bound; unpriced events go last
func compareByPrice(i, j *event.Event) bool {
	li, _, oki := i.PriceBand()
	lj, _, okj := j.PriceBand()
	switch {
	case oki && okj:
		if !li.Equal(lj) {
			return li.LessThan(lj)
		}
		return compareByDate(i, j)
	case oki:
		return true
	case okj:
		return false
	}
	return compareByDate(i, j)
}
