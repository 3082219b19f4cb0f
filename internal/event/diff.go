package event

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot represents the events seen for one platform at a point in time
type Snapshot struct {
	Platform    string            `json:"platform"`
	Events      map[string]*Event `json:"events"`       // keyed by Event.ID
	StableIndex map[string]string `json:"stable_index"` // StableKey → ID mapping
	ChangeLog   []*EventChange    `json:"change_log"`   // Changes detected by the last diff
	UpdatedAt   string            `json:"updated_at"`   // RFC3339 timestamp
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Events:      make(map[string]*Event),
		StableIndex: make(map[string]string),
		ChangeLog:   make([]*EventChange, 0),
	}
}

// StableKey identifies a listing independent of its date, so a rescheduled
// event can be recognised as the same show.
func StableKey(e *Event) string {
	return GenerateID(e.Platform, fold(e.Title)+"|"+fold(e.Venue))
}

// DiffResult contains the results of comparing a scrape against a snapshot
type DiffResult struct {
	NewEvents []*Event
	Changes   []*EventChange
}

// Diff compares current events against a previous snapshot. Events whose ID
// is unknown and whose stable key is unknown are new; events matched by ID or
// stable key are compared field by field.
func Diff(previous *Snapshot, current []*Event) *DiffResult {
	result := &DiffResult{
		NewEvents: make([]*Event, 0),
		Changes:   make([]*EventChange, 0),
	}

	if previous == nil {
		previous = NewSnapshot()
	}

	for _, evt := range current {
		prev, exists := previous.Events[evt.ID]
		if !exists {
			if id, ok := previous.StableIndex[StableKey(evt)]; ok {
				prev = previous.Events[id]
			}
		}
		if prev == nil {
			result.NewEvents = append(result.NewEvents, evt)
			continue
		}
		result.Changes = append(result.Changes, DetectChanges(prev, evt)...)
	}

	sort.SliceStable(result.NewEvents, func(i, j int) bool {
		if result.NewEvents[i].Platform != result.NewEvents[j].Platform {
			return result.NewEvents[i].Platform < result.NewEvents[j].Platform
		}
		return result.NewEvents[i].Title < result.NewEvents[j].Title
	})

	return result
}

// CreateSnapshot creates a snapshot from a list of events
func CreateSnapshot(platform string, events []*Event, updatedAt string) *Snapshot {
	snap := NewSnapshot()
	snap.Platform = platform
	snap.UpdatedAt = updatedAt

	for _, evt := range events {
		snap.Events[evt.ID] = evt
		snap.StableIndex[StableKey(evt)] = evt.ID
	}

	return snap
}

// EventChange represents a change detected in an event
type EventChange struct {
	EventID    string    `json:"event_id"`
	Platform   string    `json:"platform"`
	Title      string    `json:"title"`
	ChangeType string    `json:"change_type"` // "date", "time", "price_min", "price_max", "availability", "url"
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	DetectedAt time.Time `json:"detected_at"`
}

// DetectChanges compares two versions of the same event and returns detected changes
func DetectChanges(previous, current *Event) []*EventChange {
	var changes []*EventChange
	now := time.Now().UTC()

	add := func(kind, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		changes = append(changes, &EventChange{
			EventID:    current.ID,
			Platform:   current.Platform,
			Title:      current.Title,
			ChangeType: kind,
			OldValue:   oldValue,
			NewValue:   newValue,
			DetectedAt: now,
		})
	}

	add("date", dateString(previous.EventDate), dateString(current.EventDate))
	add("time", previous.EventTime, current.EventTime)
	add("price_min", priceString(previous.PriceMin), priceString(current.PriceMin))
	add("price_max", priceString(previous.PriceMax), priceString(current.PriceMax))
	add("availability", string(previous.Availability), string(current.Availability))
	add("url", previous.URL, current.URL)

	return changes
}

func dateString(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func priceString(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.StringFixed(2)
}
