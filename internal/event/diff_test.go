package event

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestEvent(title, venue string, date Date) *Event {
	d := date
	e := &Event{
		Title:        title,
		Venue:        venue,
		EventDate:    &d,
		Platform:     "seetickets",
		Availability: AvailabilityAvailable,
		URL:          "https://www.seetickets.com/e/" + title,
	}
	e.ID = GenerateID(e.Platform, e.Key())
	return e
}

func TestDiff(t *testing.T) {
	evt1 := newTestEvent("Event 1", "Hall A", NewDate(2026, time.April, 4))
	evt2 := newTestEvent("Event 2", "Hall A", NewDate(2026, time.May, 5))
	evt3 := newTestEvent("Event 3", "Hall B", NewDate(2026, time.June, 6))

	previous := CreateSnapshot("seetickets", []*Event{evt1}, time.Now().UTC().Format(time.RFC3339))

	t.Run("finds new events", func(t *testing.T) {
		result := Diff(previous, []*Event{evt1, evt2, evt3})

		if len(result.NewEvents) != 2 {
			t.Fatalf("expected 2 new events, got %d", len(result.NewEvents))
		}
		if result.NewEvents[0].ID != evt2.ID || result.NewEvents[1].ID != evt3.ID {
			t.Errorf("new events out of order: %s, %s", result.NewEvents[0].Title, result.NewEvents[1].Title)
		}
		if len(result.Changes) != 0 {
			t.Errorf("expected no changes, got %d", len(result.Changes))
		}
	})

	t.Run("nil previous treats everything as new", func(t *testing.T) {
		result := Diff(nil, []*Event{evt1, evt2})
		if len(result.NewEvents) != 2 {
			t.Errorf("expected 2 new events, got %d", len(result.NewEvents))
		}
	})

	t.Run("rescheduled event is a change, not new", func(t *testing.T) {
		moved := newTestEvent("Event 1", "Hall A", NewDate(2026, time.April, 11))
		result := Diff(previous, []*Event{moved})

		if len(result.NewEvents) != 0 {
			t.Fatalf("expected 0 new events, got %d", len(result.NewEvents))
		}
		if len(result.Changes) != 1 || result.Changes[0].ChangeType != "date" {
			t.Fatalf("expected one date change, got %+v", result.Changes)
		}
		if result.Changes[0].OldValue != "2026-04-04" || result.Changes[0].NewValue != "2026-04-11" {
			t.Errorf("change values = %q -> %q", result.Changes[0].OldValue, result.Changes[0].NewValue)
		}
	})
}

func TestDetectChanges(t *testing.T) {
	prev := newTestEvent("Show", "Venue", NewDate(2026, time.July, 1))
	p := decimal.RequireFromString("30")
	prev.PriceMin = &p

	cur := newTestEvent("Show", "Venue", NewDate(2026, time.July, 1))
	np := decimal.RequireFromString("45.5")
	cur.PriceMin = &np
	cur.Availability = AvailabilitySoldOut

	changes := DetectChanges(prev, cur)

	kinds := map[string]*EventChange{}
	for _, c := range changes {
		kinds[c.ChangeType] = c
	}

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	if c := kinds["price_min"]; c == nil || c.OldValue != "30.00" || c.NewValue != "45.50" {
		t.Errorf("price_min change = %+v", c)
	}
	if c := kinds["availability"]; c == nil || c.OldValue != "available" || c.NewValue != "sold_out" {
		t.Errorf("availability change = %+v", c)
	}
}

func TestCreateSnapshot(t *testing.T) {
	evt := newTestEvent("Show", "Venue", NewDate(2026, time.July, 1))
	snap := CreateSnapshot("seetickets", []*Event{evt}, "2026-01-01T00:00:00Z")

	if snap.Platform != "seetickets" {
		t.Errorf("Platform = %q", snap.Platform)
	}
	if snap.Events[evt.ID] != evt {
		t.Error("event not indexed by ID")
	}
	if snap.StableIndex[StableKey(evt)] != evt.ID {
		t.Error("event not indexed by stable key")
	}
}
