package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGenerateID(t *testing.T) {
	id1 := GenerateID("seetickets", "coldplay|wembley|2026-06-01")
	id2 := GenerateID("seetickets", "coldplay|wembley|2026-06-01")

	if id1 != id2 {
		t.Errorf("GenerateID should be deterministic, got different IDs: %s vs %s", id1, id2)
	}

	if len(id1) != 40 { // SHA1 produces 40 hex characters
		t.Errorf("expected ID length of 40, got %d", len(id1))
	}

	if id1 == GenerateID("eventim-de", "coldplay|wembley|2026-06-01") {
		t.Error("IDs from different platforms should differ")
	}
}

func TestKey(t *testing.T) {
	d := NewDate(2026, time.June, 1)
	other := NewDate(2026, time.June, 2)

	tests := []struct {
		name  string
		a, b  string
		same  bool
		dateA *Date
		dateB *Date
	}{
		{"case folded", "Coldplay|Wembley Stadium", "COLDPLAY|wembley stadium", true, &d, &d},
		{"whitespace folded", "Cold  play| Wembley", "Cold play|Wembley ", true, &d, &d},
		{"different date", "Coldplay|Wembley", "Coldplay|Wembley", false, &d, &other},
		{"missing date", "Coldplay|Wembley", "Coldplay|Wembley", false, &d, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pa := strings.SplitN(tt.a, "|", 2)
			pb := strings.SplitN(tt.b, "|", 2)
			ka := Key(pa[0], pa[1], tt.dateA)
			kb := Key(pb[0], pb[1], tt.dateB)
			if (ka == kb) != tt.same {
				t.Errorf("Key(%q) == Key(%q) is %v, want %v", tt.a, tt.b, ka == kb, tt.same)
			}
		})
	}
}

func TestAvailabilityValid(t *testing.T) {
	for _, a := range []Availability{AvailabilityAvailable, AvailabilitySoldOut, AvailabilityLimited, AvailabilityNotOnSale, AvailabilityUnknown} {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if Availability("soldOut").Valid() {
		t.Error("camelCase spelling should not be valid")
	}
}

func TestPriceBand(t *testing.T) {
	ten := decimal.NewFromInt(10)
	twenty := decimal.NewFromInt(20)

	tests := []struct {
		name   string
		min    *decimal.Decimal
		max    *decimal.Decimal
		wantLo string
		wantHi string
		wantOK bool
	}{
		{"both", &ten, &twenty, "10", "20", true},
		{"only min", &ten, nil, "10", "10", true},
		{"only max", nil, &twenty, "20", "20", true},
		{"none", nil, nil, "0", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{PriceMin: tt.min, PriceMax: tt.max}
			lo, hi, ok := e.PriceBand()
			if ok != tt.wantOK || lo.String() != tt.wantLo || hi.String() != tt.wantHi {
				t.Errorf("PriceBand() = (%s, %s, %v), want (%s, %s, %v)", lo, hi, ok, tt.wantLo, tt.wantHi, tt.wantOK)
			}
			if e.HasPrice() != tt.wantOK {
				t.Errorf("HasPrice() = %v, want %v", e.HasPrice(), tt.wantOK)
			}
		})
	}
}

func TestIsPast(t *testing.T) {
	now := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)
	yesterday := NewDate(2026, time.March, 13)
	today := NewDate(2026, time.March, 14)

	if !(&Event{EventDate: &yesterday}).IsPast(now) {
		t.Error("yesterday should be past")
	}
	if (&Event{EventDate: &today}).IsPast(now) {
		t.Error("today should not be past")
	}
	if (&Event{}).IsPast(now) {
		t.Error("undated events should not be past")
	}
}

func TestEventJSONShape(t *testing.T) {
	d := NewDate(2026, time.March, 14)
	min := decimal.RequireFromString("25.50")
	evt := &Event{
		ID:           "abc",
		Title:        "Hamlet",
		Venue:        "Globe",
		EventDate:    &d,
		EventTime:    "19:30",
		PriceMin:     &min,
		PriceMax:     &min,
		Currency:     "GBP",
		Availability: AvailabilityLimited,
		URL:          "https://www.seetickets.com/event/hamlet",
		Platform:     "seetickets",
		ScrapedAt:    time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := map[string]interface{}{
		"event_date":   "2026-03-14",
		"event_time":   "19:30",
		"price_min":    "25.5",
		"availability": "limited",
		"platform":     "seetickets",
		"scraped_at":   "2026-03-01T12:00:00Z",
	}
	for k, v := range want {
		if flat[k] != v {
			t.Errorf("%s = %v, want %v", k, flat[k], v)
		}
	}

	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() into Event error = %v", err)
	}
	if back.EventDate == nil || *back.EventDate != d {
		t.Errorf("EventDate round trip = %v, want %v", back.EventDate, d)
	}
}

func TestDate(t *testing.T) {
	d, err := ParseISODate("2026-02-29")
	if err == nil {
		t.Errorf("2026-02-29 should not parse, got %v", d)
	}

	d, err = ParseISODate(" 2026-03-01 ")
	if err != nil {
		t.Fatalf("ParseISODate() error = %v", err)
	}
	if d.String() != "2026-03-01" {
		t.Errorf("String() = %q", d.String())
	}
	if !NewDate(2026, time.February, 28).Before(d) || !d.After(NewDate(2026, time.February, 28)) {
		t.Error("ordering broken")
	}
	if NewDate(2026, time.January, 32) != NewDate(2026, time.February, 1) {
		t.Error("NewDate should normalize overflow")
	}
	if !(Date{}).IsZero() || d.IsZero() {
		t.Error("IsZero broken")
	}
}
