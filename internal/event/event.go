package event

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the closed ticket-status taxonomy.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilitySoldOut   Availability = "sold_out"
	AvailabilityLimited   Availability = "limited"
	AvailabilityNotOnSale Availability = "not_on_sale"
	AvailabilityUnknown   Availability = "unknown"
)

// Valid reports whether a is one of the known statuses.
func (a Availability) Valid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilitySoldOut, AvailabilityLimited,
		AvailabilityNotOnSale, AvailabilityUnknown:
		return true
	}
	return false
}

// Event is one normalized listing.
type Event struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Venue        string           `json:"venue"`
	EventDate    *Date            `json:"event_date,omitempty"`
	EventTime    string           `json:"event_time,omitempty"` // HH:MM, local to the venue
	PriceMin     *decimal.Decimal `json:"price_min,omitempty"`
	PriceMax     *decimal.Decimal `json:"price_max,omitempty"`
	Currency     string           `json:"currency"`
	Availability Availability     `json:"availability"`
	URL          string           `json:"url"`
	Platform     string           `json:"platform"`
	Category     string           `json:"category,omitempty"`
	ScrapedAt    time.Time        `json:"scraped_at"`
}

// GenerateID creates a deterministic ID for an event based on its platform and dedup key
func GenerateID(platform, key string) string {
	h := sha1.New()
	h.Write([]byte(platform + "|" + key))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Key builds the deduplication key of a listing: title, venue and date with
// case and whitespace folded. Two listings with the same key are the same event.
func Key(title, venue string, date *Date) string {
	d := ""
	if date != nil {
		d = date.String()
	}
	return fold(title) + "|" + fold(venue) + "|" + d
}

// Key returns the event's deduplication key.
func (e *Event) Key() string {
	return Key(e.Title, e.Venue, e.EventDate)
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// HasPrice reports whether at least one price bound is known.
func (e *Event) HasPrice() bool {
	return e.PriceMin != nil || e.PriceMax != nil
}

// PriceBand returns the event's price band, filling a missing bound from the other.
// ok is false when the event has no price at all.
func (e *Event) PriceBand() (lo, hi decimal.Decimal, ok bool) {
	switch {
	case e.PriceMin != nil && e.PriceMax != nil:
		return *e.PriceMin, *e.PriceMax, true
	case e.PriceMin != nil:
		return *e.PriceMin, *e.PriceMin, true
	case e.PriceMax != nil:
		return *e.PriceMax, *e.PriceMax, true
	}
	return decimal.Zero, decimal.Zero, false
}

// IsPast checks if an event's date has passed.
// Returns false if the event has no date (safer default).
func (e *Event) IsPast(now time.Time) bool {
	if e.EventDate == nil {
		return false
	}
	today := DateOf(now)
	return e.EventDate.Before(today)
}
