package filter

import (
	"strings"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/event"
	"github.com/pfrederiksen/ticketscout/internal/extract"
	"github.com/pfrederiksen/ticketscout/internal/logger"
	"github.com/pfrederiksen/ticketscout/internal/normalize"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

// Validator converts raw records into events.
type Validator struct {
	log *logger.Logger
}

// NewValidator creates a validator. A nil logger discards output.
func NewValidator(log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Discard()
	}
	return &Validator{log: log}
}

// Accept normalizes rec into an event for adapter a. Records whose title is
// empty after trimming are rejected. sourceURL is the fetched document's URL
// and stands in for a missing link or one that is not http(s), such as
// mailto: or javascript:. scrapedAt is stamped on the event and anchors
// dates written without a year.
func (v *Validator) Accept(rec extract.RawRecord, a *source.Adapter, sourceURL string, scrapedAt time.Time) (*event.Event, bool) {
	title := collapse(rec.Get(source.FieldTitle))
	if title == "" {
		v.log.Debug("rejecting record without title", logger.Fields{"platform": a.Key, "index": rec.Index})
		return nil, false
	}

	evt := &event.Event{
		Title:     title,
		Venue:     collapse(rec.Get(source.FieldVenue)),
		Platform:  a.Key,
		ScrapedAt: scrapedAt.UTC(),
	}

	dateText := rec.Get(source.FieldDate)
	if d, ok := normalize.ParseDateAt(dateText, a.Locale, scrapedAt); ok {
		evt.EventDate = &d
	}
	if t, ok := normalize.ParseTime(rec.Get(source.FieldTime)); ok {
		evt.EventTime = t
	} else if t, ok := normalize.ParseTime(dateText); ok {
		evt.EventTime = t
	}

	priceText := rec.Get(source.FieldPrice)
	price := normalize.ParsePrice(priceText, a.Locale)
	evt.PriceMin, evt.PriceMax = price.Min, price.Max
	evt.Currency = normalize.DetectCurrency(priceText, a.Currency)

	evt.Availability = availability(rec, a, price.Found())

	evt.URL = sourceURL
	if link := strings.TrimSpace(rec.Get(source.FieldLink)); link != "" {
		if u := normalize.ToAbsoluteURL(link, a.BaseURL); normalize.IsWebURL(u) {
			evt.URL = u
		}
	}

	evt.Category = normalize.Categorize(title, rec.Get(source.FieldCategory), a.DefaultCategory)
	evt.ID = event.GenerateID(a.Key, evt.Key())
	return evt, true
}

// availability maps the status text. Adapters that have no status locator
// at all only list buyable shows, so a priced record takes the adapter
// default instead of unknown.
func availability(rec extract.RawRecord, a *source.Adapter, priced bool) event.Availability {
	text := rec.Get(source.FieldAvailability)
	if strings.TrimSpace(text) == "" && priced {
		if _, ok := a.Field(source.FieldAvailability); !ok && a.DefaultAvailability.Valid() {
			return a.DefaultAvailability
		}
	}
	return normalize.ParseAvailability(text, a.Locale, a.DefaultAvailability)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
