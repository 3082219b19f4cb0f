package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

// DefaultDuration is the assumed length of a timed event.
const DefaultDuration = 3 * time.Hour

// GenerateICS generates an iCalendar (.ics) document with one VEVENT per
// dated event. Events without a date are skipped.
func GenerateICS(events []*event.Event, now time.Time) string {
	var ics strings.Builder

	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//ticketscout//ticketscout//EN\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")

	for _, evt := range events {
		if evt.EventDate == nil {
			continue
		}
		writeEvent(&ics, evt, now)
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

func writeEvent(ics *strings.Builder, evt *event.Event, now time.Time) {
	line := func(s string) {
		ics.WriteString(fold(s))
		ics.WriteString("\r\n")
	}

	line("BEGIN:VEVENT")
	line(fmt.Sprintf("UID:%s@%s.ticketscout", evt.ID, evt.Platform))
	line("DTSTAMP:" + formatICSTime(now))

	// Times are local to the venue, so timed events are written floating.
	if start, ok := startTime(evt); ok {
		line("DTSTART:" + start.Format("20060102T150405"))
		line("DTEND:" + start.Add(DefaultDuration).Format("20060102T150405"))
	} else {
		day := evt.EventDate.Time()
		line("DTSTART;VALUE=DATE:" + day.Format("20060102"))
		line("DTEND;VALUE=DATE:" + day.AddDate(0, 0, 1).Format("20060102"))
	}

	line("SUMMARY:" + escapeICS(evt.Title))
	line("DESCRIPTION:" + escapeICS(description(evt)))
	if evt.Venue != "" {
		line("LOCATION:" + escapeICS(evt.Venue))
	}
	if evt.URL != "" {
		line("URL:" + evt.URL)
	}
	if evt.Category != "" {
		line("CATEGORIES:" + escapeICS(evt.Category))
	}
	line("STATUS:CONFIRMED")
	line("TRANSP:OPAQUE")
	line("END:VEVENT")
}

func startTime(evt *event.Event) (time.Time, bool) {
	if evt.EventTime == "" {
		return time.Time{}, false
	}
	clock, err := time.Parse("15:04", evt.EventTime)
	if err != nil {
		return time.Time{}, false
	}
	d := evt.EventDate
	return time.Date(d.Year, d.Month, d.Day, clock.Hour(), clock.Minute(), 0, 0, time.UTC), true
}

func description(evt *event.Event) string {
	var parts []string
	if lo, hi, ok := evt.PriceBand(); ok {
		price := lo.StringFixed(2)
		if !hi.Equal(lo) {
			price += " - " + hi.StringFixed(2)
		}
		parts = append(parts, fmt.Sprintf("Price: %s %s", price, evt.Currency))
	}
	parts = append(parts, "Availability: "+strings.ReplaceAll(string(evt.Availability), "_", " "))
	parts = append(parts, "Source: "+evt.Platform)
	return strings.Join(parts, "\n")
}

// formatICSTime formats a time.Time as an iCalendar UTC datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// Replace special characters according to RFC 5545
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// fold splits content lines longer than 75 octets, continuing them with a
// leading space. Multi-byte runes are never split.
func fold(s string) string {
	const limit = 75
	if len(s) <= limit {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		size := len(string(r))
		if n+size > limit {
			b.WriteString("\r\n ")
			n = 1
		}
		b.WriteRune(r)
		n += size
	}
	return b.String()
}
