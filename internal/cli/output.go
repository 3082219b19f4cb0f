package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/calendar"
	"github.com/pfrederiksen/ticketscout/internal/event"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
)

// PlatformResult summarizes one platform's scrape
type PlatformResult struct {
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
	Events   int    `json:"events"`
	Skipped  int    `json:"skipped,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// OutputResult contains data to be output
type OutputResult struct {
	ScrapedAt  time.Time            `json:"scraped_at"`
	Platforms  []PlatformResult     `json:"platforms"`
	Events     []*event.Event       `json:"events"`
	EventCount int                  `json:"event_count"`
	Changes    []*event.EventChange `json:"changes,omitempty"`
	NewOnly    bool                 `json:"new_only,omitempty"`
	Filters    string               `json:"filters,omitempty"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	case FormatICS:
		_, err := io.WriteString(w, calendar.GenerateICS(result.Events, result.ScrapedAt))
		return err
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	if result.Events == nil {
		result.Events = []*event.Event{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	eventLabel := "events"
	eventPrefix := ""
	if result.NewOnly {
		eventLabel = "new"
		eventPrefix = "NEW "
	}

	if verbose && result.Filters != "" {
		fmt.Fprintf(w, "Filters: %s\n\n", result.Filters)
	}

	if result.EventCount == 0 {
		if result.NewOnly {
			fmt.Fprintln(w, "No new events found.")
		} else {
			fmt.Fprintln(w, "No events found.")
		}
	}

	for _, evt := range result.Events {
		fmt.Fprintf(w, "%s[%s] %s\n", eventPrefix, evt.Platform, evt.Title)
		fmt.Fprintf(w, "     %s\n", describeEvent(evt))
		if verbose {
			fmt.Fprintf(w, "     ID: %s\n", evt.ID)
			fmt.Fprintf(w, "     URL: %s\n", evt.URL)
			if evt.Category != "" {
				fmt.Fprintf(w, "     Category: %s\n", evt.Category)
			}
		}
	}

	if len(result.Changes) > 0 {
		fmt.Fprintf(w, "\nChanges (%d):\n", len(result.Changes))
		for _, c := range result.Changes {
			fmt.Fprintf(w, "  [%s] %s: %s %s -> %s\n", c.Platform, c.Title, c.ChangeType, orNone(c.OldValue), orNone(c.NewValue))
		}
	}

	for _, p := range result.Platforms {
		if p.Error != "" {
			fmt.Fprintf(w, "\nFAILED %s: %s\n", p.Platform, p.Error)
		}
	}

	if result.EventCount > 0 {
		fmt.Fprintf(w, "\nTotal: %d %s across %d platforms\n", result.EventCount, eventLabel, countPlatforms(result.Events))
	}
	return nil
}

// describeEvent renders the when/where/price line of an event
func describeEvent(evt *event.Event) string {
	var parts []string

	when := "date TBA"
	if evt.EventDate != nil {
		when = evt.EventDate.Time().Format("Mon Jan 2, 2006")
		if evt.EventTime != "" {
			when += " " + evt.EventTime
		}
	}
	parts = append(parts, when)

	if evt.Venue != "" {
		parts = append(parts, evt.Venue)
	}

	if lo, hi, ok := evt.PriceBand(); ok {
		price := lo.StringFixed(2)
		if !hi.Equal(lo) {
			price += "-" + hi.StringFixed(2)
		}
		parts = append(parts, price+" "+evt.Currency)
	}

	parts = append(parts, strings.ReplaceAll(string(evt.Availability), "_", " "))
	return strings.Join(parts, " | ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func countPlatforms(events []*event.Event) int {
	seen := make(map[string]bool)
	for _, e := range events {
		seen[e.Platform] = true
	}
	return len(seen)
}
