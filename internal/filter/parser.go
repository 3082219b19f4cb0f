package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

const monthPattern = `(jan|january|feb|february|mar|march|apr|april|may|jun|june|jul|july|aug|august|sep|sept|september|oct|october|nov|november|dec|december)`

var (
	sameMonthRange  = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})\s*-\s*(\d{1,2})$`)
	crossMonthRange = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})\s*-\s*` + monthPattern + `\s+(\d{1,2})$`)
	wholeMonth      = regexp.MustCompile(`(?i)^` + monthPattern + `$`)
	isoRange        = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s*(?:\.\.|/)\s*(\d{4}-\d{2}-\d{2})$`)
)

// ParseDateRange parses a shorthand date range for the --dates flag.
//
// Supported formats:
//   - "Mar 1-15" or "March 1-15"
//   - "March 28 - April 3"
//   - "March" for the whole month
//   - "2026-03-01..2026-03-15"
//
// Months without a year resolve to their next occurrence relative to now;
// a range whose end month is before its start month ends in the next year.
func ParseDateRange(input string, now time.Time) (*time.Time, *time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, fmt.Errorf("date range cannot be empty")
	}

	if m := isoRange.FindStringSubmatch(input); m != nil {
		from, err := time.Parse(event.DateLayout, m[1])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date %q", m[1])
		}
		to, err := time.Parse(event.DateLayout, m[2])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date %q", m[2])
		}
		return checkedRange(from, to)
	}

	if m := sameMonthRange.FindStringSubmatch(input); m != nil {
		month := parseMonth(m[1])
		year := yearFor(month, now)
		from, err := day(year, month, m[2])
		if err != nil {
			return nil, nil, err
		}
		to, err := day(year, month, m[3])
		if err != nil {
			return nil, nil, err
		}
		return checkedRange(from, to)
	}

	if m := crossMonthRange.FindStringSubmatch(input); m != nil {
		m1, m2 := parseMonth(m[1]), parseMonth(m[3])
		y1 := yearFor(m1, now)
		y2 := y1
		if m2 < m1 {
			y2++
		}
		from, err := day(y1, m1, m[2])
		if err != nil {
			return nil, nil, err
		}
		to, err := day(y2, m2, m[4])
		if err != nil {
			return nil, nil, err
		}
		return checkedRange(from, to)
	}

	if m := wholeMonth.FindStringSubmatch(input); m != nil {
		month := parseMonth(m[1])
		year := yearFor(month, now)
		from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		return &from, &to, nil
	}

	return nil, nil, fmt.Errorf("invalid date range %q: use 'Mar 1-15', 'March 28 - April 3', 'March' or '2026-03-01..2026-03-15'", input)
}

func checkedRange(from, to time.Time) (*time.Time, *time.Time, error) {
	if from.After(to) {
		return nil, nil, fmt.Errorf("start date must be before end date")
	}
	return &from, &to, nil
}

func day(year int, month time.Month, s string) (time.Time, error) {
	d, err := strconv.Atoi(s)
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if err != nil || d < 1 || d > last {
		return time.Time{}, fmt.Errorf("invalid day %s for %s", s, month)
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC), nil
}

func parseMonth(name string) time.Month {
	name = strings.ToLower(name)
	if name == "sept" {
		name = "sep"
	}
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if name == full || name == full[:3] {
			return m
		}
	}
	return 0
}

// yearFor returns the year of the next occurrence of month. The current
// month counts as upcoming.
func yearFor(month time.Month, now time.Time) int {
	if month < now.Month() {
		return now.Year() + 1
	}
	return now.Year()
}
