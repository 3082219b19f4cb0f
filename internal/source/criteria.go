package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

// Criteria keys accepted by ParseCriteria.
const (
	CriteriaKeyword    = "keyword"
	CriteriaCity       = "city"
	CriteriaVenue      = "venue"
	CriteriaCategory   = "category"
	CriteriaDateFrom   = "date_from"
	CriteriaDateTo     = "date_to"
	CriteriaPriceMin   = "price_min"
	CriteriaPriceMax   = "price_max"
	CriteriaMaxResults = "max_results"
)

// DefaultMaxResults caps a scrape when the caller sets no limit.
const DefaultMaxResults = 50

// Criteria is a caller's search request. It is a value type and is not
// modified during a scrape.
type Criteria struct {
	Keyword    string
	City       string
	Venue      string
	Category   string
	DateFrom   *time.Time
	DateTo     *time.Time
	PriceMin   *decimal.Decimal
	PriceMax   *decimal.Decimal
	MaxResults int
}

// ParseCriteria builds Criteria from a loosely typed map. Unknown keys are
// ignored; a recognized key with a value of the wrong shape is an error.
func ParseCriteria(raw map[string]any) (Criteria, error) {
	c := Criteria{MaxResults: DefaultMaxResults}

	for key, v := range raw {
		if v == nil {
			continue
		}
		var err error
		switch key {
		case CriteriaKeyword:
			c.Keyword, err = asString(v)
		case CriteriaCity:
			c.City, err = asString(v)
		case CriteriaVenue:
			c.Venue, err = asString(v)
		case CriteriaCategory:
			c.Category, err = asString(v)
		case CriteriaDateFrom:
			c.DateFrom, err = asDate(v)
		case CriteriaDateTo:
			c.DateTo, err = asDate(v)
		case CriteriaPriceMin:
			c.PriceMin, err = asDecimal(v)
		case CriteriaPriceMax:
			c.PriceMax, err = asDecimal(v)
		case CriteriaMaxResults:
			c.MaxResults, err = asInt(v)
			if err == nil && c.MaxResults < 0 {
				err = fmt.Errorf("must not be negative")
			}
			if c.MaxResults == 0 {
				c.MaxResults = DefaultMaxResults
			}
		}
		if err != nil {
			return Criteria{}, fmt.Errorf("criteria %s: %w", key, err)
		}
	}

	if c.DateFrom != nil && c.DateTo != nil && c.DateFrom.After(*c.DateTo) {
		return Criteria{}, fmt.Errorf("criteria date_from is after date_to")
	}
	if c.PriceMin != nil && c.PriceMax != nil && c.PriceMin.GreaterThan(*c.PriceMax) {
		return Criteria{}, fmt.Errorf("criteria price_min is greater than price_max")
	}
	return c, nil
}

// Value renders one criteria key as a query parameter value. Dates use
// layout. Unset values render as "".
func (c Criteria) Value(key, layout string) string {
	if layout == "" {
		layout = event.DateLayout
	}
	switch key {
	case CriteriaKeyword:
		return c.Keyword
	case CriteriaCity:
		return c.City
	case CriteriaVenue:
		return c.Venue
	case CriteriaCategory:
		return c.Category
	case CriteriaDateFrom:
		if c.DateFrom != nil {
			return c.DateFrom.Format(layout)
		}
	case CriteriaDateTo:
		if c.DateTo != nil {
			return c.DateTo.Format(layout)
		}
	case CriteriaPriceMin:
		if c.PriceMin != nil {
			return c.PriceMin.String()
		}
	case CriteriaPriceMax:
		if c.PriceMax != nil {
			return c.PriceMax.String()
		}
	case CriteriaMaxResults:
		if c.MaxResults > 0 {
			return strconv.Itoa(c.MaxResults)
		}
	}
	return ""
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case fmt.Stringer:
		return strings.TrimSpace(s.String()), nil
	}
	return "", fmt.Errorf("expected a string, got %T", v)
}

func asDate(v any) (*time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return &d, nil
	case event.Date:
		t := d.Time()
		return &t, nil
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return nil, nil
		}
		for _, layout := range []string{event.DateLayout, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return nil, fmt.Errorf("expected a date, got %T", v)
}

func asDecimal(v any) (*decimal.Decimal, error) {
	var d decimal.Decimal
	switch n := v.(type) {
	case decimal.Decimal:
		d = n
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("invalid number %v", n)
		}
		d = decimal.NewFromFloat(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		d = parsed
	default:
		return nil, fmt.Errorf("expected a number, got %T", v)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("must not be negative")
	}
	return &d, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected a whole number, got %v", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}
