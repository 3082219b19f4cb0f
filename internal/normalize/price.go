package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceRange is the price band found in a piece of text. Both bounds are nil
// when no price was found, and equal when exactly one price was found.
type PriceRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Found reports whether any price was parsed.
func (p PriceRange) Found() bool {
	return p.Min != nil
}

var (
	// Leading qualifiers such as "from £25" or "a partir de 10 €".
	priceQualifiers = regexp.MustCompile(`(?i)(?:^|\s)(?:from|starting at|ab|da|desde|a partir de|à partir de|vanaf|od|fra|från|alkaen)(?:\s|$)`)

	// A number grouped with spaces or apostrophes ("1 250,00", "1'250.00")
	// or a plain run of digits with dot and comma separators.
	priceToken = regexp.MustCompile(`\d{1,3}(?:[ '\x{00A0}\x{202F}]\d{3})+(?:[.,]\d+)?|\d[\d.,]*`)

	groupSeparators = strings.NewReplacer(" ", "", "'", "", "\u00a0", "", "\u202f", "")
)

// ParsePrice extracts the price band from text such as "from £25.50",
// "€10,50 - €20,00" or "45 EUR". Currency symbols and qualifiers are
// ignored. With several numbers, the band spans the smallest and largest,
// regardless of the order they appear in.
func ParsePrice(text, locale string) PriceRange {
	text = priceQualifiers.ReplaceAllString(text, " ")
	comma := UsesDecimalComma(locale)

	var lo, hi *decimal.Decimal
	for _, tok := range priceToken.FindAllString(text, -1) {
		v, ok := parseAmount(tok, comma)
		if !ok {
			continue
		}
		if lo == nil || v.LessThan(*lo) {
			d := v
			lo = &d
		}
		if hi == nil || v.GreaterThan(*hi) {
			d := v
			hi = &d
		}
	}
	return PriceRange{Min: lo, Max: hi}
}

// ParseAmount parses a single number written in the locale's convention.
func ParseAmount(text, locale string) (decimal.Decimal, bool) {
	tok := priceToken.FindString(text)
	if tok == "" {
		return decimal.Zero, false
	}
	return parseAmount(tok, UsesDecimalComma(locale))
}

func parseAmount(tok string, comma bool) (decimal.Decimal, bool) {
	tok = groupSeparators.Replace(tok)
	tok = strings.TrimRight(tok, ".,")
	if tok == "" {
		return decimal.Zero, false
	}

	decimalSep, groupSep := ".", ","
	if comma {
		decimalSep, groupSep = ",", "."
	}
	// A lone foreign separator followed by one or two digits can only be a
	// decimal point: JSON APIs send 45.9 regardless of the page locale.
	if !strings.Contains(tok, decimalSep) && strings.Count(tok, groupSep) == 1 {
		if i := strings.Index(tok, groupSep); len(tok)-i-1 <= 2 {
			decimalSep, groupSep = groupSep, decimalSep
		}
	}

	tok = strings.ReplaceAll(tok, groupSep, "")
	if strings.Count(tok, decimalSep) > 1 {
		return decimal.Zero, false
	}
	tok = strings.Replace(tok, decimalSep, ".", 1)

	d, err := decimal.NewFromString(tok)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
