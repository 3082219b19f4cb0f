package normalize

import (
	"regexp"
	"strings"
)

var currencyCode = regexp.MustCompile(`\b(EUR|GBP|USD|AUD|CAD|NZD|CHF|JPY|SEK|NOK|DKK|PLN|CZK|HUF|MXN|BRL)\b`)

// Ordered so that multi-character symbols win over "$".
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"A$", "AUD"},
	{"AU$", "AUD"},
	{"C$", "CAD"},
	{"NZ$", "NZD"},
	{"R$", "BRL"},
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"zł", "PLN"},
	{"Kč", "CZK"},
	{"$", "USD"},
}

// DetectCurrency returns the ISO 4217 code named or symbolized in text, or
// fallback when there is none.
func DetectCurrency(text, fallback string) string {
	if m := currencyCode.FindString(strings.ToUpper(text)); m != "" {
		return m
	}
	for _, cs := range currencySymbols {
		if strings.Contains(text, cs.symbol) {
			return cs.code
		}
	}
	return fallback
}
