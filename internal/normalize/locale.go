package normalize

import "strings"

// commaDecimal lists languages that write 10,50 for ten and a half.
var commaDecimal = map[string]bool{
	"de": true, "fr": true, "es": true, "it": true, "pt": true, "nl": true,
	"pl": true, "da": true, "sv": true, "nb": true, "no": true, "fi": true,
	"cs": true, "sk": true, "tr": true, "ru": true,
}

// Language returns the lower-case language subtag of locale.
func Language(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	lang, _, _ = strings.Cut(lang, "_")
	return strings.ToLower(strings.TrimSpace(lang))
}

// Region returns the upper-case region subtag of locale, or "".
func Region(locale string) string {
	locale = strings.ReplaceAll(locale, "_", "-")
	_, region, ok := strings.Cut(locale, "-")
	if !ok {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(region))
}

// UsesDecimalComma reports whether the locale's decimal separator is a comma.
func UsesDecimalComma(locale string) bool {
	return commaDecimal[Language(locale)]
}

// AcceptLanguage builds an Accept-Language header value for locale, always
// falling back to English.
func AcceptLanguage(locale string) string {
	lang := Language(locale)
	if lang == "" || lang == "en" {
		if r := Region(locale); r != "" {
			return "en-" + r + ",en;q=0.9"
		}
		return "en-US,en;q=0.9"
	}
	if r := Region(locale); r != "" {
		return lang + "-" + r + "," + lang + ";q=0.9,en;q=0.8"
	}
	return lang + ",en;q=0.8"
}
