package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

// Localized month names and abbreviations, mapped to English.
var monthNames = map[string]string{
	// German
	"januar": "January", "jänner": "January", "februar": "February", "märz": "March", "mrz": "March", "mär": "March",
	"mai": "May", "juni": "June", "juli": "July", "oktober": "October", "okt": "October", "dezember": "December", "dez": "December",
	// French
	"janvier": "January", "janv": "January", "février": "February", "fevrier": "February", "févr": "February", "fév": "February",
	"mars": "March", "avril": "April", "avr": "April", "juin": "June", "juillet": "July", "juil": "July",
	"août": "August", "aout": "August", "septembre": "September", "octobre": "October", "novembre": "November", "décembre": "December", "déc": "December",
	// Spanish
	"enero": "January", "ene": "January", "febrero": "February", "marzo": "March", "abril": "April", "abr": "April",
	"mayo": "May", "junio": "June", "julio": "July", "agosto": "August", "ago": "August", "septiembre": "September",
	"setiembre": "September", "octubre": "October", "noviembre": "November", "diciembre": "December", "dic": "December",
	// Italian
	"gennaio": "January", "gen": "January", "febbraio": "February", "aprile": "April", "maggio": "May", "mag": "May",
	"giugno": "June", "giu": "June", "luglio": "July", "lug": "July", "settembre": "September", "set": "September",
	"ottobre": "October", "ott": "October", "dicembre": "December",
	// Portuguese
	"janeiro": "January", "fevereiro": "February", "fev": "February", "março": "March", "maio": "May", "junho": "June",
	"julho": "July", "setembro": "September", "outubro": "October", "out": "October", "novembro": "November", "dezembro": "December",
	// Dutch
	"januari": "January", "februari": "February", "maart": "March", "mrt": "March", "mei": "May", "augustus": "August",
	// English spellings Go's parser does not accept
	"sept": "September",
}

// Weekday names and filler words dropped before parsing.
var dateNoise = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true, "friday": true, "saturday": true, "sunday": true,
	"mon": true, "tue": true, "tues": true, "wed": true, "thu": true, "thur": true, "thurs": true, "fri": true, "sat": true, "sun": true,
	"montag": true, "dienstag": true, "mittwoch": true, "donnerstag": true, "freitag": true, "samstag": true, "sonntag": true,
	"mo": true, "di": true, "mi": true, "do": true, "fr": true, "sa": true, "so": true,
	"lundi": true, "mardi": true, "mercredi": true, "jeudi": true, "vendredi": true, "samedi": true, "dimanche": true,
	"lun": true, "mer": true, "jeu": true, "ven": true, "sam": true, "dim": true,
	"mié": true, "jue": true, "vie": true, "sáb": true, "dom": true, "gio": true, "sab": true,
	"lunes": true, "martes": true, "miércoles": true, "jueves": true, "viernes": true, "sábado": true, "domingo": true,
	"lunedì": true, "martedì": true, "mercoledì": true, "giovedì": true, "venerdì": true, "sabato": true, "domenica": true,
	"segunda": true, "terça": true, "quarta": true, "quinta": true, "sexta": true, "feira": true,
	"maandag": true, "dinsdag": true, "woensdag": true, "donderdag": true, "vrijdag": true, "zaterdag": true, "zondag": true,
	"ma": true, "wo": true, "vr": true, "za": true, "zo": true,
	"de": true, "del": true, "le": true, "the": true, "of": true, "den": true, "am": true,
}

var (
	datePrefix   = regexp.MustCompile(`(?i)^(?:event date|date|when|datum|fecha|data|quand|wann)\s*:?\s*`)
	dateOn       = regexp.MustCompile(`(?i)^on\s+`)
	ordinal      = regexp.MustCompile(`(?i)(\d{1,2})(?:st|nd|rd|th|er|e|º|ª)(\s|,|$)`)
	dayDot       = regexp.MustCompile(`(\d{1,2})\.(\s+\p{L})`)
	wordToken    = regexp.MustCompile(`\p{L}+\.?`)
	isoTime      = regexp.MustCompile(`T\d{2}:\d{2}.*$`)
	trailingTime = regexp.MustCompile(`(?i)\s+(?:um\s+|à\s+|at\s+|(?:alle\s+)?ore\s+|alle\s+|a las\s+|às\s+|om\s+|-\s+|\|\s*)?\d{1,2}(?:[:h]\d{2}|\.\d{2}\s*u[hu]r|\s*u[hu]r|h\b|\s*[ap]\.?m\.?).*$`)
	spaces       = regexp.MustCompile(`\s+`)
)

var isoLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
}

var (
	textualLayouts = []string{
		"2 January 2006",
		"2 Jan 2006",
		"January 2 2006",
		"Jan 2 2006",
		"2 January 06",
		"2 Jan 06",
	}
	yearlessTextual = []string{
		"2 January",
		"2 Jan",
		"January 2",
		"Jan 2",
	}
)

// DateLayouts returns the numeric and textual layouts tried for a locale,
// most specific first. Textual layouts use English month names; localized
// names are translated before matching.
func DateLayouts(locale string) []string {
	var numeric []string
	switch Language(locale) {
	case "de", "pl", "cs", "sk", "ru", "fi", "nb", "no", "da":
		numeric = []string{"02.01.2006", "2.1.2006", "02.01.06", "2.1.06", "02/01/2006"}
	case "nl":
		numeric = []string{"02-01-2006", "2-1-2006", "02/01/2006", "2/1/2006", "02.01.2006"}
	case "sv":
		numeric = []string{"2006-01-02", "02/01/2006", "2/1/2006"}
	case "en":
		if Region(locale) == "US" || Region(locale) == "" {
			numeric = []string{"01/02/2006", "1/2/2006", "01/02/06", "1/2/06", "01-02-2006"}
		} else {
			numeric = []string{"02/01/2006", "2/1/2006", "02/01/06", "2/1/06", "02-01-2006"}
		}
	default:
		numeric = []string{"02/01/2006", "2/1/2006", "02/01/06", "2/1/06", "02-01-2006", "02.01.2006"}
	}
	out := make([]string, 0, len(numeric)+len(textualLayouts)+len(isoLayouts))
	out = append(out, isoLayouts...)
	out = append(out, numeric...)
	out = append(out, textualLayouts...)
	return out
}

func yearlessLayouts(locale string) []string {
	var numeric []string
	switch Language(locale) {
	case "de", "pl", "cs", "sk", "ru", "fi", "nb", "no", "da":
		numeric = []string{"02.01.", "2.1.", "02.01"}
	case "en":
		if Region(locale) == "US" || Region(locale) == "" {
			numeric = []string{"01/02", "1/2"}
		} else {
			numeric = []string{"02/01", "2/1"}
		}
	case "nl":
		numeric = []string{"02-01", "2-1", "02/01"}
	default:
		numeric = []string{"02/01", "2/1"}
	}
	return append(yearlessTextual[:len(yearlessTextual):len(yearlessTextual)], numeric...)
}

// ParseDate parses a listing date using the current time to resolve dates
// written without a year.
func ParseDate(text, locale string) (event.Date, bool) {
	return ParseDateAt(text, locale, time.Now())
}

// ParseDateAt parses a listing date. The locale's layouts are tried first,
// then ISO layouts, then layouts without a year (the next occurrence on or
// after ref), then a free-form parser. The result is a calendar date with
// no time zone; any time of day in the text is ignored.
func ParseDateAt(text, locale string, ref time.Time) (event.Date, bool) {
	cleaned := cleanDate(text)
	if cleaned == "" {
		return event.Date{}, false
	}

	for _, layout := range DateLayouts(locale) {
		if t, err := time.Parse(layout, cleaned); err == nil && plausibleYear(t.Year()) {
			return event.DateOf(t), true
		}
	}

	today := event.DateOf(ref)
	for _, layout := range yearlessLayouts(locale) {
		t, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		return nextOccurrence(today, t.Month(), t.Day())
	}

	return parseFreeForm(text, locale)
}

// nextOccurrence returns the first valid month/day on or after today. The
// search spans eight years so 29 February always finds a leap year.
func nextOccurrence(today event.Date, month time.Month, day int) (event.Date, bool) {
	for year := today.Year; year <= today.Year+8; year++ {
		d := event.NewDate(year, month, day)
		if d.Month != month || d.Day != day || d.Before(today) {
			continue
		}
		return d, true
	}
	return event.Date{}, false
}

func parseFreeForm(text, locale string) (d event.Date, ok bool) {
	defer func() {
		if recover() != nil {
			d, ok = event.Date{}, false
		}
	}()

	raw := strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	if raw == "" {
		return event.Date{}, false
	}
	monthFirst := Language(locale) == "en" && (Region(locale) == "US" || Region(locale) == "")
	t, err := dateparse.ParseIn(raw, time.UTC, dateparse.PreferMonthFirst(monthFirst))
	if err != nil || !plausibleYear(t.Year()) {
		return event.Date{}, false
	}
	return event.DateOf(t), true
}

func plausibleYear(y int) bool {
	return y >= 1900 && y < 2200
}

// cleanDate reduces a date string to "<day> <Month> <year>" or a numeric
// form: prefixes, weekdays, ordinals, connectors and any time of day are
// removed and localized month names are translated to English.
func cleanDate(text string) string {
	s := strings.TrimSpace(spaces.ReplaceAllString(text, " "))
	s = datePrefix.ReplaceAllString(s, "")
	s = dateOn.ReplaceAllString(s, "")
	s = isoTime.ReplaceAllString(s, "")
	s = trailingTime.ReplaceAllString(s, "")
	s = ordinal.ReplaceAllString(s, "$1$2")
	s = dayDot.ReplaceAllString(s, "$1$2")

	s = wordToken.ReplaceAllStringFunc(s, func(word string) string {
		key := strings.ToLower(strings.TrimSuffix(word, "."))
		if dateNoise[key] {
			return ""
		}
		if m, ok := monthNames[key]; ok {
			return m
		}
		return strings.TrimSuffix(word, ".")
	})

	s = strings.NewReplacer(",", " ", "|", " ").Replace(s)
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	return strings.Trim(s, " -–")
}

var (
	isoClock   = regexp.MustCompile(`T(\d{2}):(\d{2})`)
	twelveHour = regexp.MustCompile(`(?i)(?:^|[^\d])(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s?m\b\.?`)
	uhrDotted  = regexp.MustCompile(`(?i)(\d{1,2})\.(\d{2})\s*u[hu]r`)
	clock      = regexp.MustCompile(`(?i)(?:^|[^\d.])(\d{1,2})\s*[:h]\s*(\d{2})`)
	uhrHour    = regexp.MustCompile(`(?i)(?:^|[^\d])(\d{1,2})\s*u[hu]r`)
	frenchHour = regexp.MustCompile(`(?i)(?:^|[^\d])(\d{1,2})\s*h\b`)
)

// ParseTime returns the time of day in text as "HH:MM". It understands
// 24-hour clocks ("20:00", "20h30", "20.30 Uhr", "20.00 uur", "20 Uhr"), 12-hour clocks
// ("8pm", "8:30 p.m.") and ISO timestamps.
func ParseTime(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", false
	}

	if m := isoClock.FindStringSubmatch(s); m != nil {
		return clockString(atoi(m[1]), atoi(m[2]))
	}
	if m := twelveHour.FindStringSubmatch(s); m != nil {
		h, min := atoi(m[1]), atoi(m[2])
		if h < 1 || h > 12 {
			return "", false
		}
		switch strings.ToLower(m[3]) {
		case "a":
			if h == 12 {
				h = 0
			}
		case "p":
			if h != 12 {
				h += 12
			}
		}
		return clockString(h, min)
	}
	if m := uhrDotted.FindStringSubmatch(s); m != nil {
		return clockString(atoi(m[1]), atoi(m[2]))
	}
	if m := clock.FindStringSubmatch(s); m != nil {
		return clockString(atoi(m[1]), atoi(m[2]))
	}
	if m := uhrHour.FindStringSubmatch(s); m != nil {
		return clockString(atoi(m[1]), 0)
	}
	if m := frenchHour.FindStringSubmatch(s); m != nil {
		return clockString(atoi(m[1]), 0)
	}
	return "", false
}

func clockString(h, m int) (string, bool) {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return "", false
	}
	return twoDigits(h) + ":" + twoDigits(m), true
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
