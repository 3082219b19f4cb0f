package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

type vocabulary struct {
	status  event.Availability
	terms   map[string][]string // language → terms; "" holds terms matched for every locale
	pattern *regexp.Regexp
}

// Checked in order: "not yet available" is not on sale rather than sold out
// or available, "almost sold out" is limited, and "not available" must be
// caught before "available".
var availabilityVocab = []vocabulary{
	{
		status: event.AvailabilityNotOnSale,
		terms: map[string][]string{
			"":   {"not yet available", "not available yet", "not yet on sale"},
			"de": {"noch nicht verfügbar", "noch nicht erhältlich"},
			"fr": {"pas encore disponible", "pas encore en vente"},
			"es": {"todavía no disponible", "aún no disponible"},
			"it": {"non ancora disponibile", "non ancora in vendita"},
			"pt": {"ainda não disponível"},
			"nl": {"nog niet beschikbaar", "nog niet verkrijgbaar"},
		},
	},
	{
		status: event.AvailabilityLimited,
		terms: map[string][]string{
			"":   {"limited", "few left", "few tickets", "last tickets", "almost sold out", "selling fast", "low availability", "limitedavailability"},
			"de": {"wenige", "restkarten", "letzte tickets", "fast ausverkauft", "begrenzt"},
			"fr": {"dernières places", "dernieres places", "places limitées", "presque complet"},
			"es": {"últimas entradas", "ultimas entradas", "pocas entradas", "disponibilidad limitada"},
			"it": {"ultimi biglietti", "pochi biglietti", "disponibilità limitata", "quasi esaurito", "quasi esauriti"},
			"pt": {"últimos bilhetes", "poucos bilhetes"},
			"nl": {"laatste kaarten", "beperkt", "bijna uitverkocht"},
		},
		pattern: regexp.MustCompile(`\b(?:only|just)\s+\d+\s+(?:tickets?\s+|seats?\s+)?left\b|\bnur noch \d+|\bplus que \d+|\bquedan \d+|\bnog \d+ (?:kaarten|tickets)`),
	},
	{
		status: event.AvailabilitySoldOut,
		terms: map[string][]string{
			"":   {"sold out", "sold-out", "soldout", "outofstock", "out of stock", "unavailable", "not available", "no tickets", "waitlist", "wait list"},
			"de": {"ausverkauft", "nicht verfügbar", "keine tickets", "restlos"},
			"fr": {"complet", "épuisé", "epuise", "indisponible", "guichets fermés"},
			"es": {"agotado", "agotadas", "no disponible", "completo"},
			"it": {"esaurito", "esauriti", "non disponibile"},
			"pt": {"esgotado", "esgotados", "indisponível"},
			"nl": {"uitverkocht", "niet beschikbaar"},
		},
	},
	{
		status: event.AvailabilityNotOnSale,
		terms: map[string][]string{
			"":   {"not on sale", "not yet on sale", "on sale soon", "coming soon", "presale", "pre-sale", "preorder", "on sale from", "cancelled", "canceled", "eventcancelled", "postponed", "eventpostponed", "discontinued"},
			"de": {"vorverkauf startet", "bald erhältlich", "demnächst", "abgesagt", "verschoben", "vorverkauf beginnt"},
			"fr": {"bientôt", "prochainement", "mise en vente", "annulé", "reporté"},
			"es": {"próximamente", "proximamente", "cancelado", "aplazado"},
			"it": {"prossimamente", "in vendita dal", "annullato", "rinviato"},
			"pt": {"em breve", "cancelado", "adiado"},
			"nl": {"binnenkort", "voorverkoop start", "geannuleerd", "verplaatst"},
		},
	},
	{
		status: event.AvailabilityAvailable,
		terms: map[string][]string{
			"":   {"available", "instock", "in stock", "on sale", "buy tickets", "buy now", "tickets", "book now"},
			"de": {"verfügbar", "tickets sichern", "jetzt kaufen", "erhältlich"},
			"fr": {"disponible", "réserver", "acheter"},
			"es": {"disponible", "comprar", "entradas"},
			"it": {"disponibile", "acquista", "biglietti"},
			"pt": {"disponível", "comprar"},
			"nl": {"beschikbaar", "bestel", "koop"},
		},
	},
}

// ParseAvailability maps free-text ticket status to the closed taxonomy.
// Empty text is unknown; text that matches no vocabulary term yields
// fallback, which adapters set because many listings only render a price
// when tickets are available. An invalid fallback is treated as available.
func ParseAvailability(text, locale string, fallback event.Availability) event.Availability {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if s == "" {
		return event.AvailabilityUnknown
	}

	lang := Language(locale)
	for _, v := range availabilityVocab {
		if containsAny(s, v.terms[""]) || containsAny(s, v.terms[lang]) || (v.pattern != nil && v.pattern.MatchString(s)) {
			return v.status
		}
	}

	if !fallback.Valid() {
		return event.AvailabilityAvailable
	}
	return fallback
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if containsWordStart(s, t) {
			return true
		}
	}
	return false
}

// containsWordStart reports whether term occurs in s starting at a word boundary,
// so "limited" does not match inside "unlimited".
func containsWordStart(s, term string) bool {
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], term)
		if j < 0 {
			return false
		}
		j += i
		prev, _ := utf8.DecodeLastRuneInString(s[:j])
		if j == 0 || !unicode.IsLetter(prev) {
			return true
		}
		i = j + 1
	}
	return false
}
