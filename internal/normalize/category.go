package normalize

import "strings"

// Category names produced by Categorize.
const (
	CategorySports  = "sports"
	CategoryMusic   = "music"
	CategoryTheatre = "theatre"
	CategoryComedy  = "comedy"
	CategoryFamily  = "family"
)

type categoryRule struct {
	category string
	keywords []string
}

var categoryRules = []categoryRule{
	{CategoryComedy, []string{"comedy", "comedian", "stand-up", "stand up", "kabarett", "comédie", "comedia", "commedia", "cabaret"}},
	{CategoryFamily, []string{"family", "kids", "children", "disney", "circus", "zirkus", "kinder", "enfants", "niños", "bambini", "familie"}},
	{CategoryTheatre, []string{"theatre", "theater", "théâtre", "teatro", "musical", "opera", "oper", "ballet", "ballett", "play", "spectacle"}},
	{CategorySports, []string{"football", "soccer", "rugby", "cricket", "tennis", "basketball", "hockey", "baseball", "boxing", "ufc", "grand prix", "formula 1", "f1", "vs", "fußball", "fútbol", "calcio", "voetbal", "match", "cup", "league", "championship"}},
	{CategoryMusic, []string{"concert", "tour", "live", "festival", "band", "orchestra", "symphony", "dj", "konzert", "concierto", "concerto", "jazz", "rock", "pop", "gig"}},
}

var categoryAliases = map[string]string{
	"musicevent":     CategoryMusic,
	"festival":       CategoryMusic,
	"music":          CategoryMusic,
	"concerts":       CategoryMusic,
	"musik":          CategoryMusic,
	"musique":        CategoryMusic,
	"música":         CategoryMusic,
	"musica":         CategoryMusic,
	"theaterevent":   CategoryTheatre,
	"theatreevent":   CategoryTheatre,
	"danceevent":     CategoryTheatre,
	"arts":           CategoryTheatre,
	"arts & theatre": CategoryTheatre,
	"sportsevent":    CategorySports,
	"sport":          CategorySports,
	"comedyevent":    CategoryComedy,
	"childrensevent": CategoryFamily,
	"kids":           CategoryFamily,
}

// Categorize assigns a category to a listing. A recognizable hint from the
// page (a genre label or schema.org type) wins, then title keywords, then
// fallback.
func Categorize(title, hint, fallback string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	if c, ok := categoryAliases[h]; ok {
		return c
	}
	for _, rule := range categoryRules {
		if rule.category == h {
			return h
		}
	}
	if h != "" && h != "event" {
		if c := matchCategory(h); c != "" {
			return c
		}
	}

	if c := matchCategory(" " + strings.ToLower(title) + " "); c != "" {
		return c
	}
	return fallback
}

func matchCategory(s string) string {
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if containsWord(s, kw) {
				return rule.category
			}
		}
	}
	return ""
}

// containsWord reports whether kw occurs in s delimited by non-letters.
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}
