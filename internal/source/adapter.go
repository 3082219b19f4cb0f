package source

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

// Format is the document type an adapter's rules are written against.
type Format string

const (
	FormatHTML   Format = "html"
	FormatJSON   Format = "json"
	FormatJSONLD Format = "jsonld"
)

// Field names understood by the extractor.
const (
	FieldTitle        = "title"
	FieldVenue        = "venue"
	FieldDate         = "date"
	FieldTime         = "time"
	FieldPrice        = "price"
	FieldAvailability = "availability"
	FieldLink         = "link"
	FieldCategory     = "category"
)

// FieldNames lists every extracted field in a stable order.
var FieldNames = []string{
	FieldTitle, FieldVenue, FieldDate, FieldTime,
	FieldPrice, FieldAvailability, FieldLink, FieldCategory,
}

// Capabilities advertised by adapters.
const (
	CapabilitySearch   = "search"
	CapabilityPrices   = "prices"
	CapabilityJSONLD   = "jsonld"
	CapabilityJSONAPI  = "json_api"
	CapabilityCategory = "category"
)

// Locator finds one field inside an item. Selectors are tried in order and
// the first non-empty match wins, unless Join is set, in which case every
// match is concatenated with " - ". An empty selector list addresses the item
// itself.
type Locator struct {
	Selectors []string `yaml:"selectors"`
	Attr      string   `yaml:"attr,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty"`
	Join      bool     `yaml:"join,omitempty"`
	// Template wraps the value, with {value} replaced by the match.
	Template string `yaml:"template,omitempty"`

	re *regexp.Regexp
}

// UnmarshalYAML accepts a bare selector string or a selector list as
// shorthand for the mapping form.
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		l.Selectors = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&l.Selectors)
	}

	type plain Locator
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*l = Locator(p)
	return nil
}

// Apply runs the optional pattern and template over a raw match.
func (l Locator) Apply(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if l.Pattern != "" {
		re := l.re
		if re == nil {
			var err error
			if re, err = regexp.Compile(l.Pattern); err != nil {
				return ""
			}
		}
		m := re.FindStringSubmatch(value)
		switch {
		case m == nil:
			return ""
		case len(m) > 1:
			value = strings.TrimSpace(m[1])
		default:
			value = strings.TrimSpace(m[0])
		}
	}
	if l.Template != "" && value != "" {
		value = strings.ReplaceAll(l.Template, "{value}", value)
	}
	return value
}

// Rules are the extraction rules of one adapter.
type Rules struct {
	Format Format `yaml:"format"`
	// Items is an ordered list of item locators; the first that matches
	// anything is used.
	Items  []string           `yaml:"items"`
	Fields map[string]Locator `yaml:"fields"`
	// JSONLDFallback makes an HTML adapter read schema.org events from the
	// page when none of its item locators match.
	JSONLDFallback bool `yaml:"jsonld_fallback"`
}

// Search describes how to turn criteria into a search URL.
type Search struct {
	// Path is appended to the base URL. {keyword} and {keyword_slug} are
	// substituted.
	Path string `yaml:"path"`
	// Params maps query parameter names to criteria keys.
	Params map[string]string `yaml:"params"`
	// Static query parameters sent with every search.
	Static     map[string]string `yaml:"static"`
	DateLayout string            `yaml:"date_layout"`
}

// URLBuilder builds a search URL for an adapter.
type URLBuilder func(a *Adapter, c Criteria) (string, error)

// Adapter is the configuration of one ticket platform.
type Adapter struct {
	Key                  string             `yaml:"key"`
	Name                 string             `yaml:"name"`
	BaseURL              string             `yaml:"base_url"`
	Currency             string             `yaml:"currency"`
	Locale               string             `yaml:"locale"`
	MinRequestIntervalMs int                `yaml:"min_request_interval_ms"`
	Disabled             bool               `yaml:"disabled"`
	DefaultAvailability  event.Availability `yaml:"default_availability"`
	DefaultCategory      string             `yaml:"default_category"`
	Capabilities         []string           `yaml:"capabilities"`
	SupportedCriteria    []string           `yaml:"supported_criteria"`
	Search               Search             `yaml:"search"`
	Extraction           Rules              `yaml:"extraction"`
	SkipBotCheck         bool               `yaml:"skip_bot_check"`

	buildURL URLBuilder
}

// MinInterval is the minimum spacing between two requests to the platform.
func (a *Adapter) MinInterval() time.Duration {
	return time.Duration(a.MinRequestIntervalMs) * time.Millisecond
}

// HasCapability reports whether the adapter advertises capability.
func (a *Adapter) HasCapability(capability string) bool {
	return slices.Contains(a.Capabilities, capability)
}

// Supports reports whether the platform can filter on a criteria key
// server-side.
func (a *Adapter) Supports(criteriaKey string) bool {
	return slices.Contains(a.SupportedCriteria, criteriaKey)
}

// Field returns the locator for a field.
func (a *Adapter) Field(name string) (Locator, bool) {
	loc, ok := a.Extraction.Fields[name]
	return loc, ok
}

// BuildSearchURL returns the search page URL for c.
func (a *Adapter) BuildSearchURL(c Criteria) (string, error) {
	if a.buildURL != nil {
		return a.buildURL(a, c)
	}
	return TemplateURL(a, c)
}

// TemplateURL builds a search URL from the adapter's Search template.
func TemplateURL(a *Adapter, c Criteria) (string, error) {
	path := strings.NewReplacer(
		"{keyword}", url.PathEscape(c.Keyword),
		"{keyword_slug}", Slug(c.Keyword),
	).Replace(a.Search.Path)

	raw := strings.TrimRight(a.BaseURL, "/")
	if path != "" {
		raw += "/" + strings.TrimLeft(path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("building search url for %s: %w", a.Key, err)
	}

	q := u.Query()
	for param, key := range a.Search.Params {
		if v := c.Value(key, a.Search.DateLayout); v != "" {
			q.Set(param, v)
		}
	}
	for param, v := range a.Search.Static {
		q.Set(param, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var slugPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Slug lower-cases s and joins its words with hyphens.
func Slug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// DefaultJSONLDFields locate schema.org Event properties.
func DefaultJSONLDFields() map[string]Locator {
	return map[string]Locator{
		FieldTitle:        {Selectors: []string{"name"}},
		FieldVenue:        {Selectors: []string{"location.name", "location"}},
		FieldDate:         {Selectors: []string{"startDate"}},
		FieldTime:         {Selectors: []string{"doorTime", "startDate"}},
		FieldPrice:        {Selectors: []string{"offers.lowPrice", "offers.highPrice", "offers.price"}, Join: true},
		FieldAvailability: {Selectors: []string{"offers.availability", "eventStatus"}},
		FieldLink:         {Selectors: []string{"url", "offers.url"}},
		FieldCategory:     {Selectors: []string{"@type"}},
	}
}

func (a *Adapter) applyDefaults() {
	if a.Name == "" {
		a.Name = a.Key
	}
	if a.DefaultAvailability == "" {
		a.DefaultAvailability = event.AvailabilityAvailable
	}
	if a.Extraction.Format == "" {
		a.Extraction.Format = FormatHTML
	}
	if a.Search.DateLayout == "" {
		a.Search.DateLayout = event.DateLayout
	}
	a.Currency = strings.ToUpper(a.Currency)
	if a.Extraction.Format == FormatJSONLD {
		fields := DefaultJSONLDFields()
		for name, loc := range a.Extraction.Fields {
			fields[name] = loc
		}
		a.Extraction.Fields = fields
	}
}

// Validate checks the adapter and compiles its patterns.
func (a *Adapter) Validate() error {
	if a.Key == "" {
		return fmt.Errorf("adapter key is required")
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("adapter %s: base_url %q must be an absolute URL", a.Key, a.BaseURL)
	}
	if len(a.Currency) != 3 {
		return fmt.Errorf("adapter %s: currency %q must be an ISO 4217 code", a.Key, a.Currency)
	}
	if a.Locale == "" {
		return fmt.Errorf("adapter %s: locale is required", a.Key)
	}
	if a.MinRequestIntervalMs < 0 {
		return fmt.Errorf("adapter %s: min_request_interval_ms must not be negative", a.Key)
	}
	if !a.DefaultAvailability.Valid() {
		return fmt.Errorf("adapter %s: unknown default_availability %q", a.Key, a.DefaultAvailability)
	}

	rules := &a.Extraction
	switch rules.Format {
	case FormatHTML, FormatJSON:
		if len(rules.Items) == 0 {
			return fmt.Errorf("adapter %s: at least one item locator is required", a.Key)
		}
	case FormatJSONLD:
	default:
		return fmt.Errorf("adapter %s: unknown extraction format %q", a.Key, rules.Format)
	}
	if _, ok := rules.Fields[FieldTitle]; !ok {
		return fmt.Errorf("adapter %s: a title locator is required", a.Key)
	}

	if rules.Format == FormatHTML {
		for _, sel := range rules.Items {
			if _, err := cascadia.Compile(sel); err != nil {
				return fmt.Errorf("adapter %s: item selector %q: %w", a.Key, sel, err)
			}
		}
	}
	for name, loc := range rules.Fields {
		if rules.Format == FormatHTML {
			for _, sel := range loc.Selectors {
				if _, err := cascadia.Compile(sel); err != nil {
					return fmt.Errorf("adapter %s: %s selector %q: %w", a.Key, name, sel, err)
				}
			}
		}
		if loc.Pattern != "" {
			re, err := regexp.Compile(loc.Pattern)
			if err != nil {
				return fmt.Errorf("adapter %s: %s pattern: %w", a.Key, name, err)
			}
			loc.re = re
			rules.Fields[name] = loc
		}
	}
	return nil
}
