package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/ticketscout/internal/event"
)

func TestLoadBuiltin(t *testing.T) {
	reg, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin() error = %v", err)
	}

	want := []string{"entradas", "eventim-de", "fnac", "seetickets", "stubhub", "ticketek-au", "ticketmaster-nl", "ticketone"}
	if got := strings.Join(reg.Keys(), ","); got != strings.Join(want, ",") {
		t.Errorf("Keys() = %s", got)
	}

	for _, key := range reg.Keys() {
		a, _ := reg.Get(key)
		if a.MinInterval() <= 0 {
			t.Errorf("%s: MinInterval() = %v, want a positive spacing", key, a.MinInterval())
		}
		if _, ok := a.Field(FieldTitle); !ok {
			t.Errorf("%s: no title locator", key)
		}
		if a.Name == "" || a.Locale == "" {
			t.Errorf("%s: Name = %q, Locale = %q", key, a.Name, a.Locale)
		}
	}

	stubhub, _ := reg.Get("stubhub")
	if stubhub.DefaultAvailability != event.AvailabilityUnknown {
		t.Errorf("stubhub default availability = %q", stubhub.DefaultAvailability)
	}
	if loc, _ := stubhub.Field(FieldPrice); strings.Join(loc.Selectors, ",") != "offers.lowPrice,offers.highPrice" {
		t.Errorf("stubhub price override lost: %v", loc.Selectors)
	}
	if _, ok := stubhub.Field(FieldVenue); !ok {
		t.Error("jsonld adapters should inherit the default venue locator")
	}

	ticketek, _ := reg.Get("ticketek-au")
	if !ticketek.HasCapability(CapabilityJSONAPI) || !ticketek.Supports(CriteriaCategory) || ticketek.Supports(CriteriaCity) {
		t.Errorf("ticketek capabilities = %v, criteria = %v", ticketek.Capabilities, ticketek.SupportedCriteria)
	}
}

func TestParseAdapters(t *testing.T) {
	data := []byte(`
adapters:
  - key: one
    base_url: https://one.example
    currency: eur
    locale: fr-FR
    extraction:
      items: [li]
      fields:
        title: h2
---
key: two
base_url: https://two.example
currency: GBP
locale: en_GB
extraction:
  format: json
  items: [data]
  fields:
    title: [name, title]
    link:
      selectors: [slug]
      template: /e/{value}
      pattern: '^([a-z-]+)'
`)

	reg := NewRegistry()
	if err := reg.Merge(data); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	one, ok := reg.Get("one")
	if !ok {
		t.Fatal("adapter one not registered")
	}
	if one.Currency != "EUR" || one.Name != "one" || one.Extraction.Format != FormatHTML {
		t.Errorf("defaults not applied: %+v", one)
	}
	if one.DefaultAvailability != event.AvailabilityAvailable {
		t.Errorf("DefaultAvailability = %q", one.DefaultAvailability)
	}

	two, _ := reg.Get("two")
	if two.Locale != "en_GB" {
		t.Errorf("Locale = %q", two.Locale)
	}
	title, _ := two.Field(FieldTitle)
	if strings.Join(title.Selectors, ",") != "name,title" {
		t.Errorf("list shorthand = %v", title.Selectors)
	}
	link, _ := two.Field(FieldLink)
	if got := link.Apply(" summer-fest-2026 "); got != "/e/summer-fest-" {
		t.Errorf("link Apply() = %q", got)
	}
	if got := link.Apply("2026"); got != "" {
		t.Errorf("non-matching pattern should give empty, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Adapter {
		return &Adapter{
			Key:      "x",
			BaseURL:  "https://x.example",
			Currency: "EUR",
			Locale:   "de-DE",
			Extraction: Rules{
				Items:  []string{"div.item"},
				Fields: map[string]Locator{FieldTitle: {Selectors: []string{"h3"}}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(a *Adapter)
		want   string
	}{
		{"valid", func(a *Adapter) {}, ""},
		{"missing key", func(a *Adapter) { a.Key = "" }, "key is required"},
		{"relative base url", func(a *Adapter) { a.BaseURL = "/search" }, "absolute URL"},
		{"bad currency", func(a *Adapter) { a.Currency = "EURO" }, "ISO 4217"},
		{"missing locale", func(a *Adapter) { a.Locale = "" }, "locale is required"},
		{"negative interval", func(a *Adapter) { a.MinRequestIntervalMs = -1 }, "must not be negative"},
		{"bad availability", func(a *Adapter) { a.DefaultAvailability = "maybe" }, "default_availability"},
		{"no items", func(a *Adapter) { a.Extraction.Items = nil }, "item locator"},
		{"unknown format", func(a *Adapter) { a.Extraction.Format = "xml" }, "unknown extraction format"},
		{"no title", func(a *Adapter) { a.Extraction.Fields = map[string]Locator{} }, "title locator"},
		{"bad item selector", func(a *Adapter) { a.Extraction.Items = []string{"div[["} }, "item selector"},
		{"bad field selector", func(a *Adapter) {
			a.Extraction.Fields[FieldVenue] = Locator{Selectors: []string{">>>"}}
		}, "venue selector"},
		{"bad pattern", func(a *Adapter) {
			a.Extraction.Fields[FieldPrice] = Locator{Selectors: []string{".p"}, Pattern: "(["}
		}, "price pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(a)
			a.applyDefaults()
			err := a.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestTemplateURL(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &Adapter{
		Key:     "x",
		BaseURL: "https://tickets.example/",
		Search: Search{
			Path:       "/search/{keyword_slug}",
			Params:     map[string]string{"q": CriteriaKeyword, "from": CriteriaDateFrom, "city": CriteriaCity},
			Static:     map[string]string{"sort": "date"},
			DateLayout: "02.01.2006",
		},
	}

	got, err := a.BuildSearchURL(Criteria{Keyword: "Die Ärzte & Co", DateFrom: &from})
	if err != nil {
		t.Fatalf("BuildSearchURL() error = %v", err)
	}
	want := "https://tickets.example/search/die-%C3%A4rzte-co?from=01.03.2026&q=Die+%C3%84rzte+%26+Co&sort=date"
	if got != want {
		t.Errorf("BuildSearchURL() =\n %s\nwant\n %s", got, want)
	}
}

func TestSetURLBuilder(t *testing.T) {
	reg, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin() error = %v", err)
	}
	err = reg.SetURLBuilder("fnac", func(a *Adapter, c Criteria) (string, error) {
		return a.BaseURL + "/custom/" + Slug(c.Keyword), nil
	})
	if err != nil {
		t.Fatalf("SetURLBuilder() error = %v", err)
	}

	a, _ := reg.Get("fnac")
	got, _ := a.BuildSearchURL(Criteria{Keyword: "Vianney Tour"})
	if !strings.HasSuffix(got, "/custom/vianney-tour") {
		t.Errorf("BuildSearchURL() = %s", got)
	}

	if err := reg.SetURLBuilder("nope", nil); err == nil {
		t.Error("SetURLBuilder() on unknown key should fail")
	}
}

func TestRegistry_DisableAndOverride(t *testing.T) {
	reg, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin() error = %v", err)
	}
	total := len(reg.Enabled())

	if err := reg.Disable("stubhub", "fnac"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if got := len(reg.Enabled()); got != total-2 {
		t.Errorf("Enabled() = %d adapters, want %d", got, total-2)
	}
	if err := reg.Disable("nope"); err == nil {
		t.Error("Disable() of unknown key should fail")
	}

	path := filepath.Join(t.TempDir(), "adapters.yaml")
	override := `
key: seetickets
base_url: https://staging.seetickets.example
currency: GBP
locale: en-GB
min_request_interval_ms: 100
extraction:
  items: [li.result]
  fields:
    title: h2
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	a, _ := reg.Get("seetickets")
	if a.BaseURL != "https://staging.seetickets.example" || a.MinInterval() != 100*time.Millisecond {
		t.Errorf("override not applied: %s %v", a.BaseURL, a.MinInterval())
	}

	if err := reg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() of a missing file should fail")
	}
	if err := reg.Merge([]byte("key: [broken")); err == nil {
		t.Error("Merge() of invalid YAML should fail")
	}
}

func TestParseCriteria(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		check   func(t *testing.T, c Criteria)
		wantErr string
	}{
		{
			name: "empty uses defaults",
			raw:  nil,
			check: func(t *testing.T, c Criteria) {
				if c.MaxResults != DefaultMaxResults || c.Keyword != "" || c.PriceMin != nil {
					t.Errorf("Criteria = %+v", c)
				}
			},
		},
		{
			name: "mixed value types",
			raw: map[string]any{
				"keyword":     "  coldplay ",
				"date_from":   "2026-03-01",
				"date_to":     event.NewDate(2026, 3, 31),
				"price_min":   "19.50",
				"price_max":   100,
				"max_results": 10.0,
				"unknown":     []int{1},
				"city":        nil,
			},
			check: func(t *testing.T, c Criteria) {
				if c.Keyword != "coldplay" || c.MaxResults != 10 {
					t.Errorf("Keyword = %q, MaxResults = %d", c.Keyword, c.MaxResults)
				}
				if c.DateFrom.Format("2006-01-02") != "2026-03-01" || c.DateTo.Format("2006-01-02") != "2026-03-31" {
					t.Errorf("dates = %v %v", c.DateFrom, c.DateTo)
				}
				if c.PriceMin.String() != "19.5" || c.PriceMax.String() != "100" {
					t.Errorf("prices = %v %v", c.PriceMin, c.PriceMax)
				}
				if c.Value(CriteriaDateFrom, "") != "2026-03-01" || c.Value(CriteriaMaxResults, "") != "10" {
					t.Errorf("Value() rendering is wrong")
				}
			},
		},
		{name: "bad date", raw: map[string]any{"date_from": "next week"}, wantErr: "date_from"},
		{name: "wrong type", raw: map[string]any{"keyword": 42}, wantErr: "keyword"},
		{name: "negative price", raw: map[string]any{"price_min": -5}, wantErr: "price_min"},
		{name: "fractional limit", raw: map[string]any{"max_results": 2.5}, wantErr: "max_results"},
		{name: "inverted price", raw: map[string]any{"price_min": 50, "price_max": 10}, wantErr: "price_min is greater"},
		{name: "inverted dates", raw: map[string]any{"date_from": "2026-04-01", "date_to": "2026-03-01"}, wantErr: "date_from is after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCriteria(tt.raw)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseCriteria() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCriteria() error = %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Die Ärzte":           "die-ärzte",
		"  AC/DC -- Live!  ":  "ac-dc-live",
		"":                    "",
		"Taylor Swift | Eras": "taylor-swift-eras",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
