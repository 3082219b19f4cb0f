package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/ticketscout/internal/source"
)

var errNotObject = errors.New("item is not an object")

type jsonNode struct {
	v any
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func jsonItems(body []byte, locators []string) ([]node, error) {
	root, err := decodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	for _, loc := range locators {
		var items []node
		for _, v := range resolve(root, loc) {
			if v != nil {
				items = append(items, jsonNode{v: v})
			}
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

// jsonLDItems collects schema.org events from every ld+json script in an
// HTML page. Scripts that fail to decode are ignored.
func jsonLDItems(body []byte) ([]node, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var items []node
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		text = strings.TrimSuffix(strings.TrimPrefix(text, "<!--"), "-->")
		v, err := decodeJSON([]byte(text))
		if err != nil {
			return
		}
		collectEvents(v, &items, 0)
	})
	return items, nil
}

func collectEvents(v any, out *[]node, depth int) {
	if depth > 5 {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			collectEvents(e, out, depth+1)
		}
	case map[string]any:
		if isEventType(t["@type"]) {
			*out = append(*out, jsonNode{v: t})
			return
		}
		for _, key := range []string{"@graph", "itemListElement", "item"} {
			if child, ok := t[key]; ok {
				collectEvents(child, out, depth+1)
			}
		}
	}
}

func isEventType(v any) bool {
	for _, t := range fanOut(v) {
		if s, ok := t.(string); ok && strings.HasSuffix(s, "Event") {
			return true
		}
	}
	return false
}

// resolve walks a dotted path. Arrays met along the way, and at the end, fan
// out so "performances.startDateTime" reads every performance. An empty path
// or "." addresses v itself.
func resolve(v any, path string) []any {
	cur := []any{v}
	if path != "" && path != "." {
		for _, part := range strings.Split(path, ".") {
			var next []any
			for _, c := range cur {
				for _, e := range fanOut(c) {
					if m, ok := e.(map[string]any); ok {
						if child, ok := m[part]; ok {
							next = append(next, child)
						}
					}
				}
			}
			cur = next
		}
	}

	var out []any
	for _, c := range cur {
		out = append(out, fanOut(c)...)
	}
	return out
}

func fanOut(v any) []any {
	if a, ok := v.([]any); ok {
		return a
	}
	return []any{v}
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func (n jsonNode) value(loc source.Locator) (string, error) {
	if _, ok := n.v.(map[string]any); !ok {
		return "", errNotObject
	}

	var candidates []string
	if len(loc.Selectors) == 0 {
		loc.Selectors = []string{"."}
	}
	for _, sel := range loc.Selectors {
		for _, v := range resolve(n.v, sel) {
			if s, ok := scalar(v); ok {
				candidates = append(candidates, s)
			}
		}
	}
	return pick(loc, candidates), nil
}

func (n jsonNode) snippet() string {
	data, err := json.Marshal(n.v)
	if err != nil {
		return fmt.Sprint(n.v)
	}
	return truncate(string(data), SnippetBytes)
}
