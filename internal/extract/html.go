package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/ticketscout/internal/source"
)

type htmlNode struct {
	sel *goquery.Selection
}

func htmlItems(body []byte, locators []string) ([]node, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	for _, loc := range locators {
		found := doc.Find(loc)
		if found.Length() == 0 {
			continue
		}
		items := make([]node, 0, found.Length())
		found.Each(func(_ int, s *goquery.Selection) {
			items = append(items, htmlNode{sel: s})
		})
		return items, nil
	}
	return nil, nil
}

func (n htmlNode) value(loc source.Locator) (string, error) {
	var candidates []string
	add := func(s *goquery.Selection) {
		s.Each(func(_ int, m *goquery.Selection) {
			if loc.Attr == "" {
				candidates = append(candidates, m.Text())
				return
			}
			if v, ok := m.Attr(loc.Attr); ok {
				candidates = append(candidates, v)
			}
		})
	}

	if len(loc.Selectors) == 0 {
		add(n.sel)
	}
	for _, s := range loc.Selectors {
		add(n.sel.Find(s))
	}
	return pick(loc, candidates), nil
}

func (n htmlNode) snippet() string {
	html, err := goquery.OuterHtml(n.sel)
	if err != nil {
		html = n.sel.Text()
	}
	return truncate(html, SnippetBytes)
}
