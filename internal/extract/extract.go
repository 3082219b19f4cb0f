package extract

import (
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/pfrederiksen/ticketscout/internal/fetch"
	"github.com/pfrederiksen/ticketscout/internal/logger"
	"github.com/pfrederiksen/ticketscout/internal/source"
)

// SnippetBytes bounds the item excerpt kept for logs.
const SnippetBytes = 200

// RawRecord is one item's field values before normalization. Every field
// named in the adapter's rules is present; a field that was not found is "".
type RawRecord struct {
	Index   int
	Fields  map[string]string
	Snippet string
}

// Get returns a field value.
func (r RawRecord) Get(field string) string {
	return r.Fields[field]
}

// ItemError describes an item that could not be extracted.
type ItemError struct {
	Platform string
	Index    int
	Snippet  string
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s item %d: %v", e.Platform, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// node is one item located in a document.
type node interface {
	value(loc source.Locator) (string, error)
	snippet() string
}

// Extractor turns documents into raw records.
type Extractor struct {
	log *logger.Logger
}

// New creates an extractor. A nil logger discards output.
func New(log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Discard()
	}
	return &Extractor{log: log}
}

// Extract prepares the records of doc according to a's rules. No work is done
// until the caller ranges over Records.All.
func (x *Extractor) Extract(doc *fetch.RawDocument, a *source.Adapter) *Records {
	rules := a.Extraction
	r := &Records{
		platform: a.Key,
		fields:   rules.Fields,
		log:      x.log.With(logger.Fields{"platform": a.Key}),
	}
	r.load = func() ([]node, error) {
		switch rules.Format {
		case source.FormatJSON:
			return jsonItems(doc.Body, rules.Items)
		case source.FormatJSONLD:
			return jsonLDItems(doc.Body)
		default:
			items, err := htmlItems(doc.Body, rules.Items)
			if err == nil && len(items) == 0 && rules.JSONLDFallback {
				r.fields = source.DefaultJSONLDFields()
				r.log.Debug("no item locator matched, reading json-ld", nil)
				return jsonLDItems(doc.Body)
			}
			return items, err
		}
	}
	return r
}

// Records is a lazy, one-shot sequence of raw records.
type Records struct {
	platform string
	fields   map[string]source.Locator
	log      *logger.Logger
	load     func() ([]node, error)

	used    atomic.Bool
	total   int
	skipped int
	err     error
}

// All yields the records in document order. Only the first call produces
// anything; later calls yield an empty sequence.
func (r *Records) All() iter.Seq[RawRecord] {
	if !r.used.CompareAndSwap(false, true) {
		return func(func(RawRecord) bool) {}
	}
	return func(yield func(RawRecord) bool) {
		items, err := r.load()
		if err != nil {
			r.err = err
			r.log.Warn("document could not be decoded", logger.Fields{"error": err.Error()})
			return
		}
		r.total = len(items)

		for i, n := range items {
			rec, err := r.record(i, n)
			if err != nil {
				r.skipped++
				ie := &ItemError{Platform: r.platform, Index: i, Snippet: safeSnippet(n), Err: err}
				r.log.Warn("skipping malformed item", logger.Fields{
					"index":   i,
					"snippet": ie.Snippet,
					"error":   err.Error(),
				})
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Collect drains All into a slice.
func (r *Records) Collect() []RawRecord {
	var out []RawRecord
	for rec := range r.All() {
		out = append(out, rec)
	}
	return out
}

// Items is the number of item nodes located, including skipped ones.
func (r *Records) Items() int { return r.total }

// Skipped is the number of items dropped because extraction failed.
func (r *Records) Skipped() int { return r.skipped }

// Err is the document-level decode error, if any.
func (r *Records) Err() error { return r.err }

func (r *Records) record(i int, n node) (rec RawRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	fields := make(map[string]string, len(r.fields))
	for name, loc := range r.fields {
		v, err := n.value(loc)
		if err != nil {
			return RawRecord{}, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = v
	}
	return RawRecord{Index: i, Fields: fields, Snippet: n.snippet()}, nil
}

func safeSnippet(n node) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return n.snippet()
}

// pick returns the first non-empty candidate, or all of them joined when the
// locator asks for it. Candidates are passed through the locator's pattern
// and template first.
func pick(loc source.Locator, candidates []string) string {
	var joined []string
	for _, c := range candidates {
		v := loc.Apply(collapse(c))
		if v == "" {
			continue
		}
		if !loc.Join {
			return v
		}
		joined = append(joined, v)
	}
	return strings.Join(joined, " - ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	s = collapse(s)
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
