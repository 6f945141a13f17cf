// Package extract turns rendered search-result markup into structured
// listings using the per-source CSS selectors from a source profile.
//
// The engine is deliberately forgiving: a broken element is skipped, a page
// that matches nothing yields an empty set. Extraction never fails a scrape;
// it only produces fewer listings.
package extract

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/pricehound/pricehound/idgen"
	"github.com/pricehound/pricehound/source"
)

// MaxCandidates caps how many listing elements are considered per page.
// Search result pages repeat their layout; past the first few rows the
// markup is pagination and recommendation noise.
const MaxCandidates = 10

// DefaultCurrency is assumed when a source does not expose one.
const DefaultCurrency = "USD"

// Engine extracts listings from markup. Safe for concurrent use.
type Engine struct {
	strip  *bluemonday.Policy
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator used for synthesised product IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithClock sets a custom time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		strip:  bluemonday.StrictPolicy(),
		newID:  idgen.Prefixed("tmp_", idgen.Default),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract parses markup and returns the listings found via the profile's
// selectors. A listing with a missing name or non-positive price is
// discarded before it exists. Parse failures yield an empty slice, never
// an error: source-level degradation is the orchestrator's concern.
func (e *Engine) Extract(markup []byte, p *source.Profile) []Listing {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		e.logger.Warn("extract: page parse failed", "source", p.ID, "error", err)
		return nil
	}

	sel := p.Configuration.Selectors
	candidates := e.candidates(doc, sel)
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	listings := make([]Listing, 0, len(candidates))
	for _, c := range candidates {
		l, ok := e.extractOne(c, p)
		if !ok {
			continue
		}
		listings = append(listings, l)
	}

	e.logger.Debug("extract: page processed",
		"source", p.ID, "candidates", len(candidates), "listings", len(listings))
	return listings
}

// candidates locates the listing elements. With a container selector the
// matches are used directly; without one, each product-name match stands in
// for its listing, scoped to its parent element.
func (e *Engine) candidates(doc *html.Node, sel source.Selectors) []*html.Node {
	if sel.Container != "" {
		return querySelectorAll(doc, sel.Container)
	}
	var out []*html.Node
	for _, n := range querySelectorAll(doc, sel.ProductName) {
		if n.Parent != nil {
			out = append(out, n.Parent)
		}
	}
	return out
}

// extractOne pulls one listing out of a candidate element. Returns ok=false
// when the element lacks a usable name or price; any other missing field is
// tolerated.
func (e *Engine) extractOne(el *html.Node, p *source.Profile) (Listing, bool) {
	sel := p.Configuration.Selectors
	base := p.Configuration.BaseURL

	name := e.text(el, sel.ProductName)
	if name == "" {
		return Listing{}, false
	}

	price, err := ParsePrice(e.text(el, sel.Price))
	if err != nil {
		return Listing{}, false
	}

	l := Listing{
		ProductID:    e.newID(),
		SourceID:     p.ID,
		Name:         name,
		Price:        price,
		Currency:     DefaultCurrency,
		Availability: Unknown,
		LastScraped:  e.now(),
		IsValid:      true,
	}

	if sel.ProductURL != "" {
		if n := querySelector(el, sel.ProductURL); n != nil {
			l.URL = resolveURL(base, getAttr(n, "href"))
		}
	}
	if l.URL == "" {
		// Fall back to the first anchor in the element.
		if n := querySelector(el, "a[href]"); n != nil {
			l.URL = resolveURL(base, getAttr(n, "href"))
		}
	}

	if sel.Image != "" {
		if n := querySelector(el, sel.Image); n != nil {
			src := getAttr(n, "src")
			if src == "" {
				src = getAttr(n, "data-src")
			}
			l.ImageURL = resolveURL(base, src)
		}
	}

	if sel.Rating != "" {
		l.Rating = ParseRating(e.text(el, sel.Rating))
	}
	if sel.ReviewCount != "" {
		l.ReviewCount = ParseReviewCount(e.text(el, sel.ReviewCount))
	}
	if sel.Availability != "" {
		l.Availability = ParseAvailability(e.text(el, sel.Availability))
	}

	return l, true
}

// text returns the sanitised text content of the first selector match under
// el. Residual markup in text nodes is stripped so listing names stay plain.
func (e *Engine) text(el *html.Node, selector string) string {
	n := querySelector(el, selector)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(e.strip.Sanitize(collectText(n)))
}
