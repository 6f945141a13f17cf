package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pricehound/pricehound/source"
)

func testProfile() *source.Profile {
	return &source.Profile{
		ID:       "shop-a",
		Name:     "Shop A",
		IsActive: true,
		Configuration: source.Configuration{
			BaseURL:           "https://shop-a.example",
			SearchURLTemplate: "https://shop-a.example/search?q={query}",
			Selectors: source.Selectors{
				Container:    ".product-card",
				ProductName:  ".title",
				Price:        ".price",
				ProductURL:   "a.product-link",
				Image:        "img.thumb",
				Rating:       ".rating",
				ReviewCount:  ".reviews",
				Availability: ".stock",
			},
		},
	}
}

func card(name, price string, extra ...string) string {
	return `<div class="product-card">` +
		`<a class="product-link" href="/p/1"><span class="title">` + name + `</span></a>` +
		`<span class="price">` + price + `</span>` +
		strings.Join(extra, "") +
		`</div>`
}

func page(cards ...string) []byte {
	return []byte(`<html><body><div id="results">` + strings.Join(cards, "\n") + `</div></body></html>`)
}

func TestExtractBasicListing(t *testing.T) {
	e := New(WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	markup := page(card("Wireless Headphones", "$49.99",
		`<img class="thumb" src="/img/1.jpg">`,
		`<span class="rating">4.5 out of 5</span>`,
		`<span class="reviews">1,234 ratings</span>`,
		`<span class="stock">In stock</span>`))

	got := e.Extract(markup, testProfile())
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	l := got[0]
	if l.Name != "Wireless Headphones" {
		t.Errorf("name: %q", l.Name)
	}
	if l.Price != 4999 {
		t.Errorf("price: got %d, want 4999", l.Price)
	}
	if l.URL != "https://shop-a.example/p/1" {
		t.Errorf("url not resolved: %q", l.URL)
	}
	if l.ImageURL != "https://shop-a.example/img/1.jpg" {
		t.Errorf("image url: %q", l.ImageURL)
	}
	if l.Rating == nil || *l.Rating != 4.5 {
		t.Errorf("rating: %v", l.Rating)
	}
	if l.ReviewCount == nil || *l.ReviewCount != 1234 {
		t.Errorf("review count: %v", l.ReviewCount)
	}
	if l.Availability != InStock {
		t.Errorf("availability: %v", l.Availability)
	}
	if !l.IsValid {
		t.Error("listing should be valid")
	}
	if l.SourceID != "shop-a" {
		t.Errorf("source id: %q", l.SourceID)
	}
}

func TestExtractDiscardsIncomplete(t *testing.T) {
	e := New()
	markup := page(
		card("", "$10.00"),                    // empty name
		card("Free Thing", "$0.00"),           // non-positive price
		card("No Price", "call for pricing"),  // unparseable price
		card("Good Product", "$25.00"),        // keeper
	)

	got := e.Extract(markup, testProfile())
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1: %+v", len(got), got)
	}
	for _, l := range got {
		if l.Name == "" || l.Price <= 0 {
			t.Fatalf("invariant violated: %+v", l)
		}
	}
}

func TestExtractCandidateCap(t *testing.T) {
	e := New()
	var cards []string
	for i := 0; i < 25; i++ {
		cards = append(cards, card(fmt.Sprintf("Product %d", i), "$10.00"))
	}
	got := e.Extract(page(cards...), testProfile())
	if len(got) != MaxCandidates {
		t.Fatalf("got %d listings, want cap %d", len(got), MaxCandidates)
	}
}

func TestExtractNoContainerFallsBackToNameParents(t *testing.T) {
	p := testProfile()
	p.Configuration.Selectors.Container = ""
	e := New()

	markup := page(card("Standalone", "$15.50"))
	got := e.Extract(markup, p)
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
}

func TestExtractUnparseablePageYieldsEmpty(t *testing.T) {
	e := New()
	got := e.Extract([]byte("not html at all %%%"), testProfile())
	// html.Parse is lenient; the point is no panic and no phantom listings.
	if len(got) != 0 {
		t.Fatalf("got %d listings from garbage, want 0", len(got))
	}
}

func TestExtractMissingRatingIsUnset(t *testing.T) {
	e := New()
	markup := page(card("Thing", "$5.00", `<span class="rating">no ratings yet</span>`))
	got := e.Extract(markup, testProfile())
	if len(got) != 1 {
		t.Fatal("expected one listing")
	}
	if got[0].Rating != nil {
		t.Fatalf("rating should be unset, got %v", *got[0].Rating)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"$49.99", 4999, false},
		{"EUR 45", 4500, false},
		{"1,299.99", 129999, false},
		{"£7", 700, false},
		{"free", 0, true},
		{"", 0, true},
		{"$0.00", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParsePrice(%q): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePrice(%q): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseRating(t *testing.T) {
	if r := ParseRating("4.7 out of 5 stars"); r == nil || *r != 4.7 {
		t.Errorf("got %v", r)
	}
	if r := ParseRating("Rated 3 stars"); r == nil || *r != 3 {
		t.Errorf("got %v", r)
	}
	if r := ParseRating("9.9"); r == nil || *r != 5 {
		t.Errorf("ratings clamp to 5, got %v", r)
	}
	if r := ParseRating("no rating"); r != nil {
		t.Errorf("expected nil, got %v", *r)
	}
}

func TestParseReviewCount(t *testing.T) {
	if n := ParseReviewCount("1,234 reviews"); n == nil || *n != 1234 {
		t.Errorf("got %v", n)
	}
	if n := ParseReviewCount("(87)"); n == nil || *n != 87 {
		t.Errorf("got %v", n)
	}
	if n := ParseReviewCount("be the first to review"); n != nil {
		t.Errorf("expected nil, got %v", *n)
	}
}

func TestParseAvailability(t *testing.T) {
	tests := []struct {
		in   string
		want Availability
	}{
		{"In stock", InStock},
		{"Currently unavailable", OutOfStock},
		{"Sold out", OutOfStock},
		{"Only 2 left in stock", Limited},
		{"Limited availability", Limited},
		{"", Unknown},
		{"Ships tomorrow", InStock},
	}
	for _, tt := range tests {
		if got := ParseAvailability(tt.in); got != tt.want {
			t.Errorf("ParseAvailability(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	if got := resolveURL("https://shop.example", "/p/9"); got != "https://shop.example/p/9" {
		t.Errorf("got %q", got)
	}
	if got := resolveURL("https://shop.example", "https://cdn.example/x.jpg"); got != "https://cdn.example/x.jpg" {
		t.Errorf("absolute URL should pass through, got %q", got)
	}
	if got := resolveURL("https://shop.example", ""); got != "" {
		t.Errorf("empty href should stay empty, got %q", got)
	}
}
