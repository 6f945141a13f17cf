// Package source holds per-site scraping profiles: where to search, which
// selectors locate listing fields, and how aggressively the site may be hit.
// Profiles are configuration owned by operators; the engine treats them as
// read-only.
package source

import (
	"errors"
	"fmt"
	"strings"
)

// QueryPlaceholder is the token in a search URL template that gets replaced
// with the URL-encoded query.
const QueryPlaceholder = "{query}"

// Category groups sources for presentation. It has no behavioural effect.
type Category string

const (
	CategoryPopular     Category = "popular"
	CategoryAlternative Category = "alternative"
)

// Selectors are the CSS selectors used to locate listing fields on a
// source's search result page. Name and Price are mandatory; the rest are
// extracted opportunistically.
type Selectors struct {
	Container    string `json:"container" yaml:"container"`
	ProductName  string `json:"productName" yaml:"product_name"`
	Price        string `json:"price" yaml:"price"`
	ProductURL   string `json:"productUrl,omitempty" yaml:"product_url,omitempty"`
	Image        string `json:"image,omitempty" yaml:"image,omitempty"`
	Rating       string `json:"rating,omitempty" yaml:"rating,omitempty"`
	ReviewCount  string `json:"reviewCount,omitempty" yaml:"review_count,omitempty"`
	Availability string `json:"availability,omitempty" yaml:"availability,omitempty"`
}

// Configuration is the scraping configuration of one source.
type Configuration struct {
	BaseURL           string    `json:"baseUrl" yaml:"base_url"`
	SearchURLTemplate string    `json:"searchUrlTemplate" yaml:"search_url_template"`
	Selectors         Selectors `json:"selectors" yaml:"selectors"`
	RateLimitMs       int       `json:"rateLimitMs" yaml:"rate_limit_ms"`
}

// Profile is one external site the orchestrator can query.
type Profile struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	Category      Category      `json:"category" yaml:"category"`
	IsActive      bool          `json:"isActive" yaml:"is_active"`
	Configuration Configuration `json:"configuration" yaml:"configuration"`
}

// ErrInvalidProfile is wrapped by all Validate failures.
var ErrInvalidProfile = errors.New("source: invalid profile")

// Validate checks the profile invariants once at load time, so the scraping
// path never has to re-check selector presence per access.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	if p.Name == "" {
		return fmt.Errorf("%w %s: missing name", ErrInvalidProfile, p.ID)
	}
	if p.Configuration.BaseURL == "" {
		return fmt.Errorf("%w %s: missing base URL", ErrInvalidProfile, p.ID)
	}
	if !strings.Contains(p.Configuration.SearchURLTemplate, QueryPlaceholder) {
		return fmt.Errorf("%w %s: search URL template lacks %s placeholder",
			ErrInvalidProfile, p.ID, QueryPlaceholder)
	}
	if p.Configuration.Selectors.ProductName == "" {
		return fmt.Errorf("%w %s: missing product name selector", ErrInvalidProfile, p.ID)
	}
	if p.Configuration.Selectors.Price == "" {
		return fmt.Errorf("%w %s: missing price selector", ErrInvalidProfile, p.ID)
	}
	return nil
}

// RateLimit returns the minimum inter-request interval for this source in
// milliseconds, defaulting to 1000 when unset.
func (p *Profile) RateLimit() int {
	if p.Configuration.RateLimitMs <= 0 {
		return 1000
	}
	return p.Configuration.RateLimitMs
}
