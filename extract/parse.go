package extract

import (
	"errors"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// priceChars keeps digits and the two separator characters; everything
	// else (currency symbols, letters, whitespace) is stripped before parsing.
	priceChars  = regexp.MustCompile(`[^0-9.,]`)
	floatToken  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	intToken    = regexp.MustCompile(`\d[\d,.]*`)
	errNoPrice  = errors.New("extract: no parseable price")
	errBadPrice = errors.New("extract: non-positive price")
)

// ParsePrice converts raw price text ("$1,299.99", "EUR 45") to integer
// minor currency units. The heuristic strips non-numeric characters, parses
// the remaining numeral, multiplies by 100 and rounds. It is deliberately
// currency-agnostic and lossy for comma-decimal locales; callers must not
// assume sub-cent precision.
func ParsePrice(text string) (int64, error) {
	cleaned := priceChars.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, errNoPrice
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errNoPrice
	}
	minor := int64(math.Round(f * 100))
	if minor <= 0 {
		return 0, errBadPrice
	}
	return minor, nil
}

// ParseRating extracts the first floating-point-looking substring of the
// rating text as a 0-5 rating. Returns nil when no numeral is present —
// an absent rating is not a zero rating.
func ParseRating(text string) *float64 {
	m := floatToken.FindString(text)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	if f < 0 {
		f = 0
	}
	if f > 5 {
		f = 5
	}
	return &f
}

// ParseReviewCount extracts the first integer-looking substring with
// thousands separators stripped ("1,234 reviews" -> 1234). Nil when absent.
func ParseReviewCount(text string) *int {
	m := intToken.FindString(text)
	if m == "" {
		return nil
	}
	m = strings.ReplaceAll(m, ",", "")
	m = strings.ReplaceAll(m, ".", "")
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// ParseAvailability maps free-form availability text onto the enum.
// Empty text means the source did not expose stock state.
func ParseAvailability(text string) Availability {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return Unknown
	case strings.Contains(t, "out of stock"),
		strings.Contains(t, "sold out"),
		strings.Contains(t, "unavailable"):
		return OutOfStock
	case strings.Contains(t, "limited"),
		strings.Contains(t, "only") && strings.Contains(t, "left"),
		strings.Contains(t, "low stock"):
		return Limited
	default:
		return InStock
	}
}

// resolveURL resolves a possibly-relative href against the source's base URL.
// On any parse failure the raw value is returned unchanged.
func resolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
