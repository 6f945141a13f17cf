package search

import (
	"sort"

	"github.com/pricehound/pricehound/extract"
)

// Filters narrow the merged listing pool. Every provided field must match
// (AND semantics); nil/zero fields are ignored.
type Filters struct {
	MinPrice     *int64               `json:"minPrice,omitempty"`
	MaxPrice     *int64               `json:"maxPrice,omitempty"`
	Availability extract.Availability `json:"availability,omitempty"`
	MinRating    *float64             `json:"minRating,omitempty"`
	Sources      []string             `json:"sources,omitempty"`
}

// match reports whether the listing passes all set filters. A listing
// without a rating counts as rating 0 for the MinRating comparison.
func (f *Filters) match(l extract.Listing) bool {
	if f == nil {
		return true
	}
	if f.MinPrice != nil && l.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && l.Price > *f.MaxPrice {
		return false
	}
	if f.Availability != "" && l.Availability != f.Availability {
		return false
	}
	if f.MinRating != nil {
		rating := 0.0
		if l.Rating != nil {
			rating = *l.Rating
		}
		if rating < *f.MinRating {
			return false
		}
	}
	if len(f.Sources) > 0 {
		found := false
		for _, id := range f.Sources {
			if id == l.SourceID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func applyFilters(listings []extract.Listing, f *Filters) []extract.Listing {
	if f == nil {
		return listings
	}
	out := listings[:0]
	for _, l := range listings {
		if f.match(l) {
			out = append(out, l)
		}
	}
	return out
}

// SortField selects the listing field results are ordered by.
type SortField string

const (
	SortPrice       SortField = "price"
	SortRating      SortField = "rating"
	SortReviewCount SortField = "reviewCount"
	SortLastScraped SortField = "lastScraped"
)

// Direction of a sort.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Sort describes the requested result ordering.
type Sort struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

// applySort orders listings in place, stably. Listings missing the sort
// field always lose to listings that have it, regardless of direction.
func applySort(listings []extract.Listing, s *Sort) {
	if s == nil || s.Field == "" {
		return
	}
	desc := s.Direction == Descending
	sort.SliceStable(listings, func(i, j int) bool {
		av, aok := sortKey(listings[i], s.Field)
		bv, bok := sortKey(listings[j], s.Field)
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		if desc {
			return av > bv
		}
		return av < bv
	})
}

// sortKey projects the sort field to a comparable number, reporting whether
// the listing carries the field at all.
func sortKey(l extract.Listing, field SortField) (float64, bool) {
	switch field {
	case SortPrice:
		return float64(l.Price), true
	case SortRating:
		if l.Rating == nil {
			return 0, false
		}
		return *l.Rating, true
	case SortReviewCount:
		if l.ReviewCount == nil {
			return 0, false
		}
		return float64(*l.ReviewCount), true
	case SortLastScraped:
		if l.LastScraped.IsZero() {
			return 0, false
		}
		return float64(l.LastScraped.UnixNano()), true
	}
	return 0, false
}
