package extract

import "time"

// Availability is the normalised stock state of a listing.
type Availability string

const (
	InStock    Availability = "in_stock"
	OutOfStock Availability = "out_of_stock"
	Limited    Availability = "limited"
	Unknown    Availability = "unknown"
)

// Listing is one source's offer for a product, extracted from a single
// scrape. Prices are integer minor currency units (cents) to avoid
// floating-point rounding error. Rating and ReviewCount are pointers
// because absent is not the same as zero.
type Listing struct {
	ProductID    string       `json:"productId"`
	SourceID     string       `json:"sourceId"`
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	Price        int64        `json:"price"`
	Currency     string       `json:"currency"`
	Availability Availability `json:"availability"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	Rating       *float64     `json:"rating,omitempty"`
	ReviewCount  *int         `json:"reviewCount,omitempty"`
	LastScraped  time.Time    `json:"lastScraped"`
	IsValid      bool         `json:"isValid"`
}
