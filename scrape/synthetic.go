package scrape

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pricehound/pricehound/extract"
	"github.com/pricehound/pricehound/source"
)

// Synthetic listings keep the pipeline exercisable in development when no
// browser is available or a source blocks us. Price ranges are keyed by
// query keywords so filters and sorting stay meaningful.

type priceBand struct {
	keywords []string
	min, max int64 // minor units
}

var priceBands = []priceBand{
	{[]string{"laptop", "macbook", "notebook"}, 45000, 250000},
	{[]string{"phone", "iphone", "smartphone"}, 20000, 150000},
	{[]string{"headphone", "earbud", "airpod"}, 1500, 40000},
	{[]string{"monitor", "display", "screen"}, 9000, 80000},
	{[]string{"keyboard", "mouse"}, 1000, 20000},
	{[]string{"watch"}, 3000, 60000},
}

var syntheticBrands = []string{"Acme", "Nordic", "Peak", "Vertex", "Orbit", "Lumen"}

var syntheticSuffixes = []string{"Pro", "Lite", "Max", "Plus", "2", "Essential"}

// syntheticListings fabricates count listings for the query against the
// given profile. The rand source is owned by the worker, keeping generation
// seedable in tests.
func syntheticListings(rnd *rand.Rand, p *source.Profile, query string, count int, now time.Time) []extract.Listing {
	min, max := int64(500), int64(50000)
	lower := strings.ToLower(query)
	for _, band := range priceBands {
		for _, kw := range band.keywords {
			if strings.Contains(lower, kw) {
				min, max = band.min, band.max
				break
			}
		}
	}

	listings := make([]extract.Listing, 0, count)
	for i := 0; i < count; i++ {
		brand := syntheticBrands[rnd.Intn(len(syntheticBrands))]
		suffix := syntheticSuffixes[rnd.Intn(len(syntheticSuffixes))]
		rating := 3.0 + rnd.Float64()*2.0
		reviews := rnd.Intn(5000)

		listings = append(listings, extract.Listing{
			ProductID:    fmt.Sprintf("syn_%s_%d", p.ID, i),
			SourceID:     p.ID,
			Name:         fmt.Sprintf("%s %s %s", brand, titleCase(query), suffix),
			URL:          fmt.Sprintf("%s/p/synthetic-%d", p.Configuration.BaseURL, i),
			Price:        min + rnd.Int63n(max-min+1),
			Currency:     extract.DefaultCurrency,
			Availability: extract.InStock,
			Rating:       &rating,
			ReviewCount:  &reviews,
			LastScraped:  now,
			IsValid:      true,
		})
	}
	return listings
}

// titleCase capitalises the first letter of each word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
