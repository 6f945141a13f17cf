package scrape

import "math/rand"

// Identity is the browser persona a worker presents for one scrape:
// user agent, viewport, and baseline headers drawn from fixed pools so
// consecutive scrapes don't share a fingerprint.
type Identity struct {
	UserAgent string
	Width     int
	Height    int
	Headers   []string // key, value pairs
}

// userAgents is the fixed pool of believable desktop user agents.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// viewports is the fixed pool of common desktop resolutions.
var viewports = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 720},
}

// consent cookie set before navigation so EU consent walls don't cover the
// listing grid.
const (
	consentCookieName  = "cookieConsent"
	consentCookieValue = "accepted"
)

// newIdentity draws a random persona from the pools.
func newIdentity(rnd *rand.Rand) Identity {
	vp := viewports[rnd.Intn(len(viewports))]
	return Identity{
		UserAgent: userAgents[rnd.Intn(len(userAgents))],
		Width:     vp[0],
		Height:    vp[1],
		Headers: []string{
			"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language", "en-US,en;q=0.9",
			"Sec-Ch-Ua-Platform", `"Windows"`,
			"Upgrade-Insecure-Requests", "1",
		},
	}
}
