package scrape

import (
	"math/rand"
	"time"
)

// RetryPolicy is the explicit, test-seedable backoff policy for navigation
// attempts: exponential base delay plus bounded random jitter.
type RetryPolicy struct {
	// MaxAttempts is the total number of navigation attempts. Default: 3.
	MaxAttempts int

	// BaseDelay scales the exponential backoff: wait = BaseDelay << attempt.
	// Default: 1s, giving 1s, 2s, 4s between attempts.
	BaseDelay time.Duration

	// JitterBound caps the random jitter added to (or subtracted from)
	// each wait. Default: 500ms.
	JitterBound time.Duration
}

func (p *RetryPolicy) defaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.JitterBound <= 0 {
		p.JitterBound = 500 * time.Millisecond
	}
}

// Backoff returns the wait before retrying after the given zero-based
// attempt. Jitter is drawn from rnd so tests can seed it.
func (p RetryPolicy) Backoff(attempt int, rnd *rand.Rand) time.Duration {
	p.defaults()
	wait := p.BaseDelay << uint(attempt)
	jitter := time.Duration(rnd.Int63n(int64(2*p.JitterBound))) - p.JitterBound
	if wait+jitter < 0 {
		return 0
	}
	return wait + jitter
}
