// Package ratelimit paces how fast the dispatcher may start operations.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spreads operation starts evenly over time. A nil *Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
}

// New returns a pacer allowing rps starts per second with no burst, or nil
// when rps is not positive.
func New(rps int) *Pacer {
	if rps <= 0 {
		return nil
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until the next start is allowed or ctx ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Interval is the gap between two starts, 0 for an unpaced run.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(p.limiter.Limit()))
}
