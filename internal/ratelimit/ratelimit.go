// Package ratelimit gates calls to the discovery collaborator with a
// shared token bucket (SPEC_FULL.md §6, "Rate limiting"). Direct-to-device
// calls are not globally rate-limited; per-device serial execution gives
// those natural per-device pacing already.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with the
// requests-per-minute framing the configuration uses.
type Limiter struct {
	l *rate.Limiter
}

// New constructs a Limiter allowing requestsPerMinute sustained, with a
// burst equal to one minute's allowance (so a quiet period doesn't
// starve a burst of discovery calls immediately afterward).
func New(requestsPerMinute float64) *Limiter {
	perSecond := requestsPerMinute / 60
	burst := int(requestsPerMinute)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}
