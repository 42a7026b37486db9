// Package backoff implements the exponential-backoff-with-jitter poll
// loop required of every wait_* Device-API operation (SPEC_FULL.md
// §5.4), grounded on the retry loop shape used throughout the example
// pack (e.g. malbeclabs-doublezero's DuckLake transaction-conflict
// retry) but generalized to poll-until-condition rather than
// retry-until-success.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures an exponential backoff sequence.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Next returns the delay for the given zero-based attempt, with up to
// 20% jitter applied so many concurrent workflows don't thunder in lockstep.
func (p Policy) Next(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
	}
	if max := float64(p.Max); d > max {
		d = max
	}
	jitter := d * 0.2 * rand.Float64()
	return time.Duration(d + jitter)
}

// StallError is returned by Poll when check has reported no progress for
// longer than the configured stall window.
type StallError struct {
	Window time.Duration
}

func (e *StallError) Error() string {
	return "no progress for " + e.Window.String()
}

// Poll repeatedly calls check until it reports done, ctx is cancelled, or
// no progress marker changes for stallWindow (detected via progress,
// which check returns alongside done/err so the caller can expose
// whatever signal means "still moving", e.g. a download's byte count).
//
// check returns (done, progress, err). A nil err with done=false means
// "not yet, here's my current progress marker, keep polling".
func Poll(ctx context.Context, p Policy, stallWindow time.Duration, check func(ctx context.Context) (done bool, progress string, err error)) error {
	var lastProgress string
	lastChange := time.Now()

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, progress, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		now := time.Now()
		if progress != lastProgress {
			lastProgress = progress
			lastChange = now
		} else if now.Sub(lastChange) > stallWindow {
			return &StallError{Window: stallWindow}
		}

		delay := p.Next(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
