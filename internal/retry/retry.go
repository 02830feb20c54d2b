// Package retry implements retry-with-backoff as a policy value consumed by
// both WHIP negotiation and parameter pushes.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"driftcast/internal/core"
)

// Policy is one retryable operation's budget. Delay doubles per attempt:
// base, 2*base, 4*base, ...
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Delay returns the backoff before retry attempt n (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// Do runs fn, retrying on retryable failures until the budget is spent.
// Non-retryable errors abort immediately and are returned as-is; exhaustion
// is reported as *core.RetryExhaustedError wrapping the last failure.
func (p Policy) Do(ctx context.Context, logger zerolog.Logger, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(last).
				Msg("retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !core.Retryable(err) {
			return err
		}
		last = err
		if attempt >= p.MaxRetries {
			return &core.RetryExhaustedError{Op: op, Attempts: attempt + 1, Last: last}
		}
	}
}
