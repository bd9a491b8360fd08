package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy describes the shared exponential backoff used for external
// lookups: the delay doubles after each failed attempt.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// retry runs fn until it yields a result or attempts are exhausted. Each
// attempt's outcome is inspected explicitly; failures never unwind the stack.
// On exhaustion the zero value is returned with ok=false so a single failed
// target degrades to "no data" instead of aborting the batch. Context
// cancellation is the only error that propagates.
func retry[T any](ctx context.Context, policy RetryPolicy, logger zerolog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	policy = policy.normalized()

	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, true, nil
		}
		if ctx.Err() != nil {
			return zero, false, ctx.Err()
		}

		if attempt == policy.Attempts {
			logger.Warn().Err(err).Str("op", op).Int("attempts", policy.Attempts).
				Msg("all attempts failed; degrading to empty result")
			return zero, false, nil
		}

		logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).
			Dur("retry_in", delay).Msg("attempt failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, false, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return zero, false, nil
}
