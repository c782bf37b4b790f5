package courier

import (
	"context"
	"time"

	"github.com/gabriellee58/courier/internal/backoff"
)

// RetryCondition decides whether a failed attempt may be retried. It runs
// after the error interceptor chain, only when the retry budget still has
// room. Cancellation is checked structurally before the condition, so a
// condition never sees ErrorTypeCanceled.
type RetryCondition func(err *Error) bool

// DefaultRetryCondition retries every failure regardless of status. This
// deliberately includes 4xx responses and non-idempotent methods; use
// RetryIdempotentOnly to gate by method idempotence instead.
func DefaultRetryCondition(err *Error) bool {
	return true
}

// RetryIdempotentOnly retries only when the failing request used an
// idempotent method (GET, PUT, DELETE), avoiding duplicate side effects
// from replayed POST or PATCH calls.
func RetryIdempotentOnly(err *Error) bool {
	return Method(err.Method).idempotent()
}

// sleepContext waits d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay computes the wait before the next attempt. The configured
// RetryDelay seeds the strategy; the constant strategy returns it
// unchanged, which is the default contract.
func (p *Pipeline) retryDelay(cfg *RequestConfig, attempt int) time.Duration {
	return p.backoffCalc.Calculate(attempt, cfg.RetryDelay, p.maxDelay, p.delayMultiplier, p.delayJitter)
}

func defaultBackoffCalculator() *backoff.Calculator {
	return backoff.GetConstantCalculator()
}
