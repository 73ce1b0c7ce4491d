package metaads

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/keyxmakerx/adpilot/internal/metrics"
)

// RetryPolicy bounds how a failed call is repeated. The wait starts at
// Initial and doubles after each attempt up to Max.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, first included.
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy is three attempts waiting 2s then 4s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Initial:     2 * time.Second,
	Max:         30 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.Multiplier = 2
	eb.MaxInterval = p.Max
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. The last error is returned unchanged. Waits block only
// the calling goroutine.
func (p RetryPolicy) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0

	operation := func() error {
		attempt++
		start := time.Now()
		err := fn(ctx)
		metrics.PlatformCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			metrics.PlatformCallsTotal.WithLabelValues(op, "success").Inc()
			return nil
		case ctx.Err() != nil || !IsRetryable(err):
			metrics.PlatformCallsTotal.WithLabelValues(op, "permanent").Inc()
			return backoff.Permanent(err)
		default:
			metrics.PlatformCallsTotal.WithLabelValues(op, "retryable").Inc()
			return err
		}
	}

	notify := func(err error, wait time.Duration) {
		metrics.PlatformRetriesTotal.WithLabelValues(op).Inc()
		slog.Warn("retrying ad platform call",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("reason", Describe(err)),
		)
	}

	return backoff.RetryNotify(operation, p.backOff(ctx), notify)
}
