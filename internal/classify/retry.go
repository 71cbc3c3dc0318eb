package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
)

// StatusError is a model-service failure carrying the HTTP status code.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model service status %d", e.Code)
	}
	return fmt.Sprintf("model service status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether the status is transient (rate limited or unavailable).
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusServiceUnavailable
}

// Is lets errors.Is(err, harvest.ErrClassifierRetryable) match transient statuses.
func (e *StatusError) Is(target error) bool {
	return target == harvest.ErrClassifierRetryable && e.Retryable()
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}

// RetryPolicy doubles the wait from Base after every transient failure and
// gives up once the next wait would push total retry time past MaxElapsed.
type RetryPolicy struct {
	Base       time.Duration
	MaxElapsed time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do runs call until it succeeds, fails with a non-transient error, or the
// retry ceiling is reached. Both failure modes return harvest.ErrClassifierFatal
// wrapping the last error; context cancellation is returned as is.
func (p RetryPolicy) Do(ctx context.Context, clock harvest.Clock, call func(context.Context) error) error {
	start := clock.Now()
	for attempt := 1; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("classifier call canceled: %w", ctxErr)
		}
		if !IsRetryable(err) {
			return fmt.Errorf("%w: %w", harvest.ErrClassifierFatal, err)
		}
		wait := p.Delay(attempt)
		if clock.Now().Sub(start)+wait > p.MaxElapsed {
			return fmt.Errorf("%w: retry budget %s exhausted after %d attempts: %w",
				harvest.ErrClassifierFatal, p.MaxElapsed, attempt, err)
		}
		metrics.IncClassifierRetries()
		if err := clock.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("classifier backoff: %w", err)
		}
	}
}
