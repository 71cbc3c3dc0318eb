package classify

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

func TestStatusErrorRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusInternalServerError, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		err := &StatusError{Code: tc.code, Err: errors.New("upstream")}
		require.Equal(t, tc.want, IsRetryable(err), "code %d", tc.code)
		require.Equal(t, tc.want, errors.Is(err, harvest.ErrClassifierRetryable), "code %d", tc.code)
	}
	require.False(t, IsRetryable(errors.New("plain")))
}

func TestRetryDelayDoubles(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{Base: time.Second}
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
}

func TestRetryDoRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	p := RetryPolicy{Base: time.Second, MaxElapsed: time.Minute}
	calls := 0
	err := p.Do(context.Background(), clock, func(context.Context) error {
		calls++
		if calls <= 2 {
			return &StatusError{Code: http.StatusTooManyRequests}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestRetryDoStopsAtCeiling(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	p := RetryPolicy{Base: time.Second, MaxElapsed: 10 * time.Second}
	calls := 0
	err := p.Do(context.Background(), clock, func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusServiceUnavailable}
	})
	require.ErrorIs(t, err, harvest.ErrClassifierFatal)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Sleeps())
}

func TestRetryDoFatalWithoutWaiting(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	p := RetryPolicy{Base: time.Second, MaxElapsed: time.Minute}
	calls := 0
	err := p.Do(context.Background(), clock, func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusBadRequest}
	})
	require.ErrorIs(t, err, harvest.ErrClassifierFatal)
	require.Equal(t, 1, calls)
	require.Empty(t, clock.Sleeps())
}

func TestRetryDoZeroBudgetNeverRetries(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	p := RetryPolicy{Base: time.Second}
	calls := 0
	err := p.Do(context.Background(), clock, func(context.Context) error {
		calls++
		return &StatusError{Code: http.StatusTooManyRequests}
	})
	require.ErrorIs(t, err, harvest.ErrClassifierFatal)
	require.Equal(t, 1, calls)
}

func TestRetryDoCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Base: time.Second, MaxElapsed: time.Minute}
	err := p.Do(ctx, newFakeClock(), func(context.Context) error {
		cancel()
		return &StatusError{Code: http.StatusTooManyRequests}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, harvest.ErrClassifierFatal)
}
