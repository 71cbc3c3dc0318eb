package classify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/hackathon-harvester/internal/clock/system"
	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
)

// Gate spaces outbound model calls at least 60s/callsPerMinute apart. One Gate
// must be shared by every caller in the process; it is the only point where
// classification work is serialized.
type Gate struct {
	interval time.Duration
	clock    harvest.Clock
	limiter  *rate.Limiter
}

// NewGate builds a Gate for the given per-minute budget. A nil clock uses the system clock.
func NewGate(callsPerMinute int, clock harvest.Clock) (*Gate, error) {
	if callsPerMinute <= 0 {
		return nil, fmt.Errorf("calls per minute must be > 0, got %d", callsPerMinute)
	}
	if clock == nil {
		clock = system.New()
	}
	interval := time.Minute / time.Duration(callsPerMinute)
	return &Gate{
		interval: interval,
		clock:    clock,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Interval returns the minimum spacing between calls.
func (g *Gate) Interval() time.Duration { return g.interval }

// Wait blocks until the caller may make the next call. Concurrent callers each
// hold a reservation one interval after the previous one; a canceled caller
// hands its reservation back.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	r := g.limiter.ReserveN(g.clock.Now(), 1)
	wait := r.DelayFrom(g.clock.Now())
	if wait <= 0 {
		return nil
	}
	metrics.ObserveThrottleWait(wait)
	if err := g.clock.Sleep(ctx, wait); err != nil {
		r.CancelAt(g.clock.Now())
		return fmt.Errorf("throttle wait: %w", err)
	}
	return nil
}
