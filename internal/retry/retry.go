package retry

import (
	"context"
	"time"
)

// Policy describes a fixed-interval reconnect schedule. The zero MaxAttempts
// means retry forever, which is what the long-lived device and collector
// loops want. Sleep is injectable so tests can run without real delays.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Fixed returns a forever-retrying policy with the given interval.
func Fixed(interval time.Duration) Policy {
	return Policy{Interval: interval}
}

// Run invokes fn until it returns nil, the attempt budget is exhausted, or ctx
// is cancelled. The last error from fn is returned when attempts run out.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return lastErr
		}

		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
