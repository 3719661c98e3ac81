package resilience

import (
	"context"
	"time"
)

// Policy controls retry behavior. The delay starts at BaseDelay and
// doubles after every failed attempt, capped at MaxDelay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the sleep before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the doubling.
	MaxDelay time.Duration
}

// DefaultPolicy matches the commit engine defaults: 4 attempts starting
// at 250ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}
	return p
}

// Do runs op up to p.MaxAttempts times. Only retryable errors (see
// Retryable) trigger another attempt; a non-retryable error is returned
// from the first attempt with no delay. Cancelling ctx stops the sleep
// between attempts.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	p = p.normalized()

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(lastErr) || attempt >= p.MaxAttempts {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
