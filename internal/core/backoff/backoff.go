// Package backoff holds the bounded polling policy used for long-running service jobs.
package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Poll when every attempt ran without the check reporting done.
var ErrExhausted = errors.New("polling attempts exhausted")

// Policy is an exponential back-off with a per-attempt cap.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// OCRPolicy matches the text-detection job budget: 5s, doubling, capped at 30s, 15 attempts.
func OCRPolicy() Policy {
	return Policy{MaxAttempts: 15, Initial: 5 * time.Second, Max: 30 * time.Second, Multiplier: 2}
}

// Delay returns the wait before the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := p.Initial
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Total is the worst-case time spent sleeping across all attempts.
func (p Policy) Total() time.Duration {
	var sum time.Duration
	for i := 0; i < p.MaxAttempts; i++ {
		sum += p.Delay(i)
	}
	return sum
}

// Sleeper waits for d or until ctx is done. Swapping it lets the same loop run under a
// blocking thread model, a cooperative scheduler or a test clock.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default timer-backed Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll sleeps Delay(attempt) and then calls check, up to MaxAttempts times.
// It stops early when check reports done or returns an error.
func Poll(ctx context.Context, p Policy, sleep Sleeper, check func(ctx context.Context, attempt int) (bool, error)) error {
	if sleep == nil {
		sleep = Sleep
	}
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrExhausted
}
