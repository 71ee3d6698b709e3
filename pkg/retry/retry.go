package retry

import (
	"context"
	"time"

	"github.com/chainaudit/chainaudit/pkg/errors"
)

// Bounded retry policy. Sleep is swappable so callers can run attempts without real delay.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks an error as permanent, Do returns it without further attempts
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Same pause after every failed attempt
func Constant(pause time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return pause }
}

// Pause grows with the attempt number: step, 2*step, 3*step...
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

func NewPolicy(maxAttempts int, backoff func(int) time.Duration) *Policy {
	return &Policy{MaxAttempts: maxAttempts, Backoff: backoff, Sleep: SleepContext}
}

// Do runs fn until it succeeds, returns a Stop error, or runs out of attempts.
// The attempt passed to fn starts at 1.
func (p *Policy) Do(ctx context.Context, fn func(attempt int) error) (err error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}

		if attempt == maxAttempts {
			break
		}

		if p.Backoff != nil && p.Sleep != nil {
			if sleepErr := p.Sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
				return errors.WithMessage(err, sleepErr.Error())
			}
		}
	}

	return errors.WithMessagef(err, "giving up after %d attempts", maxAttempts)
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
