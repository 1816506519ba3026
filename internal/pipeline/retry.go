package pipeline

import (
	"context"
	"time"
)

// DefaultMaxAttempts bounds extraction attempts per stage instance.
const DefaultMaxAttempts = 3

// RetryBudget counts extraction attempts for one stage instance. It is a
// value: each Spend returns the next budget, and it is never reset.
type RetryBudget struct {
	Max  int
	Used int
}

// NewRetryBudget returns an unused budget of max attempts.
func NewRetryBudget(max int) RetryBudget {
	if max < 1 {
		max = 1
	}
	return RetryBudget{Max: max}
}

// Remaining reports whether another attempt may start.
func (b RetryBudget) Remaining() bool { return b.Used < b.Max }

// Spend consumes one attempt. It never goes past Max.
func (b RetryBudget) Spend() RetryBudget {
	if b.Used < b.Max {
		b.Used++
	}
	return b
}

// Backoff is the wait after failed attempt n (1-based): 2^n units, so the
// second attempt starts 2 units after the first fails and the third 4 units
// after the second.
func Backoff(attempt int, unit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt)) * unit
}

// Sleeper waits between attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps on a timer and wakes early when ctx is done.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})
