// Package backoff computes delays between assignment retry attempts.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Func adapts an ordinary function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// NewConstant waits the same interval before every retry.
func NewConstant(interval time.Duration) Strategy {
	return Func(func(int) time.Duration { return interval })
}

// NewLinear grows the delay by base for every attempt: base, 2*base,
// 3*base and so on, capped at maxDelay when maxDelay is positive.
func NewLinear(base, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		return clamp(base*time.Duration(attempt), maxDelay)
	})
}

// NewExponential doubles the delay on every attempt: base, 2*base,
// 4*base and so on, capped at maxDelay when maxDelay is positive.
func NewExponential(base, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		return clamp(doubling(base, attempt), maxDelay)
	})
}

// NewExponentialWithJitter picks a uniformly random delay between zero
// and the exponential ceiling for the attempt. Spreading retries out
// keeps a burst of simultaneous failures from re-dispatching in lockstep.
func NewExponentialWithJitter(base, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		ceil := clamp(doubling(base, attempt), maxDelay)
		return time.Duration(rand.Int64N(int64(ceil) + 1)) //nolint:gosec // jitter does not need crypto rand
	})
}

// DefaultStrategy is the backoff applied between assignment retries when
// none is configured: exponential with full jitter, 1s base, 1m cap.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(time.Second, time.Minute)
}

func doubling(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d < 0 { // overflowed
			return time.Duration(1<<63 - 1)
		}
	}
	return d
}

func clamp(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
