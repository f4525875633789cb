package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"FeedIngestor/internal/clock"
)

// maxJitter is the upper bound of the random extra delay, as a fraction of the delay.
const maxJitter = 0.1

// ExponentialBackoff returns min(base*2^attempt, maxDelay) plus up to 10% jitter.
func ExponentialBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	return backoffWithJitter(attempt, base, maxDelay, rand.Float64)
}

func backoffWithJitter(attempt int, base, maxDelay time.Duration, random func() float64) time.Duration {
	d := capped(attempt, base, maxDelay)
	if d <= 0 {
		return 0
	}
	return d + time.Duration(float64(d)*maxJitter*random())
}

func capped(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// Backoff computes the delay for attempt and suspends the caller on clk.
// It returns the delay it slept and ctx.Err() if the sleep was cut short.
func Backoff(ctx context.Context, clk clock.Clock, attempt int, base, maxDelay time.Duration) (time.Duration, error) {
	d := ExponentialBackoff(attempt, base, maxDelay)
	return d, clk.Sleep(ctx, d)
}
