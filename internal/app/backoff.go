package app

import (
	"context"
	"math/rand"
	"time"
)

// Default chunk retry backoff values.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
)

// backoff spaces the retries of one chunk: exponential with ±20% jitter,
// capped at max. A fresh backoff is used for every chunk.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// newBackoff falls back to the defaults for non-positive values.
func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max < initial {
		max = DefaultBackoffMax
		if max < initial {
			max = initial
		}
	}
	return &backoff{initial: initial, max: max, current: initial}
}

// Sleep waits for the current delay, then doubles it. It returns ctx.Err()
// as soon as ctx is done so a canceled run stops between attempts.
func (b *backoff) Sleep(ctx context.Context) error {
	err := sleepCtx(ctx, b.next())
	b.current = min(b.current*2, b.max)
	return err
}

func (b *backoff) next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	return time.Duration(float64(b.current) + jitter)
}

// Current returns the delay the next Sleep waits for, before jitter.
func (b *backoff) Current() time.Duration {
	return b.current
}
