package submitter

import (
	"context"
	"time"
)

// sleepFn blocks for d or until the context is done. Tests swap it out so
// backoff runs without real delay.
type sleepFn func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDelay returns the wait before retry number retry (1-based): base
// doubled per retry, capped at max.
func backoffDelay(retry int, base, max time.Duration) time.Duration {
	d := base << uint(retry-1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
