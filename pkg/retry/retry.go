package retry

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. It returns ctx.Err() if the
// context ended first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, ctx is done, or maxAttempts calls have
// failed (0 means no limit). Failures are spaced by b. It returns the last
// error from fn, or the context error if the context ended first.
func Do(ctx context.Context, b *Backoff, maxAttempts int, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			b.Reset()
			return nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return err
		}
		if serr := Sleep(ctx, b.Next()); serr != nil {
			return serr
		}
	}
}
