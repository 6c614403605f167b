package retry

import (
	"context"
	"time"
)

// Do runs f until it succeeds, the attempt budget runs out, or ctx is done.
// A fixed delay separates attempts; the last error is returned as-is.
func Do(ctx context.Context, attempts int, delay time.Duration, f func() error) error {
	var err error

	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = f(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return err
}
