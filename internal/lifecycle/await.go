package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/envboot/internal/types"
)

// DefaultPollInterval is the host readiness poll period.
const DefaultPollInterval = 200 * time.Millisecond

// Condition is polled by Await. An error counts as "not yet".
type Condition func(ctx context.Context) (bool, error)

// Await polls cond every interval until it reports true.
//
// timeout <= 0 polls until ctx is done. Otherwise Await gives up with
// ErrHostUnavailable, wrapping the last condition error if any.
// Cancelling ctx stops the timers and returns ctx.Err().
func Await(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			if lastErr != nil {
				return fmt.Errorf("%w after %s: %w", types.ErrHostUnavailable, timeout, lastErr)
			}
			return fmt.Errorf("%w after %s", types.ErrHostUnavailable, timeout)
		case <-ticker.C:
		}
	}
}
