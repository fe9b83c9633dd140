// Package clock provides wall-clock timers.
//
// Go timers run on the monotonic clock, which stops while the machine sleeps.
// Playback positions and daily reminders are wall-clock quantities, so the
// timers here poll the wall clock instead.
package clock

import (
	"context"
	"time"
)

// DefaultResolution is the polling interval used by AfterFunc.
const DefaultResolution = 100 * time.Millisecond

// Wall returns t with the monotonic clock reading stripped, so that
// differences are computed on the wall clock.
func Wall(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond())).In(t.Location())
}

// Now returns the current wall-clock time.
func Now() time.Time {
	return Wall(time.Now())
}

// AfterFunc calls fn in its own goroutine once d has elapsed on the wall clock.
// Returns a cancel function; calling it after fn ran is a no-op.
func AfterFunc(d time.Duration, fn func()) func() {
	return At(Now().Add(d), DefaultResolution, fn)
}

// At calls fn in its own goroutine once the wall clock passes deadline,
// checking every resolution. Returns a cancel function.
func At(deadline time.Time, resolution time.Duration, fn func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	deadline = Wall(deadline)

	go func() {
		ticker := time.NewTicker(resolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !Now().Before(deadline) {
					// Cancelled while waiting on the tick.
					if ctx.Err() != nil {
						return
					}
					fn()
					return
				}
			}
		}
	}()

	return cancel
}
