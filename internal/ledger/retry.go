package ledger

import (
	"context"
	"iter"
	"time"
)

// Attempts yields attempt numbers 1..n, sleeping backoff between consecutive attempts.
// Iteration stops early when ctx is done or the loop body breaks.
func Attempts(ctx context.Context, n int, backoff time.Duration) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 1; i <= n; i++ {
			if i > 1 {
				t := time.NewTimer(backoff)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			if !yield(i) {
				return
			}
		}
	}
}
