// Package loop provides the single logical thread that owns grid state.
//
// All state mutation happens in callbacks executed by a Loop. Blocking I/O
// is started with Go: the work function runs on its own goroutine and
// returns a callback which the loop then executes, so completions are
// interleaved with user gestures but never run in parallel with them.
package loop

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Do when the loop has shut down.
var ErrStopped = errors.New("loop stopped")

// Loop schedules callbacks on a single logical thread.
type Loop interface {
	// Post schedules fn to run on the loop.
	Post(fn func())
	// Go runs work off the loop. The callback it returns, if non-nil, is
	// posted back to the loop. In-flight work is never cancelled, neither
	// by later calls nor by loop shutdown; request timeouts bound it.
	Go(work func(ctx context.Context) func())
	// After posts fn once d has elapsed.
	After(d time.Duration, fn func())
}
