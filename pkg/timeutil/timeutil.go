// Package timeutil centralizes clock access so tests can freeze time.
package timeutil

import (
	"sync/atomic"
	"time"
)

// nowFn is swapped by tests via SetNow.
var nowFn atomic.Value

func init() {
	nowFn.Store(time.Now)
}

// Now returns the current time (UTC).
func Now() time.Time {
	return nowFn.Load().(func() time.Time)().UTC()
}

// NowMs returns the current time as epoch milliseconds. All message and
// part timestamps use this resolution.
func NowMs() int64 {
	return Now().UnixMilli()
}

// SetNow overrides the clock. Pass nil to restore the real clock.
func SetNow(f func() time.Time) {
	if f == nil {
		f = time.Now
	}
	nowFn.Store(f)
}
