package hawk

import (
	"sync/atomic"
	"time"
)

// Compensator holds a client's clock-skew estimate in whole seconds: the
// server's clock minus the local clock, as learned from a signed challenge.
//
// The zero value is ready to use. Clients that should share one estimate
// share one Compensator.
type Compensator struct {
	seconds atomic.Int64
}

// Load returns the current estimate.
func (c *Compensator) Load() int64 {
	return c.seconds.Load()
}

// Set replaces the estimate.
func (c *Compensator) Set(seconds int64) {
	c.seconds.Store(seconds)
}

// Update applies f atomically and returns the new estimate. f may run more
// than once under contention.
func (c *Compensator) Update(f func(old int64) int64) int64 {
	for {
		old := c.seconds.Load()
		next := f(old)
		if c.seconds.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Offset returns the estimate as a duration.
func (c *Compensator) Offset() time.Duration {
	return time.Duration(c.Load()) * time.Second
}
