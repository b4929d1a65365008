package playback

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic microsecond clock.
type Clock interface {
	// Now returns the current time in microseconds.
	Now() uint64
	// Wait blocks for us microseconds. It must not depend on the Go scheduler
	// waking the caller in time.
	Wait(us uint64)
}

// SystemClock reads the host's monotonic clock and busy-waits.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock returns a SystemClock counting from now.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now returns the microseconds since the clock was created.
func (c *SystemClock) Now() uint64 {
	return uint64(time.Since(c.epoch).Microseconds())
}

// Wait spins until us microseconds have passed. It never sleeps.
func (c *SystemClock) Wait(us uint64) {
	deadline := c.Now() + us
	for c.Now() < deadline {
	}
}

// ManualClock only moves when told to. Waiting advances it instantly, which
// renders audio as fast as it decodes.
type ManualClock struct {
	now atomic.Uint64
}

// Now returns the current reading in microseconds.
func (c *ManualClock) Now() uint64 {
	return c.now.Load()
}

// Wait advances the clock by us microseconds and returns at once.
func (c *ManualClock) Wait(us uint64) {
	c.now.Add(us)
}

// Advance moves the clock forward by us microseconds.
func (c *ManualClock) Advance(us uint64) {
	c.now.Add(us)
}
