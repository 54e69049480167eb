package transmitter

import (
	"sync/atomic"
	"time"
)

// Clock is a millisecond counter. It only moves forward and wraps silently at
// the top of its range, so intervals must be measured with unsigned subtraction.
type Clock interface {
	NowMillis() uint32
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowMillis() uint32 {
	// time.Since reads the monotonic clock; truncation to 32 bits is the wrap.
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is advanced by hand.
type ManualClock struct {
	now atomic.Uint32
}

func NewManualClock(start uint32) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) NowMillis() uint32 { return c.now.Load() }

func (c *ManualClock) Set(ms uint32) { c.now.Store(ms) }

func (c *ManualClock) Advance(ms uint32) uint32 { return c.now.Add(ms) }
