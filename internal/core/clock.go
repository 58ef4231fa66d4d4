package core

import (
	"sync"
	"time"
)

// stampClock issues epoch-millisecond timestamps that strictly increase
// within one process, even when the wall clock stalls or steps back.
type stampClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newStampClock(now func() time.Time) *stampClock {
	if now == nil {
		now = time.Now
	}
	return &stampClock{now: now}
}

// Next returns a timestamp greater than every previous one.
func (c *stampClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return ms
}

// After returns a timestamp greater than both prev and every previous one.
func (c *stampClock) After(prev int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	if ms <= prev {
		ms = prev + 1
	}
	c.last = ms
	return ms
}
