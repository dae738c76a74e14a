package clock

import (
	"sync"
	"time"
)

// TestClock can be used in tests that require deterministic time
// flow, driving autoswap's tick loop and the seller/buyer deadline
// checks without a real 10s/60s sleep.
type TestClock struct {
	mtx         sync.Mutex
	currentTime time.Time
	tickChans   []chan time.Time
	deadlines   []time.Time
}

// NewTestClock returns a new test clock.
func NewTestClock(startTime time.Time) *TestClock {
	return &TestClock{
		currentTime: startTime,
	}
}

// Now returns the current time.
func (c *TestClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.currentTime
}

// TickAfter returns a channel that ticks when SetTime has advanced far
// enough past the time TickAfter was called.
func (c *TestClock) TickAfter(duration time.Duration) <-chan time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.currentTime.Add(duration)
	if !deadline.After(c.currentTime) {
		ch <- c.currentTime
		return ch
	}

	c.tickChans = append(c.tickChans, ch)
	c.deadlines = append(c.deadlines, deadline)
	return ch
}

// SetTime advances the clock to newTime, firing any pending tick
// channels whose deadline has passed.
func (c *TestClock) SetTime(newTime time.Time) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.currentTime = newTime

	remainingChans := c.tickChans[:0]
	remainingDeadlines := c.deadlines[:0]
	for i, ch := range c.tickChans {
		if !newTime.Before(c.deadlines[i]) {
			ch <- newTime
			continue
		}
		remainingChans = append(remainingChans, ch)
		remainingDeadlines = append(remainingDeadlines, c.deadlines[i])
	}
	c.tickChans = remainingChans
	c.deadlines = remainingDeadlines
}

var _ Clock = (*TestClock)(nil)
