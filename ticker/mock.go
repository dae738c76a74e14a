package ticker

import "time"

// Mock is a Ticker implementation that only ticks when Tick is
// called explicitly, for deterministic tests of autoswap's
// driver loop.
type Mock struct {
	ticks   chan time.Time
	stopped bool
}

// NewMock creates a new mock ticker.
func NewMock() *Mock {
	return &Mock{
		ticks: make(chan time.Time, 1),
	}
}

// Tick forces a tick to be delivered on the ticker's channel.
func (m *Mock) Tick(t time.Time) {
	if m.stopped {
		return
	}
	m.ticks <- t
}

// Ticks implements Ticker.
func (m *Mock) Ticks() <-chan time.Time {
	return m.ticks
}

// Resume implements Ticker.
func (m *Mock) Resume() {
	m.stopped = false
}

// Pause implements Ticker.
func (m *Mock) Pause() {
	m.stopped = true
}

// Stop implements Ticker.
func (m *Mock) Stop() {
	m.stopped = true
}

var _ Ticker = (*Mock)(nil)
