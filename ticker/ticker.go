// Package ticker provides an interface and implementation for a
// resettable ticker, used by autoswap's driver to sleep in 1-second
// increments between polling chain state (spec §4.8) so a stop signal
// is never blocked behind a long uninterruptible sleep.
package ticker

import "time"

// Ticker is an interface which provides a ticking primitive that can
// be resumed and stopped, underlying a *time.Ticker or a deterministic
// test implementation.
type Ticker interface {
	// Ticks returns a channel on which the ticks are delivered.
	Ticks() <-chan time.Time

	// Resume starts the ticker from stopped state.
	Resume()

	// Pause stops the ticker from sending any ticks.
	Pause()

	// Stop releases the resource associated with this ticker.
	Stop()
}

type wrappedTicker struct {
	*time.Ticker
	interval time.Duration
}

// New creates a new wrapped ticker with the passed interval.
func New(interval time.Duration) Ticker {
	return &wrappedTicker{
		Ticker:   time.NewTicker(interval),
		interval: interval,
	}
}

// Resume restarts the ticker from a paused state.
func (t *wrappedTicker) Resume() {
	t.Ticker.Reset(t.interval)
}

// Pause suspends the ticker until Resume is called again.
func (t *wrappedTicker) Pause() {
	t.Ticker.Stop()
}

// Ticks returns the underlying ticker's tick channel.
func (t *wrappedTicker) Ticks() <-chan time.Time {
	return t.Ticker.C
}

// Stop releases the ticker's resources permanently.
func (t *wrappedTicker) Stop() {
	t.Ticker.Stop()
}

var _ Ticker = (*wrappedTicker)(nil)
