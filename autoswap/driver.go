package autoswap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lightningnetwork/lnswap/build"
	"github.com/lightningnetwork/lnswap/clock"
	"github.com/lightningnetwork/lnswap/swap"
	"github.com/lightningnetwork/lnswap/swaperrors"
	"github.com/lightningnetwork/lnswap/ticker"
)

var log = build.NewSubLogger("ASWP")

// PollInterval is the spacing between Tick events after an iteration
// that dispatched an action (spec §4.8).
const PollInterval = 10 * time.Second

// IdlePollInterval is the spacing between Tick events after an
// iteration whose action was ActionNone or ActionWait.
const IdlePollInterval = 60 * time.Second

// BackoffInterval is how long a Driver waits after a transient
// (retryable) error before retrying the same step (spec §4.8 "10s
// backoff on transient errors").
const BackoffInterval = 10 * time.Second

// sliceDuration is the granularity Driver sleeps in between checking
// the stop flag, so StopAll takes effect within one second rather than
// blocking behind a long uninterruptible sleep (spec §4.8).
const sliceDuration = 1 * time.Second

// HeightSource supplies the chain heights/confirmations a Tick needs
// (spec §4.6 ChainHeights), abstracting over swap.MWCClient and the
// relevant secondary.Adapter for this trade.
type HeightSource interface {
	Heights(ctx context.Context, rec *swap.TradeRecord) (swap.ChainHeights, error)
}

// Driver runs one trade's automation loop to completion, per spec §4.8.
type Driver struct {
	Store      swap.Store
	Dispatcher *swap.Dispatcher
	Heights    HeightSource
	Clock      clock.Clock
	Ticker     ticker.Ticker

	swapID uuid.UUID
}

// NewDriver builds a Driver for the trade identified by id.
func NewDriver(id uuid.UUID, store swap.Store, dispatcher *swap.Dispatcher, heights HeightSource, c clock.Clock) *Driver {
	if c == nil {
		c = clock.NewDefaultClock()
	}
	return &Driver{
		Store:      store,
		Dispatcher: dispatcher,
		Heights:    heights,
		Clock:      c,
		Ticker:     ticker.New(sliceDuration),
		swapID:     id,
	}
}

// Pause suspends the driver's sleep ticks without stopping the loop
// outright, so an operator can quiesce a trade's automation and resume
// it later (spec §6 "Pause/Resume").
func (d *Driver) Pause() {
	d.Ticker.Pause()
}

// Resume reverses Pause, letting sleep ticks flow again.
func (d *Driver) Resume() {
	d.Ticker.Resume()
}

// Run executes the load -> step -> dispatch -> save loop until the
// trade reaches a terminal state, the operator calls StopAll, or ctx
// is cancelled (spec §4.8).
func (d *Driver) Run(ctx context.Context) error {
	defer d.Ticker.Stop()

	for {
		if Stopped() {
			log.Infof("autoswap: global stop flag set, exiting driver for %s", d.swapID)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := d.Store.Load(d.swapID)
		if err != nil {
			return err
		}

		rec.Lock()
		terminal := rec.State.IsTerminal()
		rec.Unlock()
		if terminal {
			log.Infof("autoswap: trade %s reached terminal state %s, stopping", d.swapID, rec.State)
			return nil
		}

		heights, err := d.Heights.Heights(ctx, rec)
		if err != nil {
			log.Warnf("autoswap: %s: failed to read chain heights: %v", d.swapID, err)
			if !d.sleep(ctx, BackoffInterval) {
				return nil
			}
			continue
		}

		rec.Lock()
		before := len(rec.Journal)
		action, _, err := swap.Step(rec, swap.Event{
			Kind:    swap.EventTick,
			Now:     d.Clock.Now(),
			Heights: heights,
		})
		rec.Unlock()

		if err != nil {
			if swaperrors.Is(err, swaperrors.KindStateConflict) || swaperrors.Retryable(errKind(err)) {
				log.Warnf("autoswap: %s: retryable step error: %v", d.swapID, err)
				if !d.sleep(ctx, BackoffInterval) {
					return nil
				}
				continue
			}
			return err
		}

		// Dispatch must run without the trade lock held (spec §5).
		if dispatchErr := d.Dispatcher.Dispatch(ctx, rec, action); dispatchErr != nil {
			log.Warnf("autoswap: %s: dispatch failed: %v", d.swapID, dispatchErr)
			if !d.sleep(ctx, BackoffInterval) {
				return nil
			}
			continue
		}

		rec.Lock()
		after := rec.Journal[before:]
		rec.Unlock()
		for _, j := range after {
			log.Infof("autoswap: %s: [%s] %s", d.swapID, j.Kind, j.Message)
		}

		if err := d.Store.Save(rec); err != nil {
			return err
		}

		interval := IdlePollInterval
		if action.Kind != swap.ActionNone && action.Kind != swap.ActionWait {
			interval = PollInterval
		}
		if !d.sleep(ctx, interval) {
			return nil
		}
	}
}

// sleep waits for duration in 1-second slices, ticked off d.Ticker
// rather than a bare timer, so a stop signal or context cancellation
// interrupts it promptly and an operator's Pause call actually holds
// the driver still instead of racing a sleep already in flight; it
// reports whether the driver should keep running.
func (d *Driver) sleep(ctx context.Context, duration time.Duration) bool {
	elapsed := time.Duration(0)
	for elapsed < duration {
		if Stopped() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-d.Ticker.Ticks():
		}
		elapsed += sliceDuration
	}
	return true
}

// errKind extracts the swaperrors.Kind from err, defaulting to
// KindFatal for errors not produced by this module's error
// constructors.
func errKind(err error) swaperrors.Kind {
	if se, ok := err.(*swaperrors.SwapError); ok {
		return se.Kind
	}
	return swaperrors.KindFatal
}
