// Package autoswap implements C8: the background driver that repeatedly
// loads a trade record, steps it on a Tick event, dispatches the
// resulting action, and saves it back, until the trade reaches a
// terminal state or the operator stops it (spec §4.8).
package autoswap

import "go.uber.org/atomic"

// globalStop is the process-wide kill switch checked by every running
// Driver between iterations (spec §4.8 "StopAllAutoswap"). It is a
// package-level atomic rather than a per-Manager field so that it
// survives being passed around by value and so a single operator
// command can halt every driver regardless of which swapmgr.Manager
// started it, mirroring htlcswitch.Switch's own coarse-grained shutdown signal.
var globalStop atomic.Bool

// StopAll sets the global stop flag; every running Driver observes it
// on its next poll and exits without completing its current trade
// (spec §4.8).
func StopAll() {
	globalStop.Store(true)
}

// ResumeAll clears the global stop flag, allowing newly-started
// Drivers to run again. Drivers that already exited are not restarted;
// a new one has to be started, e.g. via swapmgr.Manager.Autoswap.
func ResumeAll() {
	globalStop.Store(false)
}

// Stopped reports whether StopAll has been called without a matching
// ResumeAll.
func Stopped() bool {
	return globalStop.Load()
}
