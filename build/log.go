// Package build provides the sub-logger registry shared by every
// package in this module, mirroring the teacher's per-subsystem
// logging idiom (a package-level "log" var per subsystem).
package build

import (
	"io"

	"github.com/btcsuite/btclog"
)

// backend is the logging backend all sub-loggers are created from. It
// writes to io.Discard, so importers run quietly.
var backend = btclog.NewBackend(io.Discard)

// NewSubLogger creates a logger for a single subsystem tagged with its
// name, matching the "log = build.NewSubLogger(\"SWAP\")" idiom used
// throughout the teacher's subsystem packages.
func NewSubLogger(subsystem string) btclog.Logger {
	logger := backend.Logger(subsystem)
	logger.SetLevel(btclog.LevelInfo)
	return logger
}

// SetLevel adjusts the verbosity of a previously created sub-logger.
func SetLevel(logger btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	logger.SetLevel(lvl)
}
