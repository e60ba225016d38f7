// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType selects where subsystem loggers write, chosen by build tag.
type LogType byte

const (
	// LogTypeNone disables logging.
	LogTypeNone LogType = iota

	// LogTypeStderr gives every subsystem its own backend writing straight
	// to stderr.  Used by unit tests built with the stdlog tag.
	LogTypeStderr

	// LogTypeDefault hands out loggers from the backend supplied by the
	// caller, which for txprep writes to stderr and the rotated log file.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStderr:
		return "stderr"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger returns the logger for subsystem.  genSubLogger is normally
// the Logger method of the application backend.  A nil genSubLogger, or a
// nolog build, yields btclog.Disabled.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	switch {
	case LoggingType == LogTypeNone:
		return btclog.Disabled

	// Development builds with the stdlog tag log each subsystem on its own
	// stderr backend at the level picked by the loglevel tags, so package
	// tests show their output without wiring a backend.
	case IsDevBuild() && LoggingType == LogTypeStderr:
		logger := btclog.NewBackend(os.Stderr).Logger(subsystem)
		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)
		return logger

	case genSubLogger != nil:
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}
