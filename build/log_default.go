//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

// LoggingType uses the backend handed to NewSubLogger.
const LoggingType = LogTypeDefault
