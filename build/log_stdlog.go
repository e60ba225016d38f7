//go:build stdlog
// +build stdlog

package build

// LoggingType writes every subsystem to stderr on its own backend.
const LoggingType = LogTypeStderr
