//go:build debug
// +build debug

package build

// LogLevel specifies a debug log level.
var LogLevel = "debug"
