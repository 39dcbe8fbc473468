// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests mute it with SetLogger(nil).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that prepends "prefix: " to every message and
// forwards to whatever Logf is at call time.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(prefix+": "+format, v...)
	}
}
