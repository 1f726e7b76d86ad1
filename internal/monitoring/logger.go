// Package monitoring holds the process-wide diagnostic logger the pipeline
// writes through.
package monitoring

import "log"

// Logf emits one diagnostic line. The default is log.Printf; the monitor
// binary mutes it unless -verbose is set.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the logger. nil installs a no-op, never a nil function.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
