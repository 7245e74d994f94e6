package tracker

import (
	"io"
	"log"
)

var (
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the two logging streams for the tracker
// package. diag carries per-frame diagnostics (pool emptied, merge
// counts); trace carries high-frequency per-stage telemetry. Pass nil
// for either writer to disable that stream; both are disabled by
// default so the per-frame loop pays nothing when no one is listening.
func SetLogWriters(diag, trace io.Writer) {
	diagLogger = newLogger("[tracker] ", diag)
	traceLogger = newLogger("[tracker] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// diagf logs to the diag stream (pool lifecycle, recoveries).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-frame stage telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
