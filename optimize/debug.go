package optimize

import (
	"io"
	"log"
)

var optimizerLogger *log.Logger

// SetLogWriter configures the optimiser's diagnostic stream, which
// reports recovered numeric failures (degenerate elite refits). Pass nil
// to disable; disabled is the default.
func SetLogWriter(w io.Writer) {
	if w == nil {
		optimizerLogger = nil
		return
	}
	optimizerLogger = log.New(w, "[optimize] ", log.LstdFlags|log.Lmicroseconds)
}

func diagf(format string, args ...interface{}) {
	if optimizerLogger != nil {
		optimizerLogger.Printf(format, args...)
	}
}
