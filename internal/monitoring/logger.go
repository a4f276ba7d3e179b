package monitoring

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger used by the tracking and
// tuning packages. It defaults to log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// WriterLogger returns a logger that writes one line per call to w. Writes
// are serialised so it can be shared by evaluation workers.
func WriterLogger(w io.Writer) func(format string, v ...interface{}) {
	var mu sync.Mutex
	return func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		msg := fmt.Sprintf(format, v...)
		if len(msg) == 0 || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
		_, _ = io.WriteString(w, msg)
	}
}
