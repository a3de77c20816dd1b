// Package logging holds the process-wide debug switch.
package logging

import (
	"log"
	"os"
	"sync/atomic"
)

// debugEnabled controls whether Debug() produces output. Config reload
// flips it while sessions are logging.
var debugEnabled atomic.Bool

// Enabled reports whether debug output is on.
func Enabled() bool { return debugEnabled.Load() }

// SetEnabled turns debug output on or off.
func SetEnabled(on bool) { debugEnabled.Store(on) }

// Init enables debug output when the -debug flag, the config file or
// DEBUG=1 asks for it.
func Init(flag, config bool) {
	SetEnabled(flag || config || os.Getenv("DEBUG") == "1")
}

// Debug logs a message only when debug output is enabled.
func Debug(format string, args ...any) {
	if Enabled() {
		log.Printf("DEBUG: "+format, args...)
	}
}
