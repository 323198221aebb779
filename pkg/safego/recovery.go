package safego

import (
	"runtime/debug"

	"github.com/hatcher/pilot/pkg/logs"
)

// Recovery logs a recovered panic with its stack trace. Use as a deferred
// call at the top of goroutines that must not take the process down.
func Recovery() {
	e := recover()
	if e == nil {
		return
	}
	logs.Errorf("[Recovery] caught panic: %v\nstacktrace:\n%s", e, string(debug.Stack()))
}
