// Package goroutine provides utilities for safely launching goroutines with panic recovery.
package goroutine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo launches a goroutine with panic recovery. If the goroutine panics,
// the panic is caught and logged with stack trace instead of crashing the process.
func SafeGo(name string, fn func()) {
	go Run(name, fn)
}

// Run calls fn on the current goroutine, recovering and logging a panic.
func Run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Goroutine panicked",
				"goroutine", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
