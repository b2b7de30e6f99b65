package xlog

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// RecoverGoPanic recovers a panic and logs it to logger, or to os.Stderr
// if logger is nil. Intended to be deferred at the top of every spawned
// goroutine so one failing task cannot take the whole process down.
func RecoverGoPanic(desc string, logger *log.Logger) {
	r := recover()
	if r == nil {
		return
	}

	buf := debug.Stack()
	if logger != nil {
		logger.Printf("(%s) panic recovered: %v: %s", desc, r, buf)
	} else {
		fmt.Fprintf(os.Stderr, "(%s) panic recovered: %v: %s\n", desc, r, buf)
	}
}
