// Package go_func_utils starts goroutines whose panics reach the injected logger.
package go_func_utils

import (
	"log"
	"runtime/debug"
	"sync"
)

// SafeGo runs fn on a new goroutine. A panic is logged with its stack under name and then
// re-raised, since the terminal dashboard owns stdout and would swallow the trace.
func SafeGo(logger *log.Logger, name string, fn func()) {
	go run(logger, name, fn)
}

// SafeGoWait is SafeGo tracked by wg
func SafeGoWait(logger *log.Logger, wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(logger, name, fn)
	}()
}

func run(logger *log.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
			panic(r)
		}
	}()
	fn()
}
