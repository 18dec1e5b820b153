package tui

import (
	"fmt"
	"runtime/debug"
)

// SafeGoroutine runs fn on its own goroutine. Errors and panics are passed
// to onError wrapped with the operation name; a panic carries its stack.
func SafeGoroutine(operation string, fn func() error, onError func(error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s: %v\n%s", operation, r, debug.Stack())
				if onError != nil {
					onError(err)
				}
			}
		}()

		if err := fn(); err != nil && onError != nil {
			onError(fmt.Errorf("%s: %w", operation, err))
		}
	}()
}
