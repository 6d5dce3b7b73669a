// Package assert provides small invariant checks for conditions the rest
// of the codebase treats as impossible. A failing assertion means a bug in
// lsrouted itself, never bad network input or a misconfigured peer — those
// are handled as ordinary errors (see util/logger and spec.md §7).
package assert

import "fmt"

// Assert panics with a formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// IsNil panics if err is non-nil.
func IsNil(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: expected nil error, got %v", err))
	}
}

// IsNotNil panics if v is nil, using format/args as the message on failure.
func IsNotNil(v any, format string, args ...any) {
	if v == nil {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// Never panics unconditionally. Used for code paths the caller has already
// proven unreachable (e.g. after a fatal log call that should have exited).
func Never() {
	panic("assertion failed: unreachable code executed")
}
