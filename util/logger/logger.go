// Package logger provides leveled, component-tagged logging for lsrouted.
// Every cooperating loop (prober, emitter, flooder, SPF engine, installer)
// logs through here instead of through the standard library directly, so
// that log level and formatting stay consistent across the daemon.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/mitchellh/colorstring"
)

type Level int32

const (
	NONE Level = iota
	WARN
	INFO
	DEBUG
)

// LogLevelEnv is the environment variable used to select the initial level.
const LogLevelEnv = "LSROUTED_LOG_LEVEL"

var (
	level   atomic.Int32
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)

	envvar, present := os.LookupEnv(LogLevelEnv)
	if !present {
		level.Store(int32(INFO))
		return
	}

	lvl, ok := parseLevel(envvar)
	if !ok {
		level.Store(int32(INFO))
		Warnf("main", "unknown log level %q, defaulting to INFO", envvar)
		return
	}
	level.Store(int32(lvl))
}

func parseLevel(s string) (Level, bool) {
	switch s {
	case "NONE":
		return NONE, true
	case "WARN":
		return WARN, true
	case "INFO":
		return INFO, true
	case "DEBUG":
		return DEBUG, true
	default:
		return 0, false
	}
}

// SetLevel overrides the active log level, e.g. from a parsed CLI flag.
func SetLevel(l Level) {
	level.Store(int32(l))
}

// SetEnable globally mutes or unmutes logging regardless of level. No
// caller inside lsrouted uses it; DumpState returns its text instead of
// logging one line per entry.
func SetEnable(v bool) {
	enabled.Store(v)
}

// Errorf logs a fatal configuration error and terminates the process. Only
// the startup phase may call this; steady-state loops must never treat an
// error as fatal (spec.md §7).
func Errorf(component, format string, v ...any) {
	log.Fatal(tag("red", "ERROR", component) + fmt.Sprintf(format, v...))
}

// Warnf logs a transient-I/O, malformed-input, or logical-inconsistency
// event. Never aborts the process.
func Warnf(component, format string, v ...any) {
	logAt(WARN, "yellow", "WARN", component, format, v...)
}

// Infof logs a steady-state event worth surfacing by default.
func Infof(component, format string, v ...any) {
	logAt(INFO, "green", "INFO", component, format, v...)
}

// Debugf logs fine-grained tracing, e.g. per-packet flooding decisions.
func Debugf(component, format string, v ...any) {
	logAt(DEBUG, "cyan", "DEBUG", component, format, v...)
}

func logAt(at Level, color, label, component, format string, v ...any) {
	if !enabled.Load() || Level(level.Load()) < at {
		return
	}
	log.Print(tag(color, label, component) + fmt.Sprintf(format, v...))
}

func tag(color, label, component string) string {
	return colorstring.Color(fmt.Sprintf("[%s]%s[reset] (%s) ", color, label, component))
}
