package logging

import (
	"log/slog"
	"sync/atomic"
)

// traceEnabled gates per-sample logs. Set by a TRACE server level.
var traceEnabled atomic.Bool

// SetTrace toggles per-sample tracing.
func SetTrace(on bool) { traceEnabled.Store(on) }

// TraceEnabled reports whether per-sample tracing is on.
func TraceEnabled() bool { return traceEnabled.Load() }

// Trace logs at DEBUG through logger when tracing is on.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if traceEnabled.Load() {
		logger.Debug(msg, args...)
	}
}

// TraceDefault is Trace on the default logger.
func TraceDefault(msg string, args ...any) {
	if traceEnabled.Load() {
		slog.Debug(msg, args...)
	}
}
