package logging

import (
	"log/slog"
	"sync/atomic"
)

// traceEnabled gates per-tick trace logs. Off by default to keep the
// mission loop quiet.
var traceEnabled atomic.Bool

// SetTrace toggles trace logging.
func SetTrace(on bool) { traceEnabled.Store(on) }

// TraceEnabled reports whether trace logging is on.
func TraceEnabled() bool { return traceEnabled.Load() }

// Trace logs at DEBUG level when tracing is on. Cheap to call from hot
// loops while disabled.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if traceEnabled.Load() {
		logger.Debug(msg, args...)
	}
}
