// Package log provides the process-wide structured logger for okbuck.
//
// Verbosity follows the -v=N convention of the command line: 0 prints errors
// only, each step adds one level down to TRACE at 4.
package log

import "log/slog"

// LevelTrace sits below slog.LevelDebug for per-entry dumps.
const LevelTrace = slog.Level(-8)

// Verbosity levels accepted by -v.
const (
	VerbosityError = 0 // Errors only (quiet)
	VerbosityWarn  = 1 // + Warnings (failed deletions)
	VerbosityInfo  = 2 // + Info (run summaries)
	VerbosityDebug = 3 // + Debug (each stale entry, each deletion)
	VerbosityTrace = 4 // + Trace (record contents)
)

// VerbosityToLevel maps -v=N to a slog level.
func VerbosityToLevel(v int) slog.Level {
	switch {
	case v <= VerbosityError:
		return slog.LevelError
	case v == VerbosityWarn:
		return slog.LevelWarn
	case v == VerbosityInfo:
		return slog.LevelInfo
	case v == VerbosityDebug:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// LevelName returns the display name for l, including TRACE.
func LevelName(l slog.Level) string {
	if l <= LevelTrace {
		return "TRACE"
	}
	return l.String()
}
