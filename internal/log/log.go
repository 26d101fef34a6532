package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logger    atomic.Pointer[slog.Logger]
	level     = new(slog.LevelVar)
	verbosity atomic.Int32
)

func init() {
	// Warnings only until the command line has been parsed.
	verbosity.Store(VerbosityWarn)
	level.Set(slog.LevelWarn)
	logger.Store(slog.New(NewHandler(HandlerOptions{Level: level, Format: FormatText})))
}

// Init installs the global logger writing to stderr.
func Init(v int, format string) {
	InitWithOutput(v, format, os.Stderr)
}

// InitWithOutput installs the global logger writing to w.
func InitWithOutput(v int, format string, w io.Writer) {
	SetVerbosity(v)
	l := slog.New(NewHandler(HandlerOptions{
		Level:  level,
		Format: format,
		Output: w,
	}))
	logger.Store(l)
	slog.SetDefault(l)
}

// SetVerbosity changes the verbosity of the installed logger.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.Set(VerbosityToLevel(v))
}

// Verbosity returns the current -v value.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logger.Load()
}

func Error(msg string, args ...any) { logger.Load().Error(msg, args...) }
func Warn(msg string, args ...any)  { logger.Load().Warn(msg, args...) }
func Info(msg string, args ...any)  { logger.Load().Info(msg, args...) }
func Debug(msg string, args ...any) { logger.Load().Debug(msg, args...) }

// Trace logs at LevelTrace.
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// V returns the logger if verbosity is at least v, otherwise a discarding one.
//
//	log.V(3).Info("removed", "path", p)
func V(v int) *slog.Logger {
	if Verbosity() >= v {
		return logger.Load()
	}
	return Discard()
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}
