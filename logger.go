package gpusched

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpusched/internal/cmdpool"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for gpusched and its internal packages.
// By default gpusched produces no log output. Pass nil to restore that.
//
// Devices that accept a logger (backend/native) receive the logger in
// effect when a Scheduler is created over them.
//
// Log levels used by gpusched:
//   - [slog.LevelDebug]: per-submission detail (ticks, pool allocation)
//   - [slog.LevelInfo]: lifecycle events (scheduler created, closed)
//   - [slog.LevelWarn]: recoverable issues (timeline poll failures)
//   - [slog.LevelError]: device loss and its checkpoint diagnostics
//
// Example:
//
//	gpusched.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	cmdpool.SetLogger(l)
}

// Logger returns the current package logger.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to dev if it implements loggerSetter.
func propagateLogger(dev any, l *slog.Logger) {
	if ls, ok := dev.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
