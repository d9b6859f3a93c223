package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var once sync.Once

// Init installs the global logger. Debug enables DEBUG-level output.
func Init(debug bool) {
	once.Do(func() {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(NewHandler(os.Stdout, level)))
	})
}

// Handler is a slog handler with millisecond timestamps and a
// compact single-line format.
type Handler struct {
	out   io.Writer
	level slog.Level
	mu    sync.Mutex
}

// NewHandler creates a handler writing to out at the given level.
func NewHandler(out io.Writer, level slog.Level) *Handler {
	return &Handler{out: out, level: level}
}

// Enabled reports whether a level is logged.
func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

// Handle formats and writes a record.
// Format: 2024-01-15 14:30:45.123 [INF] message key=value
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.Format("2006-01-02 15:04:05.000")

	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "%s [%s] %s", ts, levelString(r.Level), r.Message)

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})

	fmt.Fprintln(h.out)

	return nil
}

// WithAttrs is a no-op; attributes go through the package functions.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

// WithGroup is a no-op.
func (h *Handler) WithGroup(name string) slog.Handler {
	return h
}

// levelString returns a three-letter level tag.
func levelString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return "???"
	}
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}
