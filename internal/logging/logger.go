// Package logging provides the structured logger shared by the storage
// components. Components depend on the small Logger interface; the process
// wiring supplies a zerolog-backed implementation.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface consumed by storage components.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return noopLogger{} }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// With returns a logger that adds the key/value pairs to every entry of l.
func With(l Logger, args ...any) Logger {
	switch t := l.(type) {
	case nil, noopLogger:
		return noopLogger{}
	case *ZeroLogger:
		return t.With(args...)
	default:
		return fieldLogger{next: l, args: args}
	}
}

type fieldLogger struct {
	next Logger
	args []any
}

func (f fieldLogger) merge(args []any) []any {
	out := make([]any, 0, len(f.args)+len(args))
	return append(append(out, f.args...), args...)
}

func (f fieldLogger) Debug(msg string, args ...any) { f.next.Debug(msg, f.merge(args)...) }
func (f fieldLogger) Info(msg string, args ...any)  { f.next.Info(msg, f.merge(args)...) }
func (f fieldLogger) Warn(msg string, args ...any)  { f.next.Warn(msg, f.merge(args)...) }
func (f fieldLogger) Error(msg string, args ...any) { f.next.Error(msg, f.merge(args)...) }

// ZeroLogger adapts a zerolog.Logger to Logger.
type ZeroLogger struct {
	zl zerolog.Logger
}

// New builds a zerolog-backed logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// A nil writer logs to stderr.
func New(level, format string, w io.Writer) *ZeroLogger {
	if w == nil {
		w = os.Stderr
	}
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl}
}

// With returns a child logger that attaches the key/value pairs to every entry.
func (l *ZeroLogger) With(args ...any) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Fields(args).Logger()}
}

func (l *ZeroLogger) Debug(msg string, args ...any) { l.zl.Debug().Fields(args).Msg(msg) }
func (l *ZeroLogger) Info(msg string, args ...any)  { l.zl.Info().Fields(args).Msg(msg) }
func (l *ZeroLogger) Warn(msg string, args ...any)  { l.zl.Warn().Fields(args).Msg(msg) }
func (l *ZeroLogger) Error(msg string, args ...any) { l.zl.Error().Fields(args).Msg(msg) }

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
