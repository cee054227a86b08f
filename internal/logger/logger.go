// Package logger provides the structured logger used throughout the
// pipeline. It is a thin wrapper over log/slog that carries a set of bound
// key/value pairs (session id, task id, ...) so call sites don't have to
// repeat them at every log statement.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps *slog.Logger with a fluent With that returns a new bound
// Logger rather than mutating in place.
type Logger struct{ s *slog.Logger }

// New builds a Logger writing structured JSON to stderr at the given level.
func New(level slog.Level) *Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Logger{s: slog.New(h)}
}

// Nop returns a Logger that discards everything, for tests and defaults.
func Nop() *Logger {
	return &Logger{s: slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 100}))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// With returns a new Logger with kv bound to every subsequent call.
func (l *Logger) With(kv ...any) *Logger { return &Logger{s: l.s.With(kv...)} }

func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) { l.s.DebugContext(ctx, msg, kv...) }
func (l *Logger) Info(ctx context.Context, msg string, kv ...any)  { l.s.InfoContext(ctx, msg, kv...) }
func (l *Logger) Warn(ctx context.Context, msg string, kv ...any)  { l.s.WarnContext(ctx, msg, kv...) }
func (l *Logger) Error(ctx context.Context, msg string, kv ...any) { l.s.ErrorContext(ctx, msg, kv...) }
