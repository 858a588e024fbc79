package core

import (
	"log/slog"
	"os"
)

// Logger is the structured logging interface the scheduler emits through.
// Implementations can bridge to any logging backend.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a key-value pair attached to a log message.
type Field struct {
	Key   string
	Value any
}

// F creates a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// slogLogger adapts log/slog to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewDefaultLogger returns a Logger writing text-formatted records to
// stderr at Info level and above.
func NewDefaultLogger() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

// NewSlogLogger wraps an existing *slog.Logger.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, args(fields)...) }
func (s *slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, args(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, args(fields)...) }
func (s *slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, args(fields)...) }

func args(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

// NoOpLogger discards all messages. The default for embedded use and tests.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
