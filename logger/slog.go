package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// SLogLogger adapts the keyvals contract onto a *slog.Logger.
type SLogLogger struct {
	l *slog.Logger
}

// NewSLogLogger wraps l; nil falls back to slog.Default().
func NewSLogLogger(l *slog.Logger) *SLogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SLogLogger{l: l}
}

func (s *SLogLogger) Error(msg string, keyvals ...any) { s.emit(slog.LevelError, msg, keyvals) }
func (s *SLogLogger) Info(msg string, keyvals ...any)  { s.emit(slog.LevelInfo, msg, keyvals) }
func (s *SLogLogger) Debug(msg string, keyvals ...any) { s.emit(slog.LevelDebug, msg, keyvals) }

func (s *SLogLogger) emit(level slog.Level, msg string, keyvals []any) {
	attrs := make([]slog.Attr, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		attrs = append(attrs, slog.Any(key, keyvals[i+1]))
	}
	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}
