package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSLogLoggerEmitsAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Info("access decision", "user", "t-1", "has_access", true)
	out := buf.String()
	for _, want := range []string{"access decision", "user=t-1", "has_access=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %s", want, out)
		}
	}

	buf.Reset()
	l.Debug("gate outcome", "step", "library_granted")
	if !strings.Contains(buf.String(), "step=library_granted") {
		t.Fatalf("debug output missing attr: %s", buf.String())
	}
}

func TestSLogLoggerNonStringKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	l.Error("scan failed", 42, "column")
	if !strings.Contains(buf.String(), "42=column") {
		t.Fatalf("expected stringified key, got %s", buf.String())
	}
}

func TestSLogLoggerDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	l.Info("lonely", "orphan")
	out := buf.String()
	if !strings.Contains(out, "lonely") || strings.Contains(out, "orphan") {
		t.Fatalf("dangling key must be dropped, got %s", out)
	}
}
