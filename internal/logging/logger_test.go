package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext_AddsIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = ContextWithBatchID(ctx, "batch-1")

	WithFields(ctx, "type", "orders").Info("hello")

	out := buf.String()
	for _, want := range []string{`"request_id":"req-1"`, `"batch_id":"batch-1"`, `"type":"orders"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}

func TestBatchID_Absent(t *testing.T) {
	if got := BatchID(context.Background()); got != "" {
		t.Errorf("BatchID() = %q, want empty", got)
	}
}
