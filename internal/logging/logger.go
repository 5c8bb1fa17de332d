// Package logging configures log/slog and carries correlation ids through
// context.
//
// Two ids are propagated: chi's request id for HTTP-triggered work, and the
// batch id of an ingestion run, so every line written while a run is active
// can be traced back to it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey int

const batchIDKey ctxKey = iota

// Setup configures the global slog logger.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextWithBatchID tags ctx with the batch id of the current run.
func ContextWithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDKey, batchID)
}

// BatchID returns the batch id stored in ctx, if any.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey).(string)
	return id
}

// FromContext returns the default logger enriched with the request id and
// batch id found in ctx.
//
// Usage:
//
//	func handleRun(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("run requested", "paths", len(req.Paths))
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if batchID := BatchID(ctx); batchID != "" {
		logger = logger.With("batch_id", batchID)
	}

	return logger
}

// WithFields returns a context logger with additional structured fields,
// for operations that log several steps with the same context.
//
//	log := logging.WithFields(ctx, "type", typeName, "table", table)
//	log.Info("write started")
//	// ...
//	log.Info("write finished", "rows", n)
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
