package logger

import (
	"log/slog"
	"time"
)

// LogSweep logs one pass of a background worker.
func LogSweep(name string, duration time.Duration, processed int, err error) {
	attrs := []any{
		slog.String("type", "worker"),
		slog.String("name", name),
		slog.Duration("took", duration),
		slog.Int("processed", processed),
	}

	if err != nil {
		slog.Error("Sweep failed", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Info("Sweep completed", attrs...)
	}
}

// LogQuery logs database operations.
func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs,
			slog.String("query", query),
			slog.Any("error", err),
		)...)
	} else {
		slog.Debug("Query executed", append(attrs,
			slog.String("query", query),
		)...)
	}
}

// LogSystem logs system events.
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events.
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
