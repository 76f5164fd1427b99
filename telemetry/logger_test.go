package telemetry

import (
	"context"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("default logger", func(t *testing.T) {
		logger := NewLogger()
		if logger == nil || logger.Slog() == nil {
			t.Fatal("expected non-nil logger")
		}
	})

	t.Run("with JSON output", func(t *testing.T) {
		logger := NewLogger(WithLogLevel("debug"), WithJSON())
		if logger == nil {
			t.Fatal("expected non-nil logger")
		}
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		logger := NewLogger(WithLogLevel("bogus"))
		if logger == nil {
			t.Fatal("expected non-nil logger")
		}
	})
}

func TestNewLoggerFromConfig(t *testing.T) {
	jsonLogger := NewLoggerFromConfig("warn", "json")
	textLogger := NewLoggerFromConfig("info", "text")
	if jsonLogger == nil || textLogger == nil {
		t.Fatal("expected non-nil loggers")
	}
}

func TestLoggerMethodsDoNotPanic(t *testing.T) {
	logger := NewLogger(WithLogLevel("debug"))
	ctx := context.Background()
	logger.Info(ctx, "info", "k", "v")
	logger.Warn(ctx, "warn", "n", 1)
	logger.Error(ctx, "error", "err", "boom")
	logger.Debug(ctx, "debug")
	logger.With("component", "test").Info(ctx, "from derived")
}

func TestLoggerContextRoundTrip(t *testing.T) {
	logger := NewLogger()
	ctx := WithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("expected same logger instance from context")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("expected default logger when none attached")
	}
}
