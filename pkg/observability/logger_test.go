package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

		logger.Info("batch completed", "items", 3)

		assert.Contains(t, buf.String(), "batch completed")
		assert.Contains(t, buf.String(), "items=3")
	})

	t.Run("json format with service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{
			Level:          LogLevelInfo,
			Format:         LogFormatJSON,
			Output:         &buf,
			ServiceName:    "carevisit-worker",
			ServiceVersion: "1.2.0",
		})

		logger.Info("relay started")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "relay started", entry["msg"])
		assert.Equal(t, "carevisit-worker", entry["service"])
		assert.Equal(t, "1.2.0", entry["version"])
	})

	t.Run("respects log level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

		logger.Debug("debug message")
		logger.Info("info message")
		logger.Warn("warn message")
		logger.Error("error message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.NotContains(t, buf.String(), "info message")
		assert.Contains(t, buf.String(), "warn message")
		assert.Contains(t, buf.String(), "error message")
	})

	t.Run("copies context values", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

		ctx := WithCorrelationID(context.Background(), "corr-123")
		ctx = WithBatchID(ctx, "b-7")
		ctx = WithRequesterID(ctx, "nurse-1")
		logger.With("step", 0).InfoContext(ctx, "decision recorded")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "corr-123", entry[CorrelationIDKey])
		assert.Equal(t, "b-7", entry[BatchIDKey])
		assert.Equal(t, "nurse-1", entry[RequesterIDKey])
		assert.EqualValues(t, 0, entry["step"])
	})

	t.Run("omits empty context values", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

		logger.InfoContext(context.Background(), "no context")

		entry := decodeLine(t, &buf)
		assert.NotContains(t, entry, CorrelationIDKey)
		assert.NotContains(t, entry, BatchIDKey)
	})
}

func TestServiceLogConfig(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		format     string
		debug      bool
		wantLevel  LogLevel
		wantFormat LogFormat
	}{
		{"defaults", "", "", false, LogLevelInfo, LogFormatText},
		{"explicit", "warn", "json", false, LogLevelWarn, LogFormatJSON},
		{"debug wins", "error", "json", true, LogLevelDebug, LogFormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServiceLogConfig("carevisit-mcp", "v1", tt.level, tt.format, tt.debug)
			assert.Equal(t, tt.wantLevel, cfg.Level)
			assert.Equal(t, tt.wantFormat, cfg.Format)
			assert.Equal(t, "carevisit-mcp", cfg.ServiceName)
			assert.Equal(t, "v1", cfg.ServiceVersion)
		})
	}
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected slog.Level
	}{
		{LogLevelDebug, slog.LevelDebug},
		{LogLevelInfo, slog.LevelInfo},
		{LogLevelWarn, slog.LevelWarn},
		{LogLevelError, slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, parseSlogLevel(tt.input))
		})
	}
}

func TestContextValues(t *testing.T) {
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
	assert.Empty(t, BatchIDFromContext(context.Background()))

	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, CorrelationIDFromContext(ctx), "an empty id is generated")

	ctx = WithRequesterID(ctx, "coordinator-2")
	assert.Equal(t, "coordinator-2", RequesterIDFromContext(ctx))
}
