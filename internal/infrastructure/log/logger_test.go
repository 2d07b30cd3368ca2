package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmind/backend/internal/infrastructure/log/handler"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo}, // 默认值
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	resetLogEnv := func(t *testing.T) {
		for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "LOG_FILE", "LOG_ADD_SOURCE"} {
			t.Setenv(k, "")
		}
	}

	tests := []struct {
		appEnv    string
		level     string
		format    string
		addSource bool
	}{
		{"local", "debug", "console", true},
		{"test", "warn", "console", false},
		{"staging", "info", "json", false},
		{"production", "info", "json", false},
		{"", "info", "json", false},
		{"qa", "info", "json", false},
	}
	for _, tt := range tests {
		t.Run("app env "+tt.appEnv, func(t *testing.T) {
			resetLogEnv(t)
			t.Setenv("APP_ENV", tt.appEnv)

			cfg := NewConfigFromEnv()
			assert.Equal(t, tt.level, cfg.Level)
			assert.Equal(t, tt.format, cfg.Format)
			assert.Equal(t, tt.addSource, cfg.AddSource)
			assert.Equal(t, "stdout", cfg.Output)
			assert.Empty(t, cfg.File)
		})
	}

	t.Run("LOG_ variables override env defaults", func(t *testing.T) {
		resetLogEnv(t)
		t.Setenv("APP_ENV", "local")
		t.Setenv("LOG_LEVEL", "error")
		t.Setenv("LOG_FORMAT", "json")
		t.Setenv("LOG_FILE", "/tmp/shopmind.log")
		t.Setenv("LOG_ADD_SOURCE", "false")

		cfg := NewConfigFromEnv()
		assert.Equal(t, "error", cfg.Level)
		assert.Equal(t, "json", cfg.Format)
		assert.Equal(t, "/tmp/shopmind.log", cfg.File)
		assert.False(t, cfg.AddSource)
	})

	t.Run("bad bool keeps default", func(t *testing.T) {
		resetLogEnv(t)
		t.Setenv("APP_ENV", "local")
		t.Setenv("LOG_ADD_SOURCE", "maybe")

		assert.True(t, NewConfigFromEnv().AddSource)
	})
}

func TestInit_FileFanout(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")

	Init(&Config{Level: "info", Format: "console", Output: "stderr", File: logPath})
	t.Cleanup(func() {
		_ = Close()
		Init(&Config{Level: "info", Format: "console"})
	})

	NewModuleLogger("test", "fanout").Info("fanout message", "chat_id", "c-1")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"fanout message"`)
	assert.Contains(t, string(data), `"chat_id":"c-1"`)
	assert.Contains(t, string(data), `"service":"shopmind-backend"`)
}

func TestInit_DebugMode(t *testing.T) {
	Init(&Config{Level: "debug"})
	assert.True(t, IsDebugMode())

	Init(&Config{Level: "info"})
	assert.False(t, IsDebugMode())
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	h := handler.NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(h).With("module", "orchestrator", "component", "turn")

	logger.Debug("turn finished", "intent", "product_search")

	out := buf.String()
	assert.Contains(t, out, "[orchestrator/turn]")
	assert.Contains(t, out, "turn finished")
	assert.Contains(t, out, "intent=product_search")
}

func TestConsoleHandler_CorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	h := handler.NewConsoleHandler(&buf, nil)
	ctx := WithChatID(WithRequestID(context.Background(), "3f2c9a1e-8b7d-4c6a-9e5f-1a2b3c4d5e6f"), "chat-9")
	logger := FromContext(ctx, slog.New(h).With("service", "shopmind-backend", "module", "http"))

	logger.Info("request handled", "status", 200)

	out := buf.String()
	assert.Contains(t, out, "[http] chat=chat-9 req=3f2c9a1e request handled")
	assert.Contains(t, out, "status=200")
	assert.NotContains(t, out, "service=")
	assert.NotContains(t, out, "request_id=")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithChatID(WithRequestID(context.Background(), "req-1"), "chat-9")
	FromContext(ctx, base).Info("hello")

	assert.Contains(t, buf.String(), "request_id=req-1")
	assert.Contains(t, buf.String(), "chat_id=chat-9")
	assert.Same(t, base, FromContext(context.Background(), base))
}
