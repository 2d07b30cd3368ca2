package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"

	"github.com/shopmind/backend/internal/infrastructure/log/handler"
)

// 全局 logger 实例
var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
	debugMode     bool
	logFile       *os.File
)

// Init 初始化日志系统
// 配置了 File 时，主输出与 JSON 文件输出通过 slog-multi 扇出
func Init(cfg *Config) {
	if cfg == nil {
		cfg = NewConfigFromEnv()
	}

	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	logHandler := newPrimaryHandler(cfg, opts)

	if cfg.File != "" {
		closeFileLocked()
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			slog.New(logHandler).Error("Failed to open log file, using primary output only",
				"file", cfg.File,
				"error", err,
			)
		} else {
			logFile = file
			logHandler = slogmulti.Fanout(logHandler, slog.NewJSONHandler(file, opts))
		}
	}

	defaultLogger = slog.New(logHandler.WithAttrs([]slog.Attr{
		slog.String("service", "shopmind-backend"),
	}))

	debugMode = strings.ToLower(cfg.Level) == "debug"

	slog.SetDefault(defaultLogger)
}

// newPrimaryHandler 根据格式选择主处理器
func newPrimaryHandler(cfg *Config, opts *slog.HandlerOptions) slog.Handler {
	var out io.Writer = os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}

	if strings.ToLower(cfg.Format) == "json" {
		return slog.NewJSONHandler(out, opts)
	}
	return handler.NewConsoleHandler(out, opts)
}

// Close 关闭日志文件
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeFileLocked()
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// GetLogger 获取默认 logger
func GetLogger() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		Init(nil)
		mu.Lock()
		l = defaultLogger
		mu.Unlock()
	}
	return l
}

// With 创建带有额外字段的 logger
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

// NewModuleLogger 为特定模块创建 logger
func NewModuleLogger(module, component string) *slog.Logger {
	return GetLogger().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

// IsDebugMode 检查是否为调试模式
func IsDebugMode() bool {
	return debugMode
}

// parseLevel 解析日志级别
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
