package log

import (
	"os"
	"strconv"
	"strings"
)

// Config 日志配置
type Config struct {
	// Level debug, info, warn, error
	Level string `yaml:"level"`
	// Format console 或 json
	Format string `yaml:"format"`
	// Output stdout 或 stderr
	Output string `yaml:"output"`
	// File 额外的 JSON 日志文件，非空时与主输出同时写入
	File      string `yaml:"file"`
	AddSource bool   `yaml:"add_source"`
}

// defaultsByEnv 按 APP_ENV 的默认值，未知环境按 production 处理
var defaultsByEnv = map[string]Config{
	"local":      {Level: "debug", Format: "console", AddSource: true},
	"test":       {Level: "warn", Format: "console"},
	"staging":    {Level: "info", Format: "json"},
	"production": {Level: "info", Format: "json"},
}

// NewConfigFromEnv 先取 APP_ENV 对应的默认值，再用 LOG_* 变量覆盖
func NewConfigFromEnv() *Config {
	cfg, ok := defaultsByEnv[strings.ToLower(os.Getenv("APP_ENV"))]
	if !ok {
		cfg = defaultsByEnv["production"]
	}
	cfg.Output = "stdout"

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Output = v
	}
	cfg.File = os.Getenv("LOG_FILE")
	if v, err := strconv.ParseBool(os.Getenv("LOG_ADD_SOURCE")); err == nil {
		cfg.AddSource = v
	}
	return &cfg
}
