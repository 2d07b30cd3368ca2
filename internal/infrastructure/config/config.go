// Package config 加载应用配置：.env → YAML 文件 → 环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 运行环境
const (
	EnvLocal      = "local"
	EnvTest       = "test"
	EnvStaging    = "staging"
	EnvProduction = "production"
)

// EnvConfigFile 配置文件路径环境变量名
const EnvConfigFile = "SHOPMIND_CONFIG"

// MaxAPIKeys 凭证池最多读取的 LLM_API_KEY_n 数量
const MaxAPIKeys = 5

// Config 应用配置
type Config struct {
	AppEnv    string          `yaml:"app_env"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Redis     RedisConfig     `yaml:"redis"`
	Chat      ChatConfig      `yaml:"chat"`
	ML        MLConfig        `yaml:"ml"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Driver sqlite 或 postgres
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// VectorConfig 向量库配置
type VectorConfig struct {
	// Backend qdrant 或 memory
	Backend string        `yaml:"backend"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbeddingConfig 向量化网关配置
type EmbeddingConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Model     string   `yaml:"model"`
	Dimension int      `yaml:"dimension"`
	APIKeys   []string `yaml:"api_keys"`
	// RateLimit 单个凭证在一个窗口内允许的调用次数
	RateLimit   int           `yaml:"rate_limit"`
	Window      time.Duration `yaml:"window"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	Timeout     time.Duration `yaml:"timeout"`
	// Concurrency 批量向量化的并发上限
	Concurrency int64 `yaml:"concurrency"`
}

// LLMConfig 大模型配置
type LLMConfig struct {
	// Provider http（OpenAI 兼容接口直连）、openai 或 ollama（langchaingo）
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKeys     []string      `yaml:"api_keys"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

// RedisConfig 查询向量缓存配置，Addr 为空时禁用
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ChatConfig 对话编排配置
type ChatConfig struct {
	FrontendBaseURL string `yaml:"frontend_base_url"`
	// MaxClassifierChars 送入意图分类提示词的最大字符数
	MaxClassifierChars int           `yaml:"max_classifier_chars"`
	MaxContextTokens   int           `yaml:"max_context_tokens"`
	TurnTimeout        time.Duration `yaml:"turn_timeout"`
	HistoryLimit       int           `yaml:"history_limit"`
}

// MLConfig 模型产物配置
type MLConfig struct {
	ModelDir string `yaml:"model_dir"`
	// WatchArtifacts 监听产物目录并热加载
	WatchArtifacts bool `yaml:"watch_artifacts"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// NewConfig 创建配置（默认值）
func NewConfig() *Config {
	return &Config{
		AppEnv: EnvLocal,
		Server: ServerConfig{
			HTTPPort: ":19980",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            DataPath("shopmind.db"),
			Host:            "localhost",
			Port:            5432,
			Name:            "shopmind",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			QueryTimeout:    5 * time.Second,
		},
		Vector: VectorConfig{
			Backend: "qdrant",
			Host:    "localhost",
			Port:    6334,
			Timeout: 5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:       "text-embedding-004",
			Dimension:   768,
			RateLimit:   60,
			Window:      time.Minute,
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
			Timeout:     15 * time.Second,
			Concurrency: 4,
		},
		LLM: LLMConfig{
			Provider:    "http",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:       "gemini-2.0-flash",
			Timeout:     30 * time.Second,
			Temperature: 0.2,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Chat: ChatConfig{
			MaxClassifierChars: 2000,
			MaxContextTokens:   1500,
			TurnTimeout:        90 * time.Second,
			HistoryLimit:       50,
		},
		ML: MLConfig{
			ModelDir:       DataPath("models"),
			WatchArtifacts: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Load 加载配置
// 顺序：默认值 → .env → YAML 文件（SHOPMIND_CONFIG 或 <数据目录>/config.yaml）→ 环境变量
func Load() (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := NewConfig()

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = DataPath("config.yaml")
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 从 YAML 文件读取配置，覆盖默认值
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.AppEnv {
	case EnvLocal, EnvTest, EnvStaging, EnvProduction:
	default:
		return &ValidationError{Field: "app_env", Message: fmt.Sprintf("unknown environment %q", c.AppEnv)}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return &ValidationError{Field: "database.driver", Message: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}

	switch c.Vector.Backend {
	case "qdrant", "memory":
	default:
		return &ValidationError{Field: "vector.backend", Message: fmt.Sprintf("unsupported backend %q", c.Vector.Backend)}
	}

	switch c.LLM.Provider {
	case "http", "openai", "ollama":
	default:
		return &ValidationError{Field: "llm.provider", Message: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}

	if c.Embedding.Dimension <= 0 {
		return &ValidationError{Field: "embedding.dimension", Message: "must be positive"}
	}
	if c.Embedding.RateLimit <= 0 {
		return &ValidationError{Field: "embedding.rate_limit", Message: "must be positive"}
	}
	if c.Embedding.MaxAttempts <= 0 {
		return &ValidationError{Field: "embedding.max_attempts", Message: "must be positive"}
	}

	// 本地与测试环境允许不配置凭证（使用内存实现或 mock）
	if c.AppEnv == EnvStaging || c.AppEnv == EnvProduction {
		if len(c.Embedding.APIKeys) == 0 {
			return &ValidationError{Field: "llm_api_key_1", Message: "at least one credential is required"}
		}
	}
	return nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// ValidationError 配置字段校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// IsValidationError 检查是否为配置校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewVectorConfig 创建向量库配置
func NewVectorConfig(cfg *Config) *VectorConfig {
	return &cfg.Vector
}

// NewEmbeddingConfig 创建向量化配置
func NewEmbeddingConfig(cfg *Config) *EmbeddingConfig {
	return &cfg.Embedding
}

// NewLLMConfig 创建大模型配置
func NewLLMConfig(cfg *Config) *LLMConfig {
	return &cfg.LLM
}

// NewRedisConfig 创建 Redis 配置
func NewRedisConfig(cfg *Config) *RedisConfig {
	return &cfg.Redis
}

// NewChatConfig 创建对话配置
func NewChatConfig(cfg *Config) *ChatConfig {
	return &cfg.Chat
}

// NewMLConfig 创建模型配置
func NewMLConfig(cfg *Config) *MLConfig {
	return &cfg.ML
}

// NewWebSocketConfig 创建 WebSocket 配置
func NewWebSocketConfig(cfg *Config) *WebSocketConfig {
	return &cfg.WebSocket
}

func normalizeEnvName(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
