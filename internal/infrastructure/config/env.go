package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 环境变量名
const (
	EnvAppEnv          = "APP_ENV"
	EnvHTTPPort        = "HTTP_PORT"
	EnvDBDriver        = "DB_DRIVER"
	EnvDBPath          = "DB_PATH"
	EnvDBHost          = "DB_HOST"
	EnvDBPort          = "DB_PORT"
	EnvDBUser          = "DB_USER"
	EnvDBPassword      = "DB_PASSWORD"
	EnvDBName          = "DB_NAME"
	EnvVectorBackend   = "VECTOR_BACKEND"
	EnvVectorHost      = "VECTOR_HOST"
	EnvVectorPort      = "VECTOR_PORT"
	EnvLLMProvider     = "LLM_PROVIDER"
	EnvLLMBaseURL      = "LLM_BASE_URL"
	EnvLLMModel        = "LLM_MODEL"
	EnvEmbeddingURL    = "EMBEDDING_BASE_URL"
	EnvEmbeddingModel  = "EMBEDDING_MODEL"
	EnvEmbeddingDim    = "EMBEDDING_DIMENSION"
	EnvEmbeddingLimit  = "EMBEDDING_RATE_LIMIT"
	EnvEmbeddingWindow = "EMBEDDING_WINDOW"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvFrontendBaseURL = "CHAT_FRONTEND_BASE_URL"
	EnvModelDir        = "MODEL_DIR"
	// EnvAPIKeyPrefix 凭证变量前缀，LLM_API_KEY_1 .. LLM_API_KEY_5
	EnvAPIKeyPrefix = "LLM_API_KEY_"
)

// applyEnv 使用环境变量覆盖配置
func (c *Config) applyEnv() {
	setString(&c.AppEnv, EnvAppEnv)
	c.AppEnv = normalizeEnvName(c.AppEnv)
	if v := os.Getenv(EnvHTTPPort); v != "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		c.Server.HTTPPort = v
	}

	setString(&c.Database.Driver, EnvDBDriver)
	setString(&c.Database.Path, EnvDBPath)
	setString(&c.Database.Host, EnvDBHost)
	setInt(&c.Database.Port, EnvDBPort)
	setString(&c.Database.User, EnvDBUser)
	setString(&c.Database.Password, EnvDBPassword)
	setString(&c.Database.Name, EnvDBName)

	setString(&c.Vector.Backend, EnvVectorBackend)
	setString(&c.Vector.Host, EnvVectorHost)
	setInt(&c.Vector.Port, EnvVectorPort)

	setString(&c.LLM.Provider, EnvLLMProvider)
	setString(&c.LLM.BaseURL, EnvLLMBaseURL)
	setString(&c.LLM.Model, EnvLLMModel)

	setString(&c.Embedding.BaseURL, EnvEmbeddingURL)
	setString(&c.Embedding.Model, EnvEmbeddingModel)
	setInt(&c.Embedding.Dimension, EnvEmbeddingDim)
	setInt(&c.Embedding.RateLimit, EnvEmbeddingLimit)
	setDuration(&c.Embedding.Window, EnvEmbeddingWindow)

	setString(&c.Redis.Addr, EnvRedisAddr)
	setString(&c.Chat.FrontendBaseURL, EnvFrontendBaseURL)
	setString(&c.ML.ModelDir, EnvModelDir)

	// 凭证池：环境变量中的 key 优先于文件
	if keys := apiKeysFromEnv(); len(keys) > 0 {
		c.LLM.APIKeys = keys
		c.Embedding.APIKeys = keys
	}
	if len(c.Embedding.APIKeys) == 0 {
		c.Embedding.APIKeys = c.LLM.APIKeys
	}
}

// apiKeysFromEnv 读取 LLM_API_KEY_1..5，跳过空值
func apiKeysFromEnv() []string {
	keys := make([]string, 0, MaxAPIKeys)
	for i := 1; i <= MaxAPIKeys; i++ {
		if v := strings.TrimSpace(os.Getenv(fmt.Sprintf("%s%d", EnvAPIKeyPrefix, i))); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
