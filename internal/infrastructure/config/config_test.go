package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清理会影响加载结果的环境变量
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAppEnv, EnvHTTPPort, EnvDBDriver, EnvDBHost, EnvDBPort, EnvVectorBackend,
		EnvLLMProvider, EnvEmbeddingDim, EnvFrontendBaseURL, EnvConfigFile,
	} {
		t.Setenv(key, "")
	}
	for i := 1; i <= MaxAPIKeys; i++ {
		t.Setenv(EnvAPIKeyPrefix+string(rune('0'+i)), "")
	}
	ResetDataDir()
	t.Setenv(EnvDataDir, t.TempDir())
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := NewConfig()
	assert.Equal(t, EnvLocal, cfg.AppEnv)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 15*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Embedding.BackoffBase)
	assert.Equal(t, 3, cfg.Embedding.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAppEnv, "Staging")
	t.Setenv(EnvHTTPPort, "8080")
	t.Setenv(EnvDBDriver, "postgres")
	t.Setenv(EnvDBHost, "db.internal")
	t.Setenv(EnvDBPort, "6543")
	t.Setenv("LLM_API_KEY_1", "key-a")
	t.Setenv("LLM_API_KEY_3", "key-c")
	t.Setenv(EnvFrontendBaseURL, "https://shop.example.vn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.Server.HTTPPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, []string{"key-a", "key-c"}, cfg.LLM.APIKeys)
	assert.Equal(t, []string{"key-a", "key-c"}, cfg.Embedding.APIKeys)
	assert.Equal(t, "https://shop.example.vn", cfg.Chat.FrontendBaseURL)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app_env: test
vector:
  backend: memory
embedding:
  dimension: 1024
  window: 30s
  api_keys: ["file-key"]
chat:
  max_classifier_chars: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.AppEnv)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Window)
	assert.Equal(t, []string{"file-key"}, cfg.Embedding.APIKeys)
	assert.Equal(t, 500, cfg.Chat.MaxClassifierChars)
	// 未在文件中出现的字段保留默认值
	assert.Equal(t, 60, cfg.Embedding.RateLimit)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown env", func(c *Config) { c.AppEnv = "dev" }, "app_env"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"bad backend", func(c *Config) { c.Vector.Backend = "milvus" }, "vector.backend"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"production without keys", func(c *Config) { c.AppEnv = EnvProduction }, "llm_api_key_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
