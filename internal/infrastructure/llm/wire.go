package llm

import (
	"github.com/google/wire"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// ProviderSet LLM ProviderSet
var ProviderSet = wire.NewSet(
	ProvideCompleter,
	NewTokenCounter,
)

// ProvideCompleter 按配置选择补全实现
// http 使用多 Key 轮换的直连客户端，openai 与 ollama 使用 langchaingo
func ProvideCompleter(cfg *config.LLMConfig) (Completer, error) {
	logger := log.NewModuleLogger("llm", "provider")

	if cfg.Provider == "http" {
		logger.Info("Using OpenAI-compatible LLM client",
			"base_url", cfg.BaseURL,
			"model", cfg.Model,
			"keys", len(cfg.APIKeys),
		)
		return NewClient(cfg.BaseURL, cfg.Model, cfg.APIKeys, cfg.Temperature, cfg.Timeout), nil
	}

	completer, err := NewLangchainCompleter(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Using langchaingo LLM", "provider", cfg.Provider, "model", cfg.Model)
	return completer, nil
}
