package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// LangchainCompleter 基于 langchaingo 的补全实现，支持 openai 与 ollama
type LangchainCompleter struct {
	model       llms.Model
	modelName   string
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// NewLangchainCompleter 按配置创建 langchaingo 模型
func NewLangchainCompleter(cfg *config.LLMConfig) (*LangchainCompleter, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama model: %w", err)
		}

	case "openai":
		if len(cfg.APIKeys) == 0 {
			return nil, errors.New("openai provider requires an API key")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKeys[0]),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported langchaingo provider: %s", cfg.Provider)
	}

	return &LangchainCompleter{
		model:       model,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      log.NewModuleLogger("llm", "langchain"),
	}, nil
}

// Complete 实现 Completer
func (l *LangchainCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.User))

	temperature := l.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := l.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		l.logger.Warn("Langchain completion failed", "task", req.Task, "model", l.modelName, "error", err)
		return "", apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("failed to generate content: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Wrap(apperr.ErrInvalidResponse, errors.New("no response choices"))
	}
	return resp.Choices[0].Content, nil
}

var _ Completer = (*LangchainCompleter)(nil)
