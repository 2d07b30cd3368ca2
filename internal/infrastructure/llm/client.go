package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// Client OpenAI 兼容 Chat Completions 客户端，多个 API Key 轮换使用
type Client struct {
	baseURL     string
	model       string
	keys        []string
	temperature float64
	maxAttempts int
	backoffBase time.Duration
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger

	mu   sync.Mutex
	next int
}

// ChatRequest Chat API 请求
type ChatRequest struct {
	Messages       []Message       `json:"messages"`
	Model          string          `json:"model,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Message Chat 消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat 输出格式
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatResponse Chat API 响应
type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry 设置重试次数与退避基数
func WithRetry(maxAttempts int, backoffBase time.Duration) ClientOption {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.backoffBase = backoffBase
	}
}

// NewClient 创建 LLM 客户端
func NewClient(baseURL, model string, keys []string, temperature float64, timeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if len(keys) == 0 {
		keys = []string{""}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		keys:        keys,
		temperature: temperature,
		maxAttempts: 3,
		backoffBase: 2 * time.Second,
		timeout:     timeout,
		httpClient:  &http.Client{},
		logger:      log.NewModuleLogger("llm", "client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete 调用 /chat/completions
// 429 切换到下一个 Key 立即重试；网络错误与 5xx 按指数退避重试
func (c *Client) Complete(ctx context.Context, req *Request) (string, error) {
	body := ChatRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	body.Temperature = &temperature
	if req.System != "" {
		body.Messages = append(body.Messages, Message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, Message{Role: "user", Content: req.User})
	if req.JSON {
		body.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var (
		lastErr     error
		rateLimited int
		backoff     = c.backoffBase
	)
	for attempt := 1; attempt <= c.maxAttempts+len(c.keys)-1; attempt++ {
		key := c.pickKey()
		content, err := c.do(ctx, key, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err

		var se *statusError
		switch {
		case ctx.Err() != nil:
			return "", apperr.Wrap(apperr.ErrUpstreamUnavailable, ctx.Err())
		case errors.As(err, &se) && se.code == http.StatusTooManyRequests:
			rateLimited++
			c.logger.Warn("LLM credential rate limited, rotating",
				"key", maskKey(key),
				"attempt", attempt,
			)
			if rateLimited >= len(c.keys) {
				return "", apperr.Wrap(apperr.ErrRateLimited, err)
			}
			continue
		case errors.Is(err, apperr.ErrInvalidResponse):
			return "", err
		case errors.As(err, &se) && se.code < 500:
			return "", apperr.Wrap(apperr.ErrInvalidResponse, err)
		}

		if attempt-rateLimited >= c.maxAttempts {
			break
		}
		c.logger.Warn("LLM request failed, retrying",
			"task", req.Task,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return "", apperr.Wrap(apperr.ErrUpstreamUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	c.logger.Error("LLM request failed after retries", "task", req.Task, "error", lastErr)
	return "", apperr.Wrap(apperr.ErrUpstreamUnavailable, lastErr)
}

// TestConnection 测试 LLM API 连接
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.Complete(ctx, &Request{
		User:      `This is a test. Please respond with 'OK' in JSON format: {"status": "OK"}`,
		MaxTokens: 16,
	})
	if err != nil {
		return fmt.Errorf("LLM connection test failed: %w", err)
	}
	c.logger.Info("LLM connection test successful", "model", c.model)
	return nil
}

// pickKey 轮换选择 Key
func (c *Client) pickKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.keys[c.next%len(c.keys)]
	c.next++
	return key
}

func (c *Client) do(ctx context.Context, key string, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	c.logger.Debug("Sending LLM completion request",
		"url", url,
		"model", c.model,
		"key", maskKey(key),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("failed to decode LLM response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return "", apperr.Wrap(apperr.ErrInvalidResponse, errors.New("LLM API returned no choices"))
	}

	c.logger.Debug("LLM completion successful",
		"model", c.model,
		"tokens", chatResp.Usage.TotalTokens,
	)
	return chatResp.Choices[0].Message.Content, nil
}

// statusError 非 200 响应
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("LLM API returned status %d: %s", e.code, e.body)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

var _ Completer = (*Client)(nil)
