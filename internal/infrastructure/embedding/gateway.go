package embedding

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
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/log"
)

// maxBatchSize 单次请求最多携带的文本数
const maxBatchSize = 32

// Gateway 向量化网关，调用 OpenAI 兼容的 /embeddings 接口
type Gateway struct {
	url         string
	model       string
	dim         int
	pool        *CredentialPool
	clock       Clock
	cache       Cache
	maxAttempts int
	backoffBase time.Duration
	timeout     time.Duration
	sem         *semaphore.Weighted
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option 网关可选项
type Option func(*Gateway)

// WithClock 替换时间源
func WithClock(clock Clock) Option {
	return func(g *Gateway) {
		g.clock = clock
	}
}

// WithCache 设置查询向量缓存
func WithCache(cache Cache) Option {
	return func(g *Gateway) {
		if cache != nil {
			g.cache = cache
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// NewGateway 创建向量化网关
func NewGateway(cfg *config.EmbeddingConfig, opts ...Option) *Gateway {
	g := &Gateway{
		url:         buildEmbeddingURL(strings.TrimSuffix(cfg.BaseURL, "/")),
		model:       cfg.Model,
		dim:         cfg.Dimension,
		clock:       realClock{},
		cache:       noopCache{},
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{},
		logger:      log.NewModuleLogger("embedding", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 3
	}
	if g.timeout <= 0 {
		g.timeout = 15 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.sem = semaphore.NewWeighted(concurrency)
	g.pool = NewCredentialPool(cfg.APIKeys, cfg.RateLimit, cfg.Window, g.clock)
	return g
}

// buildEmbeddingURL 构建 Embedding API URL
func buildEmbeddingURL(baseURL string) string {
	switch {
	case strings.HasSuffix(baseURL, "/embeddings"):
		return baseURL
	case strings.HasSuffix(baseURL, "/v1"), strings.HasSuffix(baseURL, "/openai"):
		return baseURL + "/embeddings"
	default:
		return baseURL + "/v1/embeddings"
	}
}

// Dimension 向量维度
func (g *Gateway) Dimension() int {
	return g.dim
}

// Pool 凭证池
func (g *Gateway) Pool() *CredentialPool {
	return g.pool
}

// EmbedDocument 文档向量
func (g *Gateway) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embedOne(ctx, text, ModeDocument)
}

// EmbedQuery 查询向量，命中缓存时不访问上游
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return g.zero(), nil
	}
	key := cacheKey(g.model, g.dim, text)
	if vec, ok := g.cache.Get(ctx, key); ok && len(vec) == g.dim {
		return vec, nil
	}
	vec, err := g.embedOne(ctx, text, ModeQuery)
	if err != nil {
		return nil, err
	}
	g.cache.Set(ctx, key, vec)
	return vec, nil
}

func (g *Gateway) embedOne(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return g.zero(), nil
	}
	vecs, err := g.embed(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments 批量向量化，按 maxBatchSize 分批并发请求，并发数受信号量限制
func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// 空文本直接返回零向量
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = g.zero()
			continue
		}
		pending = append(pending, i)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(pending); start += maxBatchSize {
		end := min(start+maxBatchSize, len(pending))
		idx := pending[start:end]

		if err := g.sem.Acquire(egCtx, 1); err != nil {
			break
		}
		eg.Go(func() error {
			defer g.sem.Release(1)

			batch := make([]string, len(idx))
			for j, i := range idx {
				batch[j] = texts[i]
			}
			vecs, err := g.embed(egCtx, batch, ModeDocument)
			if err != nil {
				return err
			}
			for j, i := range idx {
				out[i] = vecs[j]
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) zero() []float32 {
	return make([]float32, g.dim)
}

// acquire 选取凭证；全部耗尽时等待一个窗口再选一次，仍无可用凭证则返回 ErrRateLimited
func (g *Gateway) acquire(ctx context.Context) (string, error) {
	if key, ok := g.pool.Acquire(); ok {
		return key, nil
	}

	g.logger.Warn("All embedding credentials exhausted, cooling down",
		"credentials", g.pool.Size(),
		"cooldown", g.pool.Window(),
	)
	if err := g.clock.Sleep(ctx, g.pool.Window()); err != nil {
		return "", err
	}
	if key, ok := g.pool.Acquire(); ok {
		return key, nil
	}
	return "", apperr.Wrap(apperr.ErrRateLimited, errors.New("all embedding credentials exhausted"))
}

// embed 带重试的单批请求：指数退避，基数 backoffBase
func (g *Gateway) embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		key, err := g.acquire(ctx)
		if err != nil {
			return nil, err
		}

		vecs, err := g.do(ctx, key, texts, mode)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusTooManyRequests {
			g.pool.Exhaust(key)
		}
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		if attempt < g.maxAttempts {
			delay := g.backoffBase << (attempt - 1)
			g.logger.Warn("Embedding request failed, retrying",
				"attempt", attempt,
				"max_attempts", g.maxAttempts,
				"delay", delay,
				"error", err,
			)
			if err := g.clock.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	if errors.Is(lastErr, apperr.ErrInvalidResponse) {
		return nil, lastErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	g.logger.Error("Embedding request failed after all retries",
		"max_attempts", g.maxAttempts,
		"error", lastErr,
	)
	return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, lastErr)
}

// EmbeddingRequest Embedding 请求
type EmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	TaskType   string   `json:"task_type,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// EmbeddingResponse Embedding 响应
type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// statusError 上游返回的非 200 状态
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.code, e.body)
}

// retryable 网络错误、429 与 5xx 可重试；响应格式错误不重试
func retryable(err error) bool {
	if errors.Is(err, apperr.ErrInvalidResponse) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// do 发送一次请求
func (g *Gateway) do(ctx context.Context, key string, texts []string, mode Mode) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(EmbeddingRequest{
		Model:      g.model,
		Input:      texts,
		TaskType:   mode.taskType(),
		Dimensions: g.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	g.logger.Debug("Sending embedding request",
		"url", g.url,
		"batch_size", len(texts),
		"mode", mode,
		"api_key", maskKey(key),
	)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: string(data)}
	}

	var parsed EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(parsed.Data) != len(texts) {
		return nil, apperr.Wrap(apperr.ErrInvalidResponse,
			fmt.Errorf("expected %d vectors, got %d", len(texts), len(parsed.Data)))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("vector index %d out of range", d.Index))
		}
		if len(d.Embedding) == 0 {
			return nil, apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("empty vector at index %d", d.Index))
		}
		if g.dim > 0 && len(d.Embedding) != g.dim {
			return nil, apperr.Wrap(apperr.ErrInvalidResponse,
				fmt.Errorf("vector dimension %d, expected %d", len(d.Embedding), g.dim))
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("missing vector at index %d", i))
		}
	}
	return vectors, nil
}

// maskKey API Key 脱敏
func maskKey(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "***"
}

var _ Embedder = (*Gateway)(nil)
