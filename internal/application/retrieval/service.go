// Package retrieval 检索服务：语义搜索、相似商品与提示词上下文，以及实体到向量索引的同步
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/embedding"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// 上下文分段标题
const (
	SectionProducts   = "PRODUCT INFORMATION"
	SectionFAQs       = "FAQ INFORMATION"
	SectionCategories = "CATEGORY INFORMATION"
)

// ContextOptions 提示词上下文选项
type ContextOptions struct {
	PerCollectionK int
	Threshold      float32
}

// DefaultContextOptions 每个集合取 3 条，阈值 0.6
func DefaultContextOptions() ContextOptions {
	return ContextOptions{PerCollectionK: 3, Threshold: 0.6}
}

// PromptContext 拼接好的检索上下文
type PromptContext struct {
	Text         string                `json:"text"`
	Products     []vector.SearchResult `json:"products"`
	FAQs         []vector.SearchResult `json:"faqs"`
	Categories   []vector.SearchResult `json:"categories"`
	ExactMatches []vector.SearchResult `json:"exact_matches"`
}

// Empty 是否没有任何可用上下文
func (p *PromptContext) Empty() bool {
	return p == nil || strings.TrimSpace(p.Text) == ""
}

// Service 检索服务
type Service struct {
	embedder  embedding.Embedder
	index     vector.Index
	tokens    *llm.TokenCounter
	maxTokens int
	logger    *slog.Logger
}

// NewService 创建检索服务
func NewService(embedder embedding.Embedder, index vector.Index, tokens *llm.TokenCounter, cfg *config.ChatConfig) *Service {
	return &Service{
		embedder:  embedder,
		index:     index,
		tokens:    tokens,
		maxTokens: cfg.MaxContextTokens,
		logger:    log.NewModuleLogger("retrieval", "service"),
	}
}

// SemanticSearch 语义搜索，空查询或 k <= 0 返回空列表
func (s *Service) SemanticSearch(ctx context.Context, query, collection string, k int, opts vector.SearchOptions) ([]vector.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return []vector.SearchResult{}, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.search(ctx, collection, vec, k, opts)
}

// SimilarToID 与指定向量点最相似的 k 个点，不含自身，ID 不重复
// 源点不存在时返回空列表
func (s *Service) SimilarToID(ctx context.Context, collection, id string, k int) ([]vector.SearchResult, error) {
	if k <= 0 {
		return []vector.SearchResult{}, nil
	}

	source, err := s.index.Retrieve(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve source point: %w", err)
	}
	if source == nil {
		s.logger.Debug("Source point not indexed", "collection", collection, "id", id)
		return []vector.SearchResult{}, nil
	}

	// 多取一条用于排除自身
	results, err := s.search(ctx, collection, source.Vector, k+1, vector.SearchOptions{})
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{id: {}}
	out := make([]vector.SearchResult, 0, k)
	for _, r := range results {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// ContextForPrompt 并行检索商品、FAQ 与分类，拼接成提示词上下文
// 单个集合检索失败只记录日志，对应分段为空
func (s *Service) ContextForPrompt(ctx context.Context, query string, opts ContextOptions) (*PromptContext, error) {
	query = strings.TrimSpace(query)
	if query == "" || opts.PerCollectionK <= 0 {
		return &PromptContext{}, nil
	}

	startTime := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Warn("Failed to embed prompt context query", "error", err)
		return &PromptContext{}, nil
	}

	searchOpts := vector.SearchOptions{Threshold: vector.Threshold(opts.Threshold)}
	pc := &PromptContext{}

	var g errgroup.Group
	for _, target := range []struct {
		collection string
		out        *[]vector.SearchResult
	}{
		{vector.CollectionProducts, &pc.Products},
		{vector.CollectionFAQs, &pc.FAQs},
		{vector.CollectionCategories, &pc.Categories},
	} {
		g.Go(func() error {
			results, err := s.search(ctx, target.collection, vec, opts.PerCollectionK, searchOpts)
			if err != nil {
				s.logger.Warn("Context search failed",
					"collection", target.collection,
					"error", err,
				)
				results = []vector.SearchResult{}
			}
			*target.out = results
			return nil
		})
	}
	_ = g.Wait()

	pc.ExactMatches = exactMatches(query, pc.Products)
	pc.Text = s.assemble(pc)

	s.logger.Debug("Prompt context assembled",
		"products", len(pc.Products),
		"faqs", len(pc.FAQs),
		"categories", len(pc.Categories),
		"exact_matches", len(pc.ExactMatches),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
	return pc, nil
}

func (s *Service) search(ctx context.Context, collection string, vec []float32, k int, opts vector.SearchOptions) ([]vector.SearchResult, error) {
	results, err := s.index.Search(ctx, collection, vec, k, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	return results, nil
}

// exactMatches 名称作为子串（忽略大小写）出现在查询中的商品
func exactMatches(query string, products []vector.SearchResult) []vector.SearchResult {
	q := strings.ToLower(query)
	var out []vector.SearchResult
	for _, p := range products {
		name := strings.ToLower(strings.TrimSpace(p.String(vector.PayloadName)))
		if name != "" && strings.Contains(q, name) {
			out = append(out, p)
		}
	}
	return out
}

// assemble 精确命中的商品排在商品分段最前，超出 Token 预算时截断
func (s *Service) assemble(pc *PromptContext) string {
	var products []string
	exact := make(map[string]struct{}, len(pc.ExactMatches))
	for _, r := range pc.ExactMatches {
		exact[r.ID] = struct{}{}
		products = append(products, r.String(vector.PayloadTextContent))
	}
	for _, r := range pc.Products {
		if _, ok := exact[r.ID]; ok {
			continue
		}
		products = append(products, r.String(vector.PayloadTextContent))
	}

	var sections []string
	add := func(title string, texts []string) {
		var parts []string
		for _, t := range texts {
			if t = strings.TrimSpace(t); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			sections = append(sections, title+":\n"+strings.Join(parts, "\n\n"))
		}
	}
	add(SectionProducts, products)
	add(SectionFAQs, textContents(pc.FAQs))
	add(SectionCategories, textContents(pc.Categories))

	text := strings.Join(sections, "\n\n")
	if s.tokens != nil && s.maxTokens > 0 {
		text = s.tokens.Truncate(text, s.maxTokens)
	}
	return text
}

func textContents(results []vector.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.String(vector.PayloadTextContent))
	}
	return out
}
