package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// reviewSnippets 评价类问题附加的评价条数
const reviewSnippets = 5

const generalPrompt = `You are ShopMind, the shopping assistant of a Vietnamese e-commerce marketplace.
Answer the customer in Vietnamese, friendly and concise.
Use the CONTEXT below when it is relevant. Never invent prices, stock levels, policies or product specifications that are not in the context.
If the context does not answer the question, say so briefly and suggest what the customer can ask instead.`

// GeneralAgent 通用检索增强应答，也是其他代理失败时的兜底
type GeneralAgent struct {
	retrieval *retrieval.Service
	resolver  *ProductResolver
	completer llm.Completer
	logger    *slog.Logger
}

// NewGeneralAgent 创建通用应答代理
func NewGeneralAgent(retrieval *retrieval.Service, resolver *ProductResolver, completer llm.Completer) *GeneralAgent {
	return &GeneralAgent{
		retrieval: retrieval,
		resolver:  resolver,
		completer: completer,
		logger:    log.NewModuleLogger("agents", "general"),
	}
}

// Name 实现 agent.Agent
func (a *GeneralAgent) Name() agent.Name {
	return agent.General
}

// Handle 检索商品、FAQ 与分类上下文后交给 LLM 生成回答
func (a *GeneralAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	pc, err := a.retrieval.ContextForPrompt(ctx, req.Message, retrieval.DefaultContextOptions())
	if err != nil {
		return failure(a.Name(), a.logger, upstream(err)), nil
	}

	contextText := pc.Text
	var reviews []vector.SearchResult
	if req.Intent == intent.ReviewInquiry {
		reviews = a.reviews(ctx, req)
		if len(reviews) > 0 {
			contextText = strings.TrimSpace(contextText + "\n\nCUSTOMER REVIEWS:\n" + strings.Join(textContents(reviews), "\n\n"))
		}
	}
	if strings.TrimSpace(contextText) == "" {
		contextText = "(no relevant information found)"
	}

	content, err := a.completer.Complete(ctx, &llm.Request{
		Task:        "general_answer",
		System:      generalPrompt,
		User:        fmt.Sprintf("CONTEXT:\n%s\n\nCUSTOMER MESSAGE:\n%s", contextText, req.Message),
		Temperature: llm.Temperature(0.3),
	})
	if err != nil {
		return failure(a.Name(), a.logger, upstream(err)), nil
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return failure(a.Name(), a.logger, apperr.Wrap(apperr.ErrInvalidResponse, fmt.Errorf("empty general answer"))), nil
	}

	resp := answer(a.Name(), content)
	sources := resultSources(vector.CollectionProducts, pc.Products)
	sources = append(sources, resultSources(vector.CollectionFAQs, pc.FAQs)...)
	sources = append(sources, resultSources(vector.CollectionCategories, pc.Categories)...)
	sources = append(sources, resultSources(vector.CollectionReviews, reviews)...)
	resp.Sources = sources
	resp.Data = map[string]any{
		"context_products":   len(pc.Products),
		"context_faqs":       len(pc.FAQs),
		"context_categories": len(pc.Categories),
		"context_reviews":    len(reviews),
	}
	return resp, nil
}

// reviews 按提及的商品过滤评价，失败只记录日志
func (a *GeneralAgent) reviews(ctx context.Context, req *agent.Request) []vector.SearchResult {
	opts := vector.SearchOptions{}

	productID, ok := req.Entities.Int64(intent.KeyProductID)
	if !ok {
		if name := req.Entities.String(intent.KeyProductName); name != "" {
			p, err := a.resolver.ByName(ctx, name)
			if err != nil {
				a.logger.Warn("Failed to resolve reviewed product", "name", name, "error", err)
			} else if p != nil {
				productID, ok = p.ID, true
			}
		}
	}
	if ok {
		opts.Filter = map[string]any{vector.PayloadProductID: productID}
	}

	results, err := a.retrieval.SemanticSearch(ctx, req.Message, vector.CollectionReviews, reviewSnippets, opts)
	if err != nil {
		a.logger.Warn("Review search failed", "chat_id", req.ChatID, "error", err)
		return nil
	}
	return results
}

func textContents(results []vector.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.String(vector.PayloadTextContent))
	}
	return out
}
