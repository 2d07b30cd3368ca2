// Package agents 面向顾客的专职代理：搜索、商品信息、推荐、对比、政策问答、个人资料与通用检索应答
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// 默认返回条数
const (
	defaultK = 5
	maxK     = 20
)

// ProductHit 回答中引用的商品摘要
type ProductHit struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Price            int64   `json:"price"`
	BrandName        string  `json:"brand_name,omitempty"`
	CategoryID       string  `json:"category_id,omitempty"`
	CategoryName     string  `json:"category_name,omitempty"`
	RatingAverage    float64 `json:"rating_average"`
	ShortDescription string  `json:"short_description,omitempty"`
	Stock            int     `json:"stock"`
	SoldCount        int     `json:"sold_count"`
	CreatedAt        int64   `json:"created_at,omitempty"`
	Score            float64 `json:"score,omitempty"`
	URL              string  `json:"url,omitempty"`
}

// hitFromResult 由向量检索结果构造
func hitFromResult(r vector.SearchResult, baseURL string) ProductHit {
	id := r.IDInt64()
	return ProductHit{
		ID:               id,
		Name:             r.String(vector.PayloadName),
		Price:            r.Int64(vector.PayloadPrice),
		BrandName:        r.String(vector.PayloadBrandName),
		CategoryID:       r.String(vector.PayloadCategoryID),
		CategoryName:     r.String(vector.PayloadCategoryName),
		RatingAverage:    r.Float(vector.PayloadRatingAverage),
		ShortDescription: r.String(vector.PayloadShortDescription),
		Stock:            int(r.Int64(vector.PayloadStock)),
		SoldCount:        int(r.Int64(vector.PayloadSoldCount)),
		CreatedAt:        r.Int64(vector.PayloadCreatedAt),
		Score:            float64(r.Score),
		URL:              catalog.ProductURL(baseURL, id),
	}
}

// hitFromProduct 由商品实体构造
func hitFromProduct(p *catalog.Product, baseURL string) ProductHit {
	return ProductHit{
		ID:               p.ID,
		Name:             p.Name,
		Price:            p.Price,
		BrandName:        p.BrandName,
		CategoryID:       p.CategoryID,
		CategoryName:     p.CategoryName,
		RatingAverage:    p.RatingAverage,
		ShortDescription: p.ShortDescription,
		Stock:            p.Stock,
		SoldCount:        p.SoldCount,
		CreatedAt:        p.CreatedAt.Unix(),
		URL:              catalog.ProductURL(baseURL, p.ID),
	}
}

// formatHits 渲染编号商品列表
func formatHits(hits []ProductHit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s - %s", i+1, h.Name, catalog.FormatPrice(h.Price))
		if h.RatingAverage > 0 {
			fmt.Fprintf(&b, " (%.1f/5)", h.RatingAverage)
		}
		if h.Stock <= 0 {
			b.WriteString(" - tạm hết hàng")
		}
		if h.URL != "" {
			fmt.Fprintf(&b, "\n   %s", h.URL)
		}
		if i < len(hits)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// productSources 商品检索依据
func productSources(hits []ProductHit) []agent.Source {
	sources := make([]agent.Source, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, agent.Source{
			Collection: vector.CollectionProducts,
			ID:         strconv.FormatInt(h.ID, 10),
			Score:      float32(h.Score),
		})
	}
	return sources
}

// resultSources 检索结果转依据
func resultSources(collection string, results []vector.SearchResult) []agent.Source {
	sources := make([]agent.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, agent.Source{Collection: collection, ID: r.ID, Score: r.Score})
	}
	return sources
}

func answer(name agent.Name, content string) *agent.Response {
	return &agent.Response{Content: content, SourceAgent: name, Kind: agent.KindAnswer}
}

func notFound(name agent.Name, content string) *agent.Response {
	return &agent.Response{Content: content, SourceAgent: name, Kind: agent.KindNotFound}
}

func clarify(name agent.Name, content string) *agent.Response {
	return &agent.Response{Content: content, SourceAgent: name, Kind: agent.KindClarify}
}

// failure 上游或存储失败转为用户可读的错误响应
func failure(name agent.Name, logger *slog.Logger, err error) *agent.Response {
	if apperr.IsTransient(err) {
		logger.Warn("Agent degraded by upstream failure", "agent", name, "error", err)
	} else {
		logger.Error("Agent failed", "agent", name, "error", err)
	}
	return &agent.Response{
		Content:     apperr.UserMessage(err),
		SourceAgent: name,
		Kind:        agent.KindError,
	}
}

// completeJSON 调用 LLM 并解析 JSON，失败时返回 false 由调用方使用默认值
func completeJSON(ctx context.Context, completer llm.Completer, logger *slog.Logger, req *llm.Request, v any) bool {
	req.JSON = true
	content, err := completer.Complete(ctx, req)
	if err != nil {
		logger.Warn("LLM call failed, using heuristic defaults", "task", req.Task, "error", err)
		return false
	}
	if !llm.ExtractJSON(content, v) {
		logger.Warn("LLM returned unparsable JSON, using heuristic defaults",
			"task", req.Task,
			"content", llm.TruncateRunes(content, 200),
		)
		return false
	}
	return true
}

// clampK 限制返回条数
func clampK(k int) int {
	if k <= 0 {
		return defaultK
	}
	if k > maxK {
		return maxK
	}
	return k
}

// inCategory 分类相同或为其子分类
func inCategory(categoryID, parent string) bool {
	return categoryID == parent || strings.HasPrefix(categoryID, parent+"/")
}

// upstream 给未分类的检索错误打上上游不可用类别
func upstream(err error) error {
	if err == nil || apperr.Kind(err) != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
}
