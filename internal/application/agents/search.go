package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopmind/backend/internal/application/retrieval"
	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/apperr"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/events"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// 搜索类型
const (
	SearchKeyword  = "keyword"
	SearchCategory = "category"
	SearchFiltered = "filtered"
	SearchSemantic = "semantic"
)

// 排序方式
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortNewest    = "newest"
)

// searchPoolMin 后置过滤前至少取回的候选数
const searchPoolMin = 20

const searchParsePrompt = `You are the query parser of a Vietnamese e-commerce shop.
Convert the customer's message into a JSON object with exactly these fields:
{
  "search_kind": "keyword" | "category" | "filtered" | "semantic",
  "query": "the product words to search for, without price or rating phrases",
  "filters": {
    "category": "category name or empty",
    "brand": "brand name or empty",
    "price_range": {"min": 0, "max": 0},
    "min_rating": 0,
    "sort_by": "price_asc" | "price_desc" | "rating" | "newest" | ""
  },
  "k": 5
}
Prices are in VND ("10 triệu" = 10000000, "500k" = 500000); use 0 for an open bound.
Use "category" when the customer only browses a category, "filtered" when price, brand or rating constraints are present.
Return only the JSON object.`

// SearchQuery 结构化搜索请求
type SearchQuery struct {
	SearchKind string        `json:"search_kind"`
	Query      string        `json:"query"`
	Filters    SearchFilters `json:"filters"`
	K          int           `json:"k"`
}

// SearchFilters 后置过滤条件
type SearchFilters struct {
	Category   string            `json:"category,omitempty"`
	CategoryID string            `json:"category_id,omitempty"`
	Brand      string            `json:"brand,omitempty"`
	PriceRange intent.PriceRange `json:"price_range"`
	MinRating  float64           `json:"min_rating,omitempty"`
	SortBy     string            `json:"sort_by,omitempty"`
}

// rawSearchQuery LLM 输出，价格区间按宽松格式解析
type rawSearchQuery struct {
	SearchKind string `json:"search_kind"`
	Query      string `json:"query"`
	Filters    struct {
		Category   string  `json:"category"`
		Brand      string  `json:"brand"`
		PriceRange any     `json:"price_range"`
		MinRating  float64 `json:"min_rating"`
		SortBy     string  `json:"sort_by"`
	} `json:"filters"`
	K int `json:"k"`
}

// SearchAgent 搜索与发现代理
type SearchAgent struct {
	retrieval  *retrieval.Service
	products   catalog.ProductRepository
	categories catalog.CategoryRepository
	searchLogs catalog.SearchLogRepository
	publisher  events.Publisher
	completer  llm.Completer
	baseURL    string
	logger     *slog.Logger
}

// NewSearchAgent 创建搜索代理
func NewSearchAgent(
	retrieval *retrieval.Service,
	products catalog.ProductRepository,
	categories catalog.CategoryRepository,
	searchLogs catalog.SearchLogRepository,
	publisher events.Publisher,
	completer llm.Completer,
	cfg *config.ChatConfig,
) *SearchAgent {
	return &SearchAgent{
		retrieval:  retrieval,
		products:   products,
		categories: categories,
		searchLogs: searchLogs,
		publisher:  publisher,
		completer:  completer,
		baseURL:    cfg.FrontendBaseURL,
		logger:     log.NewModuleLogger("agents", "search"),
	}
}

// Name 实现 agent.Agent
func (a *SearchAgent) Name() agent.Name {
	return agent.SearchDiscovery
}

// Handle 解析查询、检索、后置过滤与排序
func (a *SearchAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	q := a.parse(ctx, req)

	categoryID, err := resolveCategoryID(ctx, a.categories, q.Filters.Category)
	if err != nil {
		return failure(a.Name(), a.logger, err), nil
	}
	q.Filters.CategoryID = categoryID

	hits, err := a.execute(ctx, q)
	if err != nil {
		return failure(a.Name(), a.logger, err), nil
	}
	a.record(ctx, req, q)

	a.logger.Debug("Search completed",
		"chat_id", req.ChatID,
		"kind", q.SearchKind,
		"query", q.Query,
		"category_id", q.Filters.CategoryID,
		"brand", q.Filters.Brand,
		"results", len(hits),
	)

	if len(hits) == 0 {
		resp := notFound(a.Name(), "Xin lỗi, mình chưa tìm thấy sản phẩm nào phù hợp. Bạn thử nới rộng khoảng giá hoặc đổi từ khóa nhé.")
		resp.Data = map[string]any{"query": q, "products": []ProductHit{}}
		return resp, nil
	}

	resp := answer(a.Name(), fmt.Sprintf("Mình tìm thấy %d sản phẩm phù hợp:\n%s", len(hits), formatHits(hits)))
	resp.Data = map[string]any{"query": q, "products": hits}
	resp.Sources = productSources(hits)
	return resp, nil
}

// parse LLM 结构化解析，失败时以实体与启发式规则补齐
func (a *SearchAgent) parse(ctx context.Context, req *agent.Request) *SearchQuery {
	q := &SearchQuery{}

	var raw rawSearchQuery
	if completeJSON(ctx, a.completer, a.logger, &llm.Request{
		Task:        "search_parse",
		System:      searchParsePrompt,
		User:        req.Message,
		Temperature: llm.Temperature(0),
	}, &raw) {
		q.SearchKind = raw.SearchKind
		q.Query = strings.TrimSpace(raw.Query)
		q.K = raw.K
		q.Filters.Category = strings.TrimSpace(raw.Filters.Category)
		q.Filters.Brand = strings.TrimSpace(raw.Filters.Brand)
		q.Filters.PriceRange = intent.Entities{intent.KeyPriceRange: raw.Filters.PriceRange}.PriceRange()
		q.Filters.MinRating = raw.Filters.MinRating
		q.Filters.SortBy = raw.Filters.SortBy
	}

	if q.Query == "" {
		q.Query = strings.TrimSpace(req.Message)
	}
	if q.Filters.Category == "" {
		q.Filters.Category = req.Entities.String(intent.KeyCategory)
	}
	if q.Filters.Brand == "" {
		q.Filters.Brand = req.Entities.String(intent.KeyBrand)
	}
	if q.Filters.PriceRange.IsZero() {
		q.Filters.PriceRange = req.Entities.PriceRange()
	}
	if q.Filters.SortBy == "" {
		q.Filters.SortBy = sortFromText(req.Message)
	}
	switch q.SearchKind {
	case SearchKeyword, SearchCategory, SearchFiltered, SearchSemantic:
	default:
		if q.Filters.Brand != "" || !q.Filters.PriceRange.IsZero() || q.Filters.MinRating > 0 {
			q.SearchKind = SearchFiltered
		} else {
			q.SearchKind = SearchSemantic
		}
	}
	q.K = clampK(q.K)
	return q
}

// execute 取候选后在内存中过滤、排序并截断
func (a *SearchAgent) execute(ctx context.Context, q *SearchQuery) ([]ProductHit, error) {
	pool := q.K * 4
	if pool < searchPoolMin {
		pool = searchPoolMin
	}

	var candidates []ProductHit
	if q.SearchKind == SearchCategory && q.Filters.CategoryID != "" {
		products, err := a.products.Popular(ctx, q.Filters.CategoryID, pool)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list category products: %w", err))
		}
		for _, p := range products {
			candidates = append(candidates, hitFromProduct(p, a.baseURL))
		}
	} else {
		results, err := a.retrieval.SemanticSearch(ctx, q.Query, vector.CollectionProducts, pool, vector.SearchOptions{})
		if err != nil {
			return nil, upstream(err)
		}
		for _, r := range results {
			candidates = append(candidates, hitFromResult(r, a.baseURL))
		}
	}

	hits := filterHits(candidates, q.Filters)
	sortHits(hits, q.Filters.SortBy)
	if len(hits) > q.K {
		hits = hits[:q.K]
	}
	return hits, nil
}

// record 写入搜索记录并异步同步到向量索引，失败不影响回答
func (a *SearchAgent) record(ctx context.Context, req *agent.Request, q *SearchQuery) {
	entry := &catalog.SearchLog{Query: q.Query}
	if !req.IsShop() && req.UserID > 0 {
		id := req.UserID
		entry.CustomerID = &id
	}
	if err := a.searchLogs.Create(ctx, entry); err != nil {
		a.logger.Warn("Failed to record search log", "error", err)
		return
	}
	if a.publisher != nil {
		a.publisher.Publish(&events.EntityEvent{
			EventType: events.EntityUpserted,
			Kind:      events.EntitySearchLog,
			ID:        strconv.FormatInt(entry.ID, 10),
			EventTime: time.Now(),
		})
	}
}

// resolveCategoryID 将分类名称或路径解析为分类 ID，无法识别返回空串
// 依次匹配精确 ID、折叠后同名、文本中包含的最长分类名
func resolveCategoryID(ctx context.Context, repo catalog.CategoryRepository, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	all, err := repo.List(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list categories: %w", err))
	}

	folded := intent.Fold(value)
	best, bestLen := "", 0
	for _, c := range all {
		if c.ID == value {
			return c.ID, nil
		}
		name := intent.Fold(c.Name)
		if name == folded {
			return c.ID, nil
		}
		if name != "" && strings.Contains(folded, name) && len(name) > bestLen {
			best, bestLen = c.ID, len(name)
		}
	}
	return best, nil
}

// filterHits 价格、品牌、分类、评分过滤
func filterHits(hits []ProductHit, f SearchFilters) []ProductHit {
	brand := intent.Fold(f.Brand)
	out := make([]ProductHit, 0, len(hits))
	for _, h := range hits {
		if !f.PriceRange.Contains(h.Price) {
			continue
		}
		if brand != "" && intent.Fold(h.BrandName) != brand {
			continue
		}
		if f.CategoryID != "" && !inCategory(h.CategoryID, f.CategoryID) {
			continue
		}
		if f.MinRating > 0 && h.RatingAverage < f.MinRating {
			continue
		}
		out = append(out, h)
	}
	return out
}

// sortHits 未指定排序时保持检索得分顺序
func sortHits(hits []ProductHit, sortBy string) {
	var less func(i, j int) bool
	switch sortBy {
	case SortPriceAsc:
		less = func(i, j int) bool { return hits[i].Price < hits[j].Price }
	case SortPriceDesc:
		less = func(i, j int) bool { return hits[i].Price > hits[j].Price }
	case SortRating:
		less = func(i, j int) bool { return hits[i].RatingAverage > hits[j].RatingAverage }
	case SortNewest:
		less = func(i, j int) bool {
			if hits[i].CreatedAt != hits[j].CreatedAt {
				return hits[i].CreatedAt > hits[j].CreatedAt
			}
			return hits[i].ID > hits[j].ID
		}
	default:
		return
	}
	sort.SliceStable(hits, less)
}

// sortFromText 从消息中识别排序要求
func sortFromText(text string) string {
	folded := intent.Fold(text)
	// "danh gia cao" 包含 "gia cao"，评分需先于价格判断
	switch {
	case strings.Contains(folded, "danh gia cao"), strings.Contains(folded, "danh gia tot"), strings.Contains(folded, "tot nhat"):
		return SortRating
	case strings.Contains(folded, "re nhat"), strings.Contains(folded, "gia thap"):
		return SortPriceAsc
	case strings.Contains(folded, "dat nhat"), strings.Contains(folded, "gia cao"):
		return SortPriceDesc
	case strings.Contains(folded, "moi nhat"):
		return SortNewest
	}
	return ""
}
