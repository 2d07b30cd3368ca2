package agents

import (
	"context"
	"encoding/json"
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
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// 推荐策略
const (
	StrategyPersonalized = "personalized"
	StrategyContextual   = "contextual"
	StrategySimilar      = "similar"
	StrategyTrending     = "trending"
)

// recommendPool 打分前的候选数
const recommendPool = 20

const recommendStrategyPrompt = `You choose a recommendation strategy for a Vietnamese e-commerce assistant.
Strategies:
- "personalized": the customer wants suggestions for themself and has known preferences
- "contextual": the customer refers to the product they just viewed
- "similar": the customer asks for products similar to a named product
- "trending": the customer asks what is popular, or nothing is known about them
Return a JSON object {"strategy": "...", "reason": "short reason"}.`

// explanationTemplates 推荐说明模板，%s 为参照商品名
var explanationTemplates = map[string]string{
	StrategyPersonalized: "Dựa trên sở thích của bạn, mình gợi ý những sản phẩm sau:",
	StrategyContextual:   "Vì bạn vừa xem %s, có thể bạn cũng sẽ thích:",
	StrategySimilar:      "Một số sản phẩm tương tự %s:",
	StrategyTrending:     "Những sản phẩm đang được nhiều người mua nhất:",
}

// RecommendationAgent 推荐代理
type RecommendationAgent struct {
	retrieval *retrieval.Service
	resolver  *ProductResolver
	products  catalog.ProductRepository
	customers catalog.CustomerRepository
	scorer    *RecommendScorer
	completer llm.Completer
	baseURL   string
	logger    *slog.Logger
}

// NewRecommendationAgent 创建推荐代理
func NewRecommendationAgent(
	retrieval *retrieval.Service,
	resolver *ProductResolver,
	products catalog.ProductRepository,
	customers catalog.CustomerRepository,
	scorer *RecommendScorer,
	completer llm.Completer,
	cfg *config.ChatConfig,
) *RecommendationAgent {
	return &RecommendationAgent{
		retrieval: retrieval,
		resolver:  resolver,
		products:  products,
		customers: customers,
		scorer:    scorer,
		completer: completer,
		baseURL:   cfg.FrontendBaseURL,
		logger:    log.NewModuleLogger("agents", "recommendation"),
	}
}

// Name 实现 agent.Agent
func (a *RecommendationAgent) Name() agent.Name {
	return agent.Recommendation
}

// recommendInput 一次推荐的上下文
type recommendInput struct {
	user     UserFeatures
	customer *catalog.Customer
	source   *catalog.Product
	viewed   *catalog.Product
}

// Handle 选择策略、生成候选、模型重排
func (a *RecommendationAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	in, err := a.prepare(ctx, req)
	if err != nil {
		return failure(a.Name(), a.logger, err), nil
	}

	strategy := a.chooseStrategy(ctx, req, in)
	candidates, err := a.candidates(ctx, req, in, strategy)
	if err != nil {
		return failure(a.Name(), a.logger, err), nil
	}
	if len(candidates) == 0 && strategy != StrategyTrending {
		a.logger.Debug("No candidates for strategy, falling back to trending", "strategy", strategy)
		strategy = StrategyTrending
		if candidates, err = a.candidates(ctx, req, in, strategy); err != nil {
			return failure(a.Name(), a.logger, err), nil
		}
	}
	if len(candidates) == 0 {
		return notFound(a.Name(), "Xin lỗi, hiện mình chưa có sản phẩm nào phù hợp để gợi ý."), nil
	}

	hits := a.rank(ctx, in.user, candidates, defaultK)
	explanation := explain(strategy, in)

	a.logger.Debug("Recommendation completed",
		"chat_id", req.ChatID,
		"strategy", strategy,
		"candidates", len(candidates),
		"returned", len(hits),
	)

	resp := answer(a.Name(), explanation+"\n"+formatHits(hits))
	resp.Data = map[string]any{
		"strategy":    strategy,
		"explanation": explanation,
		"products":    hits,
	}
	resp.Sources = productSources(hits)
	return resp, nil
}

// prepare 读取顾客画像、提及的商品与最近查看的商品
func (a *RecommendationAgent) prepare(ctx context.Context, req *agent.Request) (*recommendInput, error) {
	in := &recommendInput{}

	var stats *catalog.PurchaseStats
	if !req.IsShop() && req.UserID > 0 {
		customer, err := a.customers.Get(ctx, req.UserID)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get customer: %w", err))
		}
		in.customer = customer
		if customer != nil {
			if stats, err = a.customers.PurchaseStats(ctx, req.UserID); err != nil {
				return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to get purchase stats: %w", err))
			}
		}
	}
	in.user = NewUserFeatures(in.customer, stats, time.Now())

	var err error
	if id, ok := req.Entities.Int64(intent.KeyProductID); ok {
		if in.source, err = a.resolver.ByID(ctx, id); err != nil {
			return nil, err
		}
	}
	if in.source == nil {
		if name := req.Entities.String(intent.KeyProductName); name != "" {
			if in.source, err = a.resolver.ByName(ctx, name); err != nil {
				return nil, err
			}
		}
	}
	if id, ok := req.ContextInt64(chat.ContextLastViewedProduct); ok {
		if in.viewed, err = a.resolver.ByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// chooseStrategy LLM 选择策略，选择不可执行或调用失败时按启发式规则
func (a *RecommendationAgent) chooseStrategy(ctx context.Context, req *agent.Request, in *recommendInput) string {
	profile, _ := json.Marshal(in.user)
	var viewed, mentioned string
	if in.viewed != nil {
		viewed = in.viewed.Name
	}
	if in.source != nil {
		mentioned = in.source.Name
	}

	var out struct {
		Strategy string `json:"strategy"`
		Reason   string `json:"reason"`
	}
	if completeJSON(ctx, a.completer, a.logger, &llm.Request{
		Task:   "recommendation_strategy",
		System: recommendStrategyPrompt,
		User: fmt.Sprintf("Customer message: %s\nCustomer profile: %s\nLast viewed product: %s\nMentioned product: %s",
			req.Message, profile, viewed, mentioned),
		Temperature: llm.Temperature(0),
	}, &out) && a.feasible(out.Strategy, in) {
		return out.Strategy
	}

	folded := intent.Fold(req.Message)
	switch {
	case in.source != nil:
		return StrategySimilar
	case in.viewed != nil && (strings.Contains(folded, "tuong tu") || strings.Contains(folded, "giong")):
		return StrategyContextual
	case strings.Contains(folded, "ban chay"), strings.Contains(folded, "hot"),
		strings.Contains(folded, "xu huong"), strings.Contains(folded, "pho bien"):
		return StrategyTrending
	case in.user.PreferredCategory != "":
		return StrategyPersonalized
	case in.viewed != nil:
		return StrategyContextual
	default:
		return StrategyTrending
	}
}

// feasible 策略所需的输入是否齐全
func (a *RecommendationAgent) feasible(strategy string, in *recommendInput) bool {
	switch strategy {
	case StrategyPersonalized:
		return in.user.PreferredCategory != ""
	case StrategyContextual:
		return in.viewed != nil
	case StrategySimilar:
		return in.source != nil
	case StrategyTrending:
		return true
	}
	return false
}

// candidates 按策略生成有货的候选商品
func (a *RecommendationAgent) candidates(ctx context.Context, req *agent.Request, in *recommendInput, strategy string) ([]*catalog.Product, error) {
	var ids []int64
	switch strategy {
	case StrategyPersonalized:
		results, err := a.retrieval.SemanticSearch(ctx, req.Message, vector.CollectionProducts, recommendPool, vector.SearchOptions{})
		if err != nil {
			return nil, upstream(err)
		}
		for _, r := range results {
			if inCategory(r.String(vector.PayloadCategoryID), in.user.PreferredCategory) {
				ids = append(ids, r.IDInt64())
			}
		}
		if len(ids) < defaultK {
			popular, err := a.products.Popular(ctx, in.user.PreferredCategory, recommendPool)
			if err != nil {
				return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list popular products: %w", err))
			}
			for _, p := range popular {
				ids = append(ids, p.ID)
			}
		}
	case StrategyContextual, StrategySimilar:
		source := in.viewed
		if strategy == StrategySimilar {
			source = in.source
		}
		results, err := a.retrieval.SimilarToID(ctx, vector.CollectionProducts, strconv.FormatInt(source.ID, 10), recommendPool)
		if err != nil {
			return nil, upstream(err)
		}
		for _, r := range results {
			ids = append(ids, r.IDInt64())
		}
	default:
		popular, err := a.products.Popular(ctx, "", recommendPool)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("failed to list popular products: %w", err))
		}
		for _, p := range popular {
			ids = append(ids, p.ID)
		}
	}

	products, _, err := a.resolver.Many(ctx, dedupe(ids), nil)
	if err != nil {
		return nil, err
	}
	out := products[:0]
	for _, p := range products {
		if p.InStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

// rank 模型打分后按得分降序取前 k 个，模型不可用时保持候选顺序
func (a *RecommendationAgent) rank(ctx context.Context, user UserFeatures, candidates []*catalog.Product, k int) []ProductHit {
	hits := make([]ProductHit, len(candidates))
	for i, p := range candidates {
		hits[i] = hitFromProduct(p, a.baseURL)
	}

	scores, err := a.scorer.Score(ctx, user, candidates)
	if err != nil {
		a.logger.Warn("Recommendation scorer unavailable, keeping candidate order", "error", err)
	} else {
		for i := range hits {
			hits[i].Score = scores[i]
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func explain(strategy string, in *recommendInput) string {
	tpl := explanationTemplates[strategy]
	switch strategy {
	case StrategyContextual:
		return fmt.Sprintf(tpl, in.viewed.Name)
	case StrategySimilar:
		return fmt.Sprintf(tpl, in.source.Name)
	}
	return tpl
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
