package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopmind/backend/internal/domain/agent"
	"github.com/shopmind/backend/internal/domain/catalog"
	"github.com/shopmind/backend/internal/domain/chat"
	"github.com/shopmind/backend/internal/domain/intent"
	"github.com/shopmind/backend/internal/infrastructure/config"
	"github.com/shopmind/backend/internal/infrastructure/llm"
	"github.com/shopmind/backend/internal/infrastructure/log"
	"github.com/shopmind/backend/internal/infrastructure/vector"
)

// 查询类型
const (
	QuerySpecificProduct = "specific_product"
	QueryAttribute       = "attribute"
	QueryAvailability    = "availability"
	QueryComparison      = "comparison"
)

// 讲解深度
const (
	LevelBasic     = "basic"
	LevelDetailed  = "detailed"
	LevelTechnical = "technical"
)

// StatusAttributeNotFound 请求的属性在商品上不存在
const StatusAttributeNotFound = "attribute_not_found"

// basicDescriptionChars basic 深度下描述的最大字符数
const basicDescriptionChars = 160

const productInfoPrompt = `You analyse product questions for a Vietnamese e-commerce shop.
Return a JSON object:
{
  "query_kind": "specific_product" | "attribute" | "availability" | "comparison",
  "explanation_level": "basic" | "detailed" | "technical",
  "product_name": "the product the customer asks about, or empty",
  "attributes": ["specification keys asked for, e.g. ram, storage, screen, battery"]
}
Return only the JSON object.`

// attributeAliases 口语属性名到规格键的映射（已 Fold）
var attributeAliases = map[string]string{
	"bo nho":       "storage",
	"dung luong":   "storage",
	"rom":          "storage",
	"man hinh":     "screen",
	"vi xu ly":     "chip",
	"cpu":          "chip",
	"pin":          "battery",
	"tan so quet":  "refresh_rate",
	"refresh rate": "refresh_rate",
}

// productQuery 商品信息查询
type productQuery struct {
	QueryKind        string   `json:"query_kind"`
	ExplanationLevel string   `json:"explanation_level"`
	ProductName      string   `json:"product_name"`
	Attributes       []string `json:"attributes"`
}

// ProductInfoAgent 商品信息代理
type ProductInfoAgent struct {
	resolver  *ProductResolver
	completer llm.Completer
	baseURL   string
	logger    *slog.Logger
}

// NewProductInfoAgent 创建商品信息代理
func NewProductInfoAgent(resolver *ProductResolver, completer llm.Completer, cfg *config.ChatConfig) *ProductInfoAgent {
	return &ProductInfoAgent{
		resolver:  resolver,
		completer: completer,
		baseURL:   cfg.FrontendBaseURL,
		logger:    log.NewModuleLogger("agents", "product_info"),
	}
}

// Name 实现 agent.Agent
func (a *ProductInfoAgent) Name() agent.Name {
	return agent.ProductInfo
}

// Handle 定位商品并按查询类型与讲解深度渲染
// 找不到商品时返回 agent.ErrNoResult，由通用应答兜底
func (a *ProductInfoAgent) Handle(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	q := a.parse(ctx, req)

	p, score, err := a.resolve(ctx, req, q)
	if err != nil {
		return failure(a.Name(), a.logger, err), nil
	}
	if p == nil {
		a.logger.Debug("Product not resolved", "chat_id", req.ChatID, "product_name", q.ProductName)
		return nil, agent.ErrNoResult
	}

	resp := a.render(p, q)
	resp.Sources = []agent.Source{{
		Collection: vector.CollectionProducts,
		ID:         strconv.FormatInt(p.ID, 10),
		Score:      score,
	}}
	resp.ContextUpdates = map[string]any{chat.ContextLastViewedProduct: p.ID}
	return resp, nil
}

// parse LLM 解析查询类型，失败时使用启发式规则
func (a *ProductInfoAgent) parse(ctx context.Context, req *agent.Request) *productQuery {
	q := &productQuery{}
	completeJSON(ctx, a.completer, a.logger, &llm.Request{
		Task:        "product_info_parse",
		System:      productInfoPrompt,
		User:        req.Message,
		Temperature: llm.Temperature(0),
	}, q)

	folded := intent.Fold(req.Message)
	if q.ProductName == "" {
		q.ProductName = req.Entities.String(intent.KeyProductName)
	}
	if len(q.Attributes) == 0 {
		q.Attributes = req.Entities.Strings(intent.KeyAttributes)
	}
	switch q.QueryKind {
	case QuerySpecificProduct, QueryAttribute, QueryAvailability, QueryComparison:
	default:
		switch {
		case len(q.Attributes) > 0:
			q.QueryKind = QueryAttribute
		case strings.Contains(folded, "con hang"), strings.Contains(folded, "het hang"), strings.Contains(folded, "ton kho"):
			q.QueryKind = QueryAvailability
		default:
			q.QueryKind = QuerySpecificProduct
		}
	}
	switch q.ExplanationLevel {
	case LevelBasic, LevelDetailed, LevelTechnical:
	default:
		switch {
		case strings.Contains(folded, "thong so"), strings.Contains(folded, "cau hinh"), strings.Contains(folded, "ky thuat"):
			q.ExplanationLevel = LevelTechnical
		case strings.Contains(folded, "chi tiet"):
			q.ExplanationLevel = LevelDetailed
		default:
			q.ExplanationLevel = LevelBasic
		}
	}
	return q
}

// resolve 依次按实体 ID、名称、最近查看的商品、自由描述定位
func (a *ProductInfoAgent) resolve(ctx context.Context, req *agent.Request, q *productQuery) (*catalog.Product, float32, error) {
	if id, ok := req.Entities.Int64(intent.KeyProductID); ok {
		p, err := a.resolver.ByID(ctx, id)
		if err != nil || p != nil {
			return p, 0, err
		}
	}
	if q.ProductName != "" {
		p, err := a.resolver.ByName(ctx, q.ProductName)
		if err != nil || p != nil {
			return p, 0, err
		}
	}
	if id, ok := req.ContextInt64(chat.ContextLastViewedProduct); ok && q.ProductName == "" {
		p, err := a.resolver.ByID(ctx, id)
		if err != nil || p != nil {
			return p, 0, err
		}
	}
	p, hit, err := a.resolver.ByDescription(ctx, req.Message)
	if err != nil || p == nil {
		return nil, 0, err
	}
	return p, hit.Score, nil
}

// render 价格、描述、规格与库存
func (a *ProductInfoAgent) render(p *catalog.Product, q *productQuery) *agent.Response {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nGiá: %s", p.Name, catalog.FormatPrice(p.Price))
	if p.BrandName != "" {
		fmt.Fprintf(&b, "\nThương hiệu: %s", p.BrandName)
	}
	data := map[string]any{
		"product":           hitFromProduct(p, a.baseURL),
		"query_kind":        q.QueryKind,
		"explanation_level": q.ExplanationLevel,
	}
	kind := agent.KindAnswer

	switch q.QueryKind {
	case QueryAvailability:
		b.WriteString("\n" + availability(p))
	case QueryAttribute:
		found, missing := matchAttributes(p, q.Attributes)
		for _, key := range found {
			fmt.Fprintf(&b, "\n- %s: %s", key, p.Specifications[key])
		}
		if len(missing) > 0 {
			fmt.Fprintf(&b, "\nXin lỗi, sản phẩm chưa có thông tin về: %s.", strings.Join(missing, ", "))
			data["status"] = StatusAttributeNotFound
			data["missing_attributes"] = missing
			if len(found) == 0 {
				kind = agent.KindNotFound
			}
		}
	default:
		if desc := describe(p, q.ExplanationLevel); desc != "" {
			b.WriteString("\n" + desc)
		}
		if q.ExplanationLevel != LevelBasic && len(p.Specifications) > 0 {
			b.WriteString("\nThông số:")
			for _, key := range p.SpecKeys() {
				fmt.Fprintf(&b, "\n- %s: %s", key, p.Specifications[key])
			}
		}
		if q.ExplanationLevel == LevelTechnical {
			fmt.Fprintf(&b, "\nĐánh giá: %.1f/5 (%d lượt)", p.RatingAverage, p.ReviewCount)
		}
		b.WriteString("\n" + availability(p))
	}

	if url := catalog.ProductURL(a.baseURL, p.ID); url != "" {
		b.WriteString("\n" + url)
	}
	return &agent.Response{
		Content:     b.String(),
		SourceAgent: a.Name(),
		Kind:        kind,
		Data:        data,
	}
}

// describe basic 用短描述（过长截断），其余用完整描述
func describe(p *catalog.Product, level string) string {
	if level == LevelBasic {
		desc := p.ShortDescription
		if desc == "" {
			desc = p.Description
		}
		return llm.TruncateRunes(desc, basicDescriptionChars)
	}
	if p.Description != "" {
		return p.Description
	}
	return p.ShortDescription
}

func availability(p *catalog.Product) string {
	if p.InStock() {
		return fmt.Sprintf("Tình trạng: còn hàng (%d sản phẩm)", p.Stock)
	}
	return "Tình trạng: tạm hết hàng"
}

// matchAttributes 将请求的属性映射到规格键，返回命中的键与未知属性
func matchAttributes(p *catalog.Product, attributes []string) (found, missing []string) {
	keys := make(map[string]string, len(p.Specifications))
	for k := range p.Specifications {
		keys[intent.Fold(k)] = k
	}
	seen := make(map[string]struct{})
	for _, attr := range attributes {
		folded := intent.Fold(strings.TrimSpace(attr))
		if folded == "" {
			continue
		}
		if alias, ok := attributeAliases[folded]; ok {
			folded = alias
		}
		key, ok := keys[folded]
		if !ok {
			missing = append(missing, attr)
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			found = append(found, key)
		}
	}
	return found, missing
}
